// Package snapshot stores the durable form of a session and keeps exactly
// one previous version of it for undo.
//
// A Store sits on a Backend that knows how to hold two byte slots per
// session handle (Current and Previous), replace a slot atomically, promote
// Previous over Current, and lock a handle against other writers. The file
// backend maps a handle to a session folder on disk; the memory backend is
// used in tests and for throwaway sessions.
package snapshot

import (
	"errors"
	"fmt"
)

// Slot names one of the two versions kept per session.
type Slot int

const (
	Current Slot = iota
	Previous
)

func (s Slot) String() string {
	switch s {
	case Current:
		return "current"
	case Previous:
		return "previous"
	default:
		return fmt.Sprintf("slot(%d)", int(s))
	}
}

// ErrNotExist is returned by backends when a slot holds no data.
var ErrNotExist = errors.New("snapshot slot does not exist")

// Backend is the storage contract used by Store. Implementations must make
// WriteAtomic and Promote all-or-nothing as seen by a concurrent Read.
type Backend interface {
	Read(handle string, slot Slot) ([]byte, error)
	WriteAtomic(handle string, slot Slot, data []byte) error
	Remove(handle string, slot Slot) error
	Exists(handle string, slot Slot) (bool, error)
	// Promote replaces Current with Previous and leaves Previous empty.
	Promote(handle string) error
	// Lock blocks until the caller holds the handle exclusively.
	Lock(handle string) (unlock func(), err error)
}
