package snapshot

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/vanderheijden86/breathwork/pkg/metrics"
	"github.com/vanderheijden86/breathwork/pkg/model"
)

// Store holds the live snapshot of each session plus a single previous
// version. Handles are session folders.
type Store struct {
	backend Backend
}

// NewStore wraps a backend.
func NewStore(b Backend) *Store {
	return &Store{backend: b}
}

// Backend returns the underlying storage.
func (s *Store) Backend() Backend {
	return s.backend
}

func encode(sess *model.Session) ([]byte, error) {
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

func decode(data []byte) (*model.Session, error) {
	var sess model.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrCorruptTimeline, err)
	}
	if err := sess.Validate(); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *Store) read(handle string, slot Slot) ([]byte, error) {
	data, err := s.backend.Read(handle, slot)
	if errors.Is(err, ErrNotExist) {
		if slot == Previous {
			return nil, fmt.Errorf("%w: %s", model.ErrNoUndoAvailable, handle)
		}
		return nil, fmt.Errorf("%w: no snapshot in %s", model.ErrSessionNotFound, handle)
	}
	return data, err
}

// Create writes the first snapshot of a session. Any stale previous version
// is removed so a new session never reports undo as available.
func (s *Store) Create(sess *model.Session) error {
	if err := sess.Validate(); err != nil {
		return err
	}
	handle := sess.SessionFolder
	unlock, err := s.backend.Lock(handle)
	if err != nil {
		return err
	}
	defer unlock()

	exists, err := s.backend.Exists(handle, Current)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("snapshot already exists in %s", handle)
	}
	data, err := encode(sess)
	if err != nil {
		return err
	}
	if err := s.backend.Remove(handle, Previous); err != nil {
		return err
	}
	return s.backend.WriteAtomic(handle, Current, data)
}

// Load reads and validates the live snapshot.
func (s *Store) Load(handle string) (*model.Session, error) {
	data, err := s.read(handle, Current)
	if err != nil {
		return nil, err
	}
	return decode(data)
}

// Previous reads the version undo would restore.
func (s *Store) Previous(handle string) (*model.Session, error) {
	data, err := s.read(handle, Previous)
	if err != nil {
		return nil, err
	}
	return decode(data)
}

// UndoAvailable reports whether a previous version exists. It does not
// consume it.
func (s *Store) UndoAvailable(handle string) (bool, error) {
	return s.backend.Exists(handle, Previous)
}

// Mutation is an in-progress edit of one session. Begin has already copied
// the live snapshot into the previous slot, so every exit path leaves a
// usable backup. The session stays locked until Close.
type Mutation struct {
	store     *Store
	handle    string
	unlock    func()
	raw       []byte
	current   *model.Session
	committed bool
	closed    bool
}

// Begin locks the session, validates the live snapshot and copies it to the
// previous slot, replacing any older backup.
func (s *Store) Begin(handle string) (*Mutation, error) {
	unlock, err := s.backend.Lock(handle)
	if err != nil {
		return nil, err
	}
	raw, err := s.read(handle, Current)
	if err != nil {
		unlock()
		return nil, err
	}
	cur, err := decode(raw)
	if err != nil {
		unlock()
		return nil, err
	}
	if err := s.backend.WriteAtomic(handle, Previous, raw); err != nil {
		unlock()
		return nil, fmt.Errorf("write backup: %w", err)
	}
	return &Mutation{store: s, handle: handle, unlock: unlock, raw: raw, current: cur}, nil
}

// Current returns a copy of the session as it was when the mutation began.
func (m *Mutation) Current() *model.Session {
	return m.current.Clone()
}

// Commit validates next and publishes it as the live snapshot with an
// advanced version. On error the live snapshot is unchanged.
func (m *Mutation) Commit(next *model.Session) error {
	defer metrics.Timer(metrics.SnapshotCommit)()
	if m.closed {
		return errors.New("mutation already closed")
	}
	if m.committed {
		return errors.New("mutation already committed")
	}
	next = next.Clone()
	next.SessionFolder = m.handle
	next.Version = m.current.Version + 1
	if err := next.Validate(); err != nil {
		return err
	}
	data, err := encode(next)
	if err != nil {
		return err
	}
	if err := m.store.backend.WriteAtomic(m.handle, Current, data); err != nil {
		return fmt.Errorf("publish snapshot: %w", err)
	}
	m.committed = true
	return nil
}

// Rollback restores the live snapshot byte for byte to what it was when the
// mutation began. The backup is kept.
func (m *Mutation) Rollback() error {
	if !m.committed {
		return nil
	}
	if err := m.store.backend.WriteAtomic(m.handle, Current, m.raw); err != nil {
		return fmt.Errorf("roll back snapshot: %w", err)
	}
	m.committed = false
	return nil
}

// Close releases the session lock. It is safe to call more than once.
func (m *Mutation) Close() {
	if m.closed {
		return
	}
	m.closed = true
	m.unlock()
}

// Restore is an in-progress undo. The session stays locked until Close.
type Restore struct {
	store    *Store
	handle   string
	unlock   func()
	curRaw   []byte
	prevRaw  []byte
	previous *model.Session
	applied  bool
	closed   bool
}

// BeginUndo locks the session and loads the previous version without
// publishing it. It fails with model.ErrNoUndoAvailable when there is
// nothing to restore.
func (s *Store) BeginUndo(handle string) (*Restore, error) {
	unlock, err := s.backend.Lock(handle)
	if err != nil {
		return nil, err
	}
	curRaw, err := s.read(handle, Current)
	if err != nil {
		unlock()
		return nil, err
	}
	prevRaw, err := s.read(handle, Previous)
	if err != nil {
		unlock()
		return nil, err
	}
	prev, err := decode(prevRaw)
	if err != nil {
		unlock()
		return nil, fmt.Errorf("backup: %w", err)
	}
	return &Restore{store: s, handle: handle, unlock: unlock, curRaw: curRaw, prevRaw: prevRaw, previous: prev}, nil
}

// Previous returns a copy of the version that Apply will publish.
func (r *Restore) Previous() *model.Session {
	return r.previous.Clone()
}

// Apply atomically replaces the live snapshot with the previous version and
// consumes it. No new backup is created.
func (r *Restore) Apply() error {
	if r.closed {
		return errors.New("undo already closed")
	}
	if r.applied {
		return nil
	}
	if err := r.store.backend.Promote(r.handle); err != nil {
		return fmt.Errorf("promote backup: %w", err)
	}
	r.applied = true
	return nil
}

// Revert puts both versions back as they were before Apply.
func (r *Restore) Revert() error {
	if !r.applied {
		return nil
	}
	if err := r.store.backend.WriteAtomic(r.handle, Previous, r.prevRaw); err != nil {
		return fmt.Errorf("restore backup: %w", err)
	}
	if err := r.store.backend.WriteAtomic(r.handle, Current, r.curRaw); err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}
	r.applied = false
	return nil
}

// Close releases the session lock. It is safe to call more than once.
func (r *Restore) Close() {
	if r.closed {
		return
	}
	r.closed = true
	r.unlock()
}

// Undo publishes the previous version and returns it.
func (s *Store) Undo(handle string) (*model.Session, error) {
	defer metrics.Timer(metrics.Undo)()
	r, err := s.BeginUndo(handle)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if err := r.Apply(); err != nil {
		return nil, err
	}
	return r.Previous(), nil
}
