package model

import "errors"

// Error taxonomy. Every error returned by the engine wraps exactly one of
// these sentinels, so callers can use errors.Is or Code.
var (
	ErrSegmentNotFound     = errors.New("segment not found")
	ErrSegmentsNotFound    = errors.New("none of the selected segments exist")
	ErrInvalidSplitPoint   = errors.New("split point must lie strictly inside the segment")
	ErrNonContiguousMerge  = errors.New("selected segments are not contiguous")
	ErrNoUndoAvailable     = errors.New("no undo available")
	ErrCorruptTimeline     = errors.New("corrupt timeline")
	ErrRecalculationFailed = errors.New("recalculation failed")
	ErrSessionNotFound     = errors.New("session not found")
	ErrUnsupportedFile     = errors.New("unsupported recording file")
)

// ErrorCode is the stable identifier reported across the request boundary.
type ErrorCode string

const (
	CodeSegmentNotFound     ErrorCode = "SEGMENT_NOT_FOUND"
	CodeSegmentsNotFound    ErrorCode = "SEGMENTS_NOT_FOUND"
	CodeInvalidSplitPoint   ErrorCode = "INVALID_SPLIT_POINT"
	CodeNonContiguousMerge  ErrorCode = "NON_CONTIGUOUS_MERGE"
	CodeNoUndoAvailable     ErrorCode = "NO_UNDO_AVAILABLE"
	CodeCorruptTimeline     ErrorCode = "CORRUPT_TIMELINE"
	CodeRecalculationFailed ErrorCode = "RECALCULATION_FAILED"
	CodeSessionNotFound     ErrorCode = "SESSION_NOT_FOUND"
	CodeUnsupportedFile     ErrorCode = "UNSUPPORTED_FILE"
	CodeInternal            ErrorCode = "INTERNAL"
)

var codeTable = []struct {
	err  error
	code ErrorCode
}{
	{ErrSegmentNotFound, CodeSegmentNotFound},
	{ErrSegmentsNotFound, CodeSegmentsNotFound},
	{ErrInvalidSplitPoint, CodeInvalidSplitPoint},
	{ErrNonContiguousMerge, CodeNonContiguousMerge},
	{ErrNoUndoAvailable, CodeNoUndoAvailable},
	{ErrCorruptTimeline, CodeCorruptTimeline},
	{ErrRecalculationFailed, CodeRecalculationFailed},
	{ErrSessionNotFound, CodeSessionNotFound},
	{ErrUnsupportedFile, CodeUnsupportedFile},
}

// Code maps err to its ErrorCode. A nil error yields the empty code and
// anything outside the taxonomy is CodeInternal.
func Code(err error) ErrorCode {
	if err == nil {
		return ""
	}
	for _, c := range codeTable {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}

// Recoverable reports whether err belongs to the taxonomy, i.e. it can be
// reported to the caller for correction rather than treated as a fault.
func Recoverable(err error) bool {
	c := Code(err)
	return c != "" && c != CodeInternal
}
