package watcher

import (
	"context"
	"time"

	"github.com/vanderheijden86/breathwork/pkg/model"
	"github.com/vanderheijden86/breathwork/pkg/snapshot"
)

// Report is the outcome of revalidating a snapshot after a change.
type Report struct {
	Handle  string
	Time    time.Time
	Version int
	Events  int
	Err     error
}

// Code is the error code of the report, empty when the snapshot is valid.
func (r Report) Code() model.ErrorCode {
	return model.Code(r.Err)
}

// Guard watches the live snapshot of one session and reloads it through
// the snapshot store on every change, so hand edits that break the
// timeline surface as CORRUPT_TIMELINE immediately.
type Guard struct {
	store    *snapshot.Store
	handle   string
	w        *Watcher
	onReport func(Report)
	now      func() time.Time
}

// NewGuard watches the file backend path of handle. onReport receives one
// Report per debounced change.
func NewGuard(store *snapshot.Store, fb *snapshot.FileBackend, handle string, onReport func(Report), opts ...Option) (*Guard, error) {
	g := &Guard{store: store, handle: handle, onReport: onReport, now: time.Now}
	opts = append(opts,
		WithOnChange(func() { g.onReport(g.Check()) }),
		WithOnError(func(err error) {
			g.onReport(Report{Handle: handle, Time: g.now(), Err: err})
		}),
	)
	w, err := New(fb.Path(handle, snapshot.Current), opts...)
	if err != nil {
		return nil, err
	}
	g.w = w
	return g, nil
}

// Check loads and validates the snapshot once.
func (g *Guard) Check() Report {
	r := Report{Handle: g.handle, Time: g.now()}
	sess, err := g.store.Load(g.handle)
	if err != nil {
		r.Err = err
		return r
	}
	r.Version = sess.Version
	r.Events = len(sess.Events)
	return r
}

// Start begins watching.
func (g *Guard) Start(ctx context.Context) error {
	return g.w.Start(ctx)
}

// Stop stops watching.
func (g *Guard) Stop() {
	g.w.Stop()
}

// Watcher exposes the underlying file watcher.
func (g *Guard) Watcher() *Watcher {
	return g.w
}
