// Package datasource discovers session folders on disk and reconciles them
// with the index database. The snapshot in each folder is authoritative;
// the index row is a derived mirror that can drift after a crash between
// the two writes or a manual edit.
package datasource

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/vanderheijden86/breathwork/pkg/snapshot"
)

// SessionDir is a folder under the results directory holding a snapshot.
type SessionDir struct {
	// Folder is the absolute session folder path (the snapshot handle).
	Folder string `json:"folder"`
	// ModTime is the last modification time of the live snapshot.
	ModTime time.Time `json:"mod_time"`
	// Size is the live snapshot size in bytes.
	Size int64 `json:"size"`
	// HasBackup reports whether an undo version is present.
	HasBackup bool `json:"has_backup"`
}

// String returns a human-readable description of the folder.
func (d SessionDir) String() string {
	undo := "no undo"
	if d.HasBackup {
		undo = "undo available"
	}
	return fmt.Sprintf("%s (%d bytes, mod=%s, %s)", d.Folder, d.Size, d.ModTime.Format(time.RFC3339), undo)
}

// DiscoverSessions returns every direct subfolder of resultsDir that holds
// a live snapshot, sorted by path. A missing results directory yields no
// sessions and no error.
func DiscoverSessions(resultsDir string) ([]SessionDir, error) {
	root, err := filepath.Abs(resultsDir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read results directory: %w", err)
	}

	fb := snapshot.NewFileBackend()
	var out []SessionDir
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		folder := filepath.Join(root, e.Name())
		info, err := os.Stat(fb.Path(folder, snapshot.Current))
		if err != nil || info.IsDir() {
			continue
		}
		hasBackup, _ := fb.Exists(folder, snapshot.Previous)
		out = append(out, SessionDir{
			Folder:    folder,
			ModTime:   info.ModTime(),
			Size:      info.Size(),
			HasBackup: hasBackup,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Folder < out[j].Folder })
	return out, nil
}
