package scheduler

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/beveiled/room237/internal/sidecar"
)

// startLockReaper registers a periodic job that removes thumbnail lock
// files older than LockStaleAfter under the active root. It is a
// defensive supplement on top of the poll-and-recheck protocol in
// internal/thumbnail: that protocol alone recovers correctly from a
// crashed writer, but only when another writer comes along to retry, so
// this shortens worst-case recovery for an otherwise-quiet album.
func (s *Scheduler) startLockReaper() {
	spec := "@every " + s.cfg.Preload.LockReapInterval.String()
	id, err := s.cronRunner.AddFunc(spec, s.reapStaleLocks)
	if err != nil {
		return
	}
	s.lockReaperID = id
	s.cronRunner.Start()
}

func (s *Scheduler) reapStaleLocks() {
	root := s.ActiveRoot()
	if root == "" {
		return
	}
	cutoff := time.Now().Add(-s.cfg.Preload.LockStaleAfter)
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if !strings.HasSuffix(path, ".lock") || filepath.Base(filepath.Dir(path)) != sidecar.ThumbDirName {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			_ = os.Remove(path)
		}
		return nil
	})
}

// StopLockReaper halts the cron runner; callers shut it down with the
// scheduler itself.
func (s *Scheduler) StopLockReaper() {
	s.cronRunner.Stop()
}
