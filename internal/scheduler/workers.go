package scheduler

import (
	"context"
	"path/filepath"
	"sync/atomic"

	"github.com/beveiled/room237/internal/sidecar"
)

// thumbWorker loops forever, dequeuing thumbnail tasks and generating the
// missing thumbnail for each.
func (s *Scheduler) thumbWorker() {
	lowerWorkerPriority()
	for {
		t, ok := s.thumbQ.dequeue()
		if !ok {
			return
		}
		s.runThumbTask(t)
		s.thumbQ.markDone(t)
	}
}

func (s *Scheduler) runThumbTask(t fileTask) {
	defer func() {
		if atomic.LoadInt64(&s.thumbOutstanding) > 0 {
			atomic.AddInt64(&s.thumbOutstanding, -1)
		}
	}()
	if !s.underActiveRoot(t.albumDir) {
		return
	}
	ctx := context.Background()
	if err := s.subSem.Acquire(ctx, 1); err != nil {
		return
	}
	_, err := s.thumbs.EnsureThumb(ctx, t.albumDir, t.path)
	s.subSem.Release(1)
	if err == nil {
		atomic.AddInt64(&s.thumbsDone, 1)
	}
	s.emitProgress(false)
}

// metaWorker loops forever, dequeuing metadata extraction tasks.
func (s *Scheduler) metaWorker() {
	lowerWorkerPriority()
	for {
		t, ok := s.metaQ.dequeue()
		if !ok {
			return
		}
		s.runMetaTask(t)
		s.metaQ.markDone(t)
	}
}

func (s *Scheduler) runMetaTask(t fileTask) {
	defer func() {
		if atomic.LoadInt64(&s.metaOutstanding) > 0 {
			atomic.AddInt64(&s.metaOutstanding, -1)
		}
	}()
	if !s.underActiveRoot(t.albumDir) {
		return
	}
	ctx := context.Background()
	if err := s.subSem.Acquire(ctx, 1); err != nil {
		return
	}
	packed, err := s.extractor.Extract(ctx, t.path)
	s.subSem.Release(1)
	name := filepath.Base(t.path)
	if err != nil {
		_, _ = sidecar.MarkMetaFailed(t.albumDir, name)
		s.emitProgress(false)
		return
	}
	_, _ = sidecar.WriteMeta(t.albumDir, name, packed)
	atomic.AddInt64(&s.metaDone, 1)
	s.emitProgress(false)
}

// hashWorker loops forever, dequeuing hash tasks. It never takes the
// subprocess semaphore, including when phash.Hasher invokes the
// thumbnail generator, so those thumbnail subprocesses are not counted
// against MaxSubprocesses.
func (s *Scheduler) hashWorker() {
	lowerWorkerPriority()
	for {
		t, ok := s.hashQ.dequeue()
		if !ok {
			return
		}
		s.runHashTask(t)
		s.hashQ.markDone(t)
	}
}

func (s *Scheduler) runHashTask(t fileTask) {
	if !s.underActiveRoot(t.albumDir) {
		return
	}
	ctx := context.Background()
	_, err := s.hasher.ComputeForPath(ctx, t.albumDir, t.path)
	if err == nil {
		atomic.AddInt64(&s.hashDone, 1)
	}
	s.emitHashProgress()
}
