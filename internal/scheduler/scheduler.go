// Package scheduler owns the incremental artifact pipeline's four
// cooperating pools: a preload driver that walks albums, and three
// file-level worker pools (thumbnail, metadata, hash). It tracks the
// single process-wide active root, aggregates progress, and gives the
// near-duplicate finder a synchronous wait-for-hashes primitive.
package scheduler

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/beveiled/room237/internal/classify"
	"github.com/beveiled/room237/internal/config"
	"github.com/beveiled/room237/internal/events"
	"github.com/beveiled/room237/internal/mediaprobe"
	"github.com/beveiled/room237/internal/phash"
	"github.com/beveiled/room237/internal/sidecar"
	"github.com/beveiled/room237/internal/thumbnail"
)

// ForceFailAfter is the duplicate finder's 30-second liveness heuristic,
// expressed as a variable (the source calls for this to be configurable
// in spirit, and tests shrink it to keep runtime bounded).
var ForceFailAfter = 30 * time.Second

// Scheduler is the single long-lived owner of every preload queue and
// counter. Construct one at startup and inject it into callers; do not
// reach for it as an ambient global.
type Scheduler struct {
	cfg  *config.Config
	sink events.Sink

	extractor *mediaprobe.Extractor
	thumbs    *thumbnail.Generator
	hasher    *phash.Hasher

	subSem          *semaphore.Weighted
	progressLimiter *rate.Limiter
	lastStage       atomic.Value

	mu            sync.Mutex
	activeRoot    string
	preloaded     map[string]bool
	dirQueue      []string
	driverRunning bool
	driverCancel  atomic.Bool

	thumbQ *fileQueue
	metaQ  *fileQueue
	hashQ  *fileQueue

	workersOnce sync.Once

	conversionsTotal int64
	conversionsDone  int64
	thumbsDone       int64
	metaDone         int64
	thumbOutstanding int64
	metaOutstanding  int64
	hashDone         int64
	hashTotal        int64

	cronRunner   *cron.Cron
	lockReaperID cron.EntryID
}

func New(cfg *config.Config, sink events.Sink, extractor *mediaprobe.Extractor, thumbs *thumbnail.Generator, hasher *phash.Hasher) *Scheduler {
	if sink == nil {
		sink = events.NullSink{}
	}
	s := &Scheduler{
		cfg:             cfg,
		sink:            sink,
		extractor:       extractor,
		thumbs:          thumbs,
		hasher:          hasher,
		subSem:          semaphore.NewWeighted(int64(cfg.Preload.MaxConcurrentSubprocesses)),
		progressLimiter: rate.NewLimiter(rate.Every(time.Duration(cfg.Preload.ProgressEmitMs)*time.Millisecond), 1),
		preloaded:       map[string]bool{},
		thumbQ:          newFileQueue(),
		metaQ:           newFileQueue(),
		hashQ:           newFileQueue(),
		cronRunner:      cron.New(),
	}
	s.startLockReaper()
	return s
}

// ActiveRoot returns the process-wide active root.
func (s *Scheduler) ActiveRoot() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeRoot
}

// SetActiveRoot implements the active-root gating contract: changing the
// root clears every queue, the preloaded set, and counters, and emits an
// idle progress event.
func (s *Scheduler) SetActiveRoot(root string) {
	s.mu.Lock()
	if s.activeRoot == root {
		s.mu.Unlock()
		return
	}
	s.activeRoot = root
	s.preloaded = map[string]bool{}
	s.dirQueue = nil
	s.mu.Unlock()

	s.thumbQ.reset()
	s.metaQ.reset()
	s.hashQ.reset()

	atomic.StoreInt64(&s.conversionsTotal, 0)
	atomic.StoreInt64(&s.conversionsDone, 0)
	atomic.StoreInt64(&s.thumbsDone, 0)
	atomic.StoreInt64(&s.metaDone, 0)
	atomic.StoreInt64(&s.thumbOutstanding, 0)
	atomic.StoreInt64(&s.metaOutstanding, 0)
	atomic.StoreInt64(&s.hashDone, 0)
	atomic.StoreInt64(&s.hashTotal, 0)

	s.emitProgress(true)
}

// underActiveRoot reports whether dir is still inside the current active
// root; workers drop tasks that fail this check without doing any work.
func (s *Scheduler) underActiveRoot(dir string) bool {
	root := s.ActiveRoot()
	if root == "" {
		return false
	}
	rel, err := filepath.Rel(root, dir)
	if err != nil {
		return false
	}
	return rel == "." || !strings.HasPrefix(rel, "..")
}

// EnqueuePreload queues an album directory for background preload,
// starting the driver and the three worker pools on first demand.
func (s *Scheduler) EnqueuePreload(dir string) {
	s.mu.Lock()
	if s.preloaded[dir] {
		s.mu.Unlock()
		return
	}
	for _, d := range s.dirQueue {
		if d == dir {
			s.mu.Unlock()
			return
		}
	}
	s.dirQueue = append(s.dirQueue, dir)
	running := s.driverRunning
	s.mu.Unlock()

	s.ensureWorkers()
	if !running {
		go s.runDriver()
	}
}

// IsPreloading reports whether the driver is running or any queue has
// outstanding work — used by the is_preloading command.
func (s *Scheduler) IsPreloading() bool {
	s.mu.Lock()
	running := s.driverRunning
	s.mu.Unlock()
	return running || s.thumbQ.size() > 0 || s.metaQ.size() > 0 || s.hashQ.size() > 0
}

// LockUntilPreloaded polls every 100ms until no preload work remains,
// offering a preload-progress emission on each poll (subject to the
// usual progress throttle).
func (s *Scheduler) LockUntilPreloaded(ctx context.Context) error {
	for s.IsPreloading() {
		s.emitProgress(false)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	return nil
}

func (s *Scheduler) ensureWorkers() {
	s.workersOnce.Do(func() {
		for i := 0; i < s.cfg.Preload.ThumbWorkers; i++ {
			go s.thumbWorker()
		}
		for i := 0; i < s.cfg.Preload.MetaWorkers; i++ {
			go s.metaWorker()
		}
		for i := 0; i < s.cfg.Preload.HashWorkers; i++ {
			go s.hashWorker()
		}
	})
}

// runDriver is the single preload-driver thread: it dequeues albums and
// hands each to preloadDir under a per-album cancel flag.
func (s *Scheduler) runDriver() {
	s.mu.Lock()
	if s.driverRunning {
		s.mu.Unlock()
		return
	}
	s.driverRunning = true
	s.mu.Unlock()

	for {
		dir, ok := s.popDir()
		if !ok {
			s.mu.Lock()
			s.driverRunning = false
			s.mu.Unlock()
			return
		}

		s.mu.Lock()
		already := s.preloaded[dir]
		s.mu.Unlock()
		if already {
			continue
		}

		s.driverCancel.Store(false)
		s.preloadDir(dir)

		if !s.driverCancel.Load() {
			s.mu.Lock()
			s.preloaded[dir] = true
			s.mu.Unlock()
		}
	}
}

func (s *Scheduler) popDir() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.dirQueue) == 0 {
		return "", false
	}
	dir := s.dirQueue[0]
	s.dirQueue = s.dirQueue[1:]
	return dir, true
}

// CancelCurrentAlbum sets the cancel flag for whatever album the driver is
// currently processing, used by a synchronous on-demand request that needs
// to jump the queue.
func (s *Scheduler) CancelCurrentAlbum() {
	s.driverCancel.Store(true)
}

// preloadDir implements the driver's per-album pass: convert HEIC inputs
// inline (serially, so conversions_done progresses visibly), then enqueue
// thumb/meta/hash work for every other media file at Low priority.
func (s *Scheduler) preloadDir(dir string) {
	entries, err := filepath.Glob(filepath.Join(dir, "*"))
	if err != nil {
		return
	}

	var heic, media []string
	for _, e := range entries {
		name := filepath.Base(e)
		if !classify.IsMedia(name) {
			continue
		}
		if classify.IsHEIC(name) {
			heic = append(heic, e)
		} else {
			media = append(media, e)
		}
	}

	atomic.AddInt64(&s.conversionsTotal, int64(len(heic)))
	for _, path := range heic {
		if s.driverCancel.Load() {
			return
		}
		if derivative, err := s.convertHEIC(path); err == nil {
			media = append(media, derivative)
		}
		atomic.AddInt64(&s.conversionsDone, 1)
		s.emitProgress(false)
	}

	for _, path := range media {
		if s.driverCancel.Load() {
			return
		}
		s.enqueueFile(dir, path, Low)
	}
}

// convertHEIC runs the media tool inline (serially, so conversions_done
// progresses visibly) to produce a HEIC input's sibling JPEG derivative,
// which becomes the canonical media file for the three file-level
// queues below.
func (s *Scheduler) convertHEIC(path string) (string, error) {
	ctx := context.Background()
	if err := s.subSem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer s.subSem.Release(1)
	return s.thumbs.ConvertHEIC(ctx, path)
}

// enqueueFile pushes a single media file onto the thumb, meta, and hash
// queues, bumping the outstanding counters for whichever actually admit
// the task (dedup means a file already in flight is not double counted).
func (s *Scheduler) enqueueFile(albumDir, path string, pr Priority) {
	t := fileTask{albumDir: albumDir, path: path}
	if s.thumbQ.enqueue(t, pr) {
		atomic.AddInt64(&s.thumbOutstanding, 1)
	}
	if s.metaQ.enqueue(t, pr) {
		atomic.AddInt64(&s.metaOutstanding, 1)
	}
	if s.hashQ.enqueue(t, pr) {
		atomic.AddInt64(&s.hashTotal, 1)
	}
}

// EnsureAlbumMedia implements the High-priority demand coupling used by
// list_album_media: enqueue any missing thumb/meta work for the given
// files, then wait until each either lands or sticks as failed. It
// returns early, marking nothing failed, when ctx ends or when
// ForceFailAfter passes with no file landing.
func (s *Scheduler) EnsureAlbumMedia(ctx context.Context, albumDir string, files []string) {
	s.ensureWorkers()
	rec, err := sidecar.ReadAlbumMeta(albumDir)
	if err != nil {
		rec = sidecar.Record{Files: map[string]sidecar.FileMetaEntry{}}
	}

	pending := map[string]bool{}
	for _, f := range files {
		name := filepath.Base(f)
		e := rec.Files[name]
		needThumb := e.ThumbVersion != s.cfg.Thumbnails.Version && !e.ThumbFailed
		needMeta := e.Meta == "" && !e.MetaFailed
		if needThumb || needMeta {
			t := fileTask{albumDir: albumDir, path: f}
			if needThumb && s.thumbQ.enqueue(t, High) {
				atomic.AddInt64(&s.thumbOutstanding, 1)
			}
			if needMeta && s.metaQ.enqueue(t, High) {
				atomic.AddInt64(&s.metaOutstanding, 1)
			}
			pending[name] = true
		}
	}

	lastProgress := time.Now()
	for len(pending) > 0 {
		if time.Since(lastProgress) > ForceFailAfter {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(20 * time.Millisecond):
		}
		rec, err = sidecar.ReadAlbumMeta(albumDir)
		if err != nil {
			continue
		}
		before := len(pending)
		for name := range pending {
			e := rec.Files[name]
			thumbSatisfied := e.ThumbVersion == s.cfg.Thumbnails.Version || e.ThumbFailed
			metaSatisfied := e.Meta != "" || e.MetaFailed
			if thumbSatisfied && metaSatisfied {
				delete(pending, name)
			}
		}
		if len(pending) < before {
			lastProgress = time.Now()
		}
	}
}

// WaitForAlbumHashes implements wait_for_album_hashes: filter out files
// already satisfied, enqueue the rest at the given priority, then block
// until every requested file is satisfied or force-failed after
// ForceFailAfter of apparent no progress.
func (s *Scheduler) WaitForAlbumHashes(ctx context.Context, albumDir string, files []string, pr Priority) {
	s.ensureWorkers()
	rec, err := sidecar.ReadAlbumMeta(albumDir)
	if err != nil {
		rec = sidecar.Record{Files: map[string]sidecar.FileMetaEntry{}}
	}

	pending := map[string]bool{}
	for _, f := range files {
		name := filepath.Base(f)
		e := rec.Files[name]
		if e.Hash != "" && e.HashVersion == s.cfg.Hash.Version && e.HashBits == s.cfg.Hash.Bits {
			continue
		}
		if e.HashFailed {
			continue
		}
		t := fileTask{albumDir: albumDir, path: f}
		if s.hashQ.enqueue(t, pr) {
			atomic.AddInt64(&s.hashTotal, 1)
		}
		pending[name] = true
	}

	lastProgress := time.Now()
	for len(pending) > 0 {
		if time.Since(lastProgress) > ForceFailAfter {
			for name := range pending {
				_, _ = sidecar.MarkHashFailed(albumDir, name)
			}
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(20 * time.Millisecond):
		}
		rec, err = sidecar.ReadAlbumMeta(albumDir)
		if err != nil {
			continue
		}
		before := len(pending)
		for name := range pending {
			e := rec.Files[name]
			satisfied := e.HashFailed || (e.Hash != "" && e.HashVersion == s.cfg.Hash.Version && e.HashBits == s.cfg.Hash.Bits)
			if satisfied {
				delete(pending, name)
			}
		}
		if len(pending) < before {
			lastProgress = time.Now()
		}
	}
}

// SetAllowOpen re-emits the last known hash-progress snapshot; the front
// end uses this after toggling a gate that lets new content become
// visible without waiting for the next natural hash completion.
func (s *Scheduler) SetAllowOpen(allow bool) {
	if !allow {
		return
	}
	s.sink.EmitHashProgress(events.HashProgress{
		Completed: atomic.LoadInt64(&s.hashDone),
		Total:     atomic.LoadInt64(&s.hashTotal),
	})
}

// Shutdown stops the lock reaper. Queued/in-flight work is left to finish
// or be dropped by the active-root check; there is no separate drain step.
func (s *Scheduler) Shutdown() {
	s.StopLockReaper()
}
