package scheduler

import (
	"sync/atomic"

	"github.com/beveiled/room237/internal/events"
)

// counters is a consistent-enough snapshot of the atomics backing the
// stage derivation and progress payload.
type counters struct {
	conversionsTotal, conversionsDone                      int64
	thumbsDone, metaDone, thumbOutstanding, metaOutstanding int64
}

func (s *Scheduler) snapshot() counters {
	return counters{
		conversionsTotal: atomic.LoadInt64(&s.conversionsTotal),
		conversionsDone:  atomic.LoadInt64(&s.conversionsDone),
		thumbsDone:       atomic.LoadInt64(&s.thumbsDone),
		metaDone:         atomic.LoadInt64(&s.metaDone),
		thumbOutstanding: atomic.LoadInt64(&s.thumbOutstanding),
		metaOutstanding:  atomic.LoadInt64(&s.metaOutstanding),
	}
}

// stage derives Conversion -> Thumbnails -> Metadata -> Idle from which
// class of work still has anything outstanding.
func stageOf(c counters) string {
	if c.conversionsTotal > c.conversionsDone {
		return "conversion"
	}
	if c.thumbOutstanding > 0 {
		return "thumbnails"
	}
	if c.metaOutstanding > 0 {
		return "metadata"
	}
	return "idle"
}

// activeActions lists every class of work that currently has outstanding
// items, independent of which one stageOf picked as the primary stage —
// the three file-level pools run concurrently, so more than one can be
// active at once.
func activeActions(c counters) []string {
	var actions []string
	if c.conversionsTotal > c.conversionsDone {
		actions = append(actions, "conversion")
	}
	if c.thumbOutstanding > 0 {
		actions = append(actions, "thumbnails")
	}
	if c.metaOutstanding > 0 {
		actions = append(actions, "metadata")
	}
	return actions
}

// emitProgress builds and sends a preload-progress snapshot. It always
// emits on a stage transition (Conversion -> Thumbnails -> Metadata ->
// Idle, or force=true as used by SetActiveRoot's idle event); otherwise
// it is throttled to at most one per preload.progress_emit_ms via the
// token-bucket limiter.
func (s *Scheduler) emitProgress(force bool) {
	c := s.snapshot()
	stage := stageOf(c)

	prevStage, _ := s.lastStage.Load().(string)
	transitioned := stage != prevStage
	if transitioned {
		s.lastStage.Store(stage)
	}

	if !force && !transitioned && !s.progressLimiter.Allow() {
		return
	}

	overallTotal := c.conversionsTotal + c.thumbOutstanding + c.metaOutstanding
	overallDone := c.conversionsDone + c.thumbsDone + c.metaDone
	progress := 100
	if overallTotal > 0 {
		progress = int((overallDone * 100) / overallTotal)
		if progress > 100 {
			progress = 100
		}
	}

	var stageCompleted, stageTotal int64
	switch stage {
	case "conversion":
		stageCompleted, stageTotal = c.conversionsDone, c.conversionsTotal
	case "thumbnails":
		stageCompleted, stageTotal = c.thumbsDone, c.thumbsDone+c.thumbOutstanding
	case "metadata":
		stageCompleted, stageTotal = c.metaDone, c.metaDone+c.metaOutstanding
	}

	s.sink.EmitPreloadProgress(events.PreloadProgress{
		Stage:            stage,
		StageCompleted:   stageCompleted,
		StageTotal:       stageTotal,
		OverallCompleted: overallDone,
		OverallTotal:     overallTotal,
		Progress:         progress,
		Conversions:      c.conversionsDone,
		Thumbnails:       c.thumbsDone,
		Metadata:         c.metaDone,
		ActiveActions:    activeActions(c),
	})
}

func (s *Scheduler) emitHashProgress() {
	s.sink.EmitHashProgress(events.HashProgress{
		Completed: atomic.LoadInt64(&s.hashDone),
		Total:     atomic.LoadInt64(&s.hashTotal),
	})
}
