// Package room237 wires every component into a single long-lived
// Engine, the library-level equivalent of CineVault's api.Server: one
// constructor call gets a caller (the CLI, or a future embedder) a
// ready-to-use catalog, scheduler, and duplicate finder sharing the
// same configuration and event sink.
package room237

import (
	"github.com/beveiled/room237/internal/catalog"
	"github.com/beveiled/room237/internal/config"
	"github.com/beveiled/room237/internal/dedupe"
	"github.com/beveiled/room237/internal/events"
	"github.com/beveiled/room237/internal/mediaprobe"
	"github.com/beveiled/room237/internal/phash"
	"github.com/beveiled/room237/internal/procrun"
	"github.com/beveiled/room237/internal/scheduler"
	"github.com/beveiled/room237/internal/thumbnail"
)

// Engine owns one instance of every component, all sharing one
// configuration and one process-group subprocess runner.
type Engine struct {
	Cfg *config.Config

	Runner    procrun.Runner
	Extractor *mediaprobe.Extractor
	Thumbs    *thumbnail.Generator
	Hasher    *phash.Hasher
	Scheduler *scheduler.Scheduler
	Catalog   *catalog.Service
	Dedupe    *dedupe.Finder

	hub *events.WSHub
}

// New constructs a fully wired Engine. Its scheduler emits events to a
// WebSocket hub that New creates itself; the returned Engine exposes it
// so callers can mount it on an HTTP server later.
func New(cfg *config.Config) *Engine {
	runner := procrun.NewProcessGroupRunner()
	extractor := mediaprobe.New(runner, cfg)
	thumbs := thumbnail.New(runner, cfg)
	hasher := phash.New(cfg, thumbs)
	hub := events.NewWSHub()
	sched := scheduler.New(cfg, hub, extractor, thumbs, hasher)
	cat := catalog.New(cfg, sched, thumbs, extractor)
	dedup := dedupe.New(cfg, sched)

	return &Engine{
		Cfg:       cfg,
		Runner:    runner,
		Extractor: extractor,
		Thumbs:    thumbs,
		Hasher:    hasher,
		Scheduler: sched,
		Catalog:   cat,
		Dedupe:    dedup,
		hub:       hub,
	}
}

// Hub exposes the progress-event WebSocket hub for mounting on an HTTP
// mux (e.g. "/ws" -> engine.Hub()).
func (e *Engine) Hub() *events.WSHub {
	return e.hub
}

// Shutdown stops background work owned by the engine (the scheduler's
// stale-lock reaper). It does not touch worker goroutines, which keep
// running and wait for new work once their queues empty.
func (e *Engine) Shutdown() {
	e.Scheduler.Shutdown()
}
