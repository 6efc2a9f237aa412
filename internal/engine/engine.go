// Package engine runs the frame pipeline: ingest, score, alert, extract,
// retain, notify. Ingestion and scoring happen on one goroutine; clip
// extraction and notification dispatch run on their own goroutines so they
// never stall frame capture.
package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vigilcam/vigil-agent/internal/alert"
	"github.com/vigilcam/vigil-agent/internal/clip"
	"github.com/vigilcam/vigil-agent/internal/config"
	"github.com/vigilcam/vigil-agent/internal/frame"
	"github.com/vigilcam/vigil-agent/internal/motion"
	"github.com/vigilcam/vigil-agent/internal/notify"
	"github.com/vigilcam/vigil-agent/internal/retention"
	"github.com/vigilcam/vigil-agent/internal/source"
)

const (
	commandQueueSize = 16
	notifyQueueSize  = 8

	// shutdownGrace bounds how long an in-flight extraction may run after
	// the capture loop has stopped.
	shutdownGrace = 10 * time.Second
)

// CommandType is an inbound on-demand request serviced by the processing
// stage. Commands bypass the alert state machine.
type CommandType int

const (
	// CommandSnapshot captures the latest frame and sends it as a photo.
	CommandSnapshot CommandType = iota
	// CommandClip extracts the most recent DurationSecs of the buffer with
	// a synthetic trigger at the current stream time.
	CommandClip
)

// Command is one inbound request.
type Command struct {
	Type         CommandType
	DurationSecs float64
}

// Status is a point-in-time view of the pipeline for the API.
type Status struct {
	State           string         `json:"state"`
	FramesProcessed int64          `json:"frames_processed"`
	FramesDropped   int64          `json:"frames_dropped"`
	BufferLen       int            `json:"buffer_len"`
	BufferCap       int            `json:"buffer_cap"`
	Extracting      bool           `json:"extracting"`
	LastEvent       motion.Event   `json:"last_event"`
	Scores          motion.Summary `json:"scores"`
}

// Engine wires the pipeline together and owns its goroutines.
type Engine struct {
	cfg       *config.Config
	src       source.Source
	buf       *frame.Buffer
	scorer    *motion.Scorer
	debouncer *motion.Debouncer
	stats     *motion.Stats
	machine   *alert.Machine
	extractor *clip.Extractor
	retention *retention.Manager
	notifier  notify.Notifier
	logger    *slog.Logger

	commands chan Command
	notifyCh chan notifyTask

	// pending holds a fired trigger until the buffer contains the full
	// post-roll; the cooldown guarantees at most one is outstanding.
	pending    *alert.Trigger
	extracting atomic.Bool
	wg         sync.WaitGroup

	machineMu sync.Mutex
	lastEvent motion.Event

	framesProcessed atomic.Int64
	framesDropped   atomic.Int64
	lastTS          float64
	seen            bool
}

type notifyTask struct {
	photoPath string
	clipFile  *clip.File
}

// New creates an engine from the validated configuration and its
// collaborators.
func New(cfg *config.Config, src source.Source, encoder clip.Encoder,
	ret *retention.Manager, notifier notify.Notifier, logger *slog.Logger) *Engine {

	model := motion.NewBackground(cfg.FrameWidth, cfg.FrameHeight)
	return &Engine{
		cfg:       cfg,
		src:       src,
		buf:       frame.NewBuffer(cfg.BufferCapacity()),
		scorer:    motion.NewScorer(model, cfg),
		debouncer: motion.NewDebouncer(cfg.MinMotionFrames),
		stats:     motion.NewStats(4 * cfg.FPS * 60),
		machine:   alert.New(cfg, logger),
		extractor: clip.NewExtractor(cfg, encoder, logger),
		retention: ret,
		notifier:  notifier,
		logger:    logger,
		commands:  make(chan Command, commandQueueSize),
		notifyCh:  make(chan notifyTask, notifyQueueSize),
	}
}

// Enqueue submits an inbound command. It never blocks; a full queue is
// reported to the caller.
func (e *Engine) Enqueue(cmd Command) error {
	select {
	case e.commands <- cmd:
		return nil
	default:
		return fmt.Errorf("engine: command queue full")
	}
}

// Status reports the current pipeline state.
func (e *Engine) Status() Status {
	e.machineMu.Lock()
	state := e.machine.State().String()
	lastEvent := e.lastEvent
	e.machineMu.Unlock()
	return Status{
		State:           state,
		LastEvent:       lastEvent,
		FramesProcessed: e.framesProcessed.Load(),
		FramesDropped:   e.framesDropped.Load(),
		BufferLen:       e.buf.Len(),
		BufferCap:       e.buf.Cap(),
		Extracting:      e.extracting.Load(),
		Scores:          e.stats.Summarize(),
	}
}

// Run drives the pipeline until ctx is canceled or the stream ends. On
// return all buffer mutation has stopped and any in-flight extraction has
// finished or been abandoned within the shutdown grace period.
func (e *Engine) Run(ctx context.Context) error {
	// Extraction outlives ctx by the grace period so an alert clip caught
	// mid-encode is not lost to shutdown.
	extractCtx, cancelExtract := context.WithCancel(context.Background())
	defer cancelExtract()

	dispatchDone := make(chan struct{})
	go e.dispatchNotifications(extractCtx, dispatchDone)

	e.logger.Info("pipeline started",
		"buffer_capacity", e.buf.Cap(),
		"fps", e.cfg.FPS,
		"sensitivity", e.cfg.Sensitivity,
	)

loop:
	for {
		if err := ctx.Err(); err != nil {
			break loop
		}

		f, err := e.src.NextFrame(ctx)
		switch {
		case err == nil:
			e.process(extractCtx, f)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			break loop
		case errors.Is(err, source.ErrEndOfStream):
			e.logger.Info("frame source ended")
			e.flushPending(extractCtx)
			break loop
		case errors.Is(err, source.ErrNoFrame):
			// Recoverable input gap: hold state, wait for the next tick.
			e.logger.Debug("no frame this tick", "error", err)
		default:
			e.logger.Warn("frame source error", "error", err)
		}

		e.serviceCommands(extractCtx)
	}

	e.logger.Info("capture loop stopped, waiting for in-flight work",
		"grace", shutdownGrace)

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownGrace):
		e.logger.Warn("abandoning in-flight extraction after grace period")
		cancelExtract()
		<-done
	}

	close(e.notifyCh)
	<-dispatchDone

	e.logger.Info("pipeline stopped",
		"frames_processed", e.framesProcessed.Load(),
		"frames_dropped", e.framesDropped.Load(),
	)
	return nil
}

// process appends one frame, scores it, and advances the alert machine.
func (e *Engine) process(extractCtx context.Context, f frame.Frame) {
	if e.seen && f.Timestamp < e.lastTS {
		// Frame-source fault; the buffer's ordering invariant comes first.
		e.framesDropped.Add(1)
		e.logger.Warn("dropping frame with non-monotonic timestamp",
			"timestamp", f.Timestamp, "last_timestamp", e.lastTS)
		return
	}
	e.lastTS = f.Timestamp
	e.seen = true

	e.buf.Append(f)
	e.framesProcessed.Add(1)

	ev := e.scorer.Score(&f)
	e.stats.Record(ev.Score)
	confirmed := e.debouncer.Observe(ev.MotionPresent)

	e.machineMu.Lock()
	e.lastEvent = ev
	trigger, fired := e.machine.Update(ev.Timestamp, confirmed)
	e.machineMu.Unlock()

	if fired {
		e.logger.Info("alert triggered",
			"trigger_time", trigger.Time, "onset", trigger.Onset, "score", ev.Score)
		// The next confirmation run starts fresh after an alert.
		e.debouncer.Reset()
		e.pending = &trigger
	}

	// The clip window extends past the trigger; wait until the post-roll
	// frames have arrived before slicing. If the previous extraction is
	// still in flight the trigger stays pending and is retried next frame;
	// the buffer is sized to keep its window available for the whole
	// inter-alert gap.
	if e.pending != nil && f.Timestamp >= e.pending.Time+e.cfg.PostRollSecs() {
		if e.startExtraction(extractCtx, e.pending.Time) {
			e.pending = nil
		}
	}
}

// flushPending extracts a still-waiting trigger with whatever post-roll the
// buffer holds, so a stream that dies right after an alert still yields a
// clip.
func (e *Engine) flushPending(extractCtx context.Context) {
	if e.pending == nil {
		return
	}
	trigger := *e.pending
	e.pending = nil
	e.logger.Info("extracting pending alert with truncated post-roll",
		"trigger_time", trigger.Time)
	if !e.startExtraction(extractCtx, trigger.Time) {
		e.logger.Warn("dropping pending alert, extraction already in flight",
			"trigger_time", trigger.Time)
	}
}

// startExtraction runs the alert extraction on its own goroutine over a
// snapshot slice. At most one extraction runs at a time; it reports false
// when one is already in flight.
func (e *Engine) startExtraction(ctx context.Context, triggerTime float64) bool {
	if !e.extracting.CompareAndSwap(false, true) {
		e.logger.Debug("extraction already in progress, deferring trigger",
			"trigger_time", triggerTime)
		return false
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.extracting.Store(false)

		cf, err := e.extractor.Extract(ctx, e.buf, triggerTime)
		if err != nil {
			// Non-fatal: no clip for this trigger, pipeline keeps running.
			e.logger.Error("clip extraction failed", "trigger_time", triggerTime, "error", err)
			return
		}
		e.finishClip(ctx, cf)
	}()
	return true
}

func (e *Engine) finishClip(ctx context.Context, cf *clip.File) {
	if err := e.retention.Store(ctx, cf); err != nil {
		e.logger.Error("failed to store clip", "path", cf.Path, "error", err)
		return
	}
	e.queueNotify(notifyTask{clipFile: cf})
}

// serviceCommands drains the inbound command queue without blocking the
// frame loop.
func (e *Engine) serviceCommands(extractCtx context.Context) {
	for {
		select {
		case cmd := <-e.commands:
			switch cmd.Type {
			case CommandSnapshot:
				e.handleSnapshot()
			case CommandClip:
				e.handleClipNow(extractCtx, cmd.DurationSecs)
			default:
				e.logger.Warn("unknown command type", "type", int(cmd.Type))
			}
		default:
			return
		}
	}
}

func (e *Engine) handleSnapshot() {
	f, ok := e.buf.Latest()
	if !ok {
		e.logger.Warn("snapshot requested with no buffered frames")
		return
	}
	path, err := e.writeSnapshot(&f)
	if err != nil {
		e.logger.Error("failed to write snapshot", "error", err)
		return
	}
	e.logger.Info("snapshot captured", "path", path, "timestamp", f.Timestamp)
	e.queueNotify(notifyTask{photoPath: path})
}

// handleClipNow services an on-demand clip request with a synthetic
// trigger at the current stream time, bypassing the alert machine.
func (e *Engine) handleClipNow(ctx context.Context, duration float64) {
	f, ok := e.buf.Latest()
	if !ok {
		e.logger.Warn("clip requested with no buffered frames")
		return
	}
	if duration <= 0 {
		duration = e.cfg.VideoLengthSecs
	}
	if !e.extracting.CompareAndSwap(false, true) {
		e.logger.Warn("extraction already in progress, dropping clip command")
		return
	}
	now := f.Timestamp
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.extracting.Store(false)

		cf, err := e.extractor.ExtractLast(ctx, e.buf, now, duration)
		if err != nil {
			e.logger.Error("on-demand clip failed", "error", err)
			return
		}
		e.finishClip(ctx, cf)
	}()
}

func (e *Engine) writeSnapshot(f *frame.Frame) (string, error) {
	dir := filepath.Join(e.cfg.DataDir, "snapshots")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	img := &image.Gray{
		Pix:    f.Pixels,
		Stride: f.Width,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
	path := filepath.Join(dir, fmt.Sprintf("snap_%013d.png", int64(f.Timestamp*1000)))
	out, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer out.Close()
	if err := png.Encode(out, img); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

// queueNotify hands a task to the dispatcher. A full queue drops the task:
// notification must never stall the pipeline.
func (e *Engine) queueNotify(t notifyTask) {
	select {
	case e.notifyCh <- t:
	default:
		e.logger.Warn("notify queue full, dropping notification")
	}
}

func (e *Engine) dispatchNotifications(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	for t := range e.notifyCh {
		var err error
		switch {
		case t.clipFile != nil:
			err = e.notifier.SendClip(ctx, t.clipFile)
		case t.photoPath != "":
			err = e.notifier.SendPhoto(ctx, t.photoPath, "snapshot")
		}
		if err != nil {
			// Delivery already retried inside the notifier; log and move on.
			e.logger.Error("notification failed", "error", err)
		}
	}
}
