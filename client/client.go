// Package client consumes a run's event stream and folds it into conversation
// state. It wires the protocol pipeline end to end: a Source of decoded
// events, the chunks normalizer, the reduce fold and the session store that
// carries thread state across runs.
//
// Each run is consumed by a single goroutine pulling from the Source; the
// only suspension point is waiting for the next frame. Callers must not start
// concurrent runs against the same thread id; thread state follows a
// single-writer discipline that the Runner assumes rather than arbitrates.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"goa.design/clue/log"

	"goa.design/agentwire/chunks"
	"goa.design/agentwire/protocol"
	"goa.design/agentwire/reduce"
	"goa.design/agentwire/session"
	"goa.design/agentwire/telemetry"
)

type (
	// Runner drives run consumption against a session store.
	Runner struct {
		store        session.Store
		metrics      *telemetry.RunMetrics
		frameTimeout time.Duration
	}

	// RunnerOption configures a Runner.
	RunnerOption func(*Runner)

	// SnapshotFunc receives the materialized conversation state after every
	// applied event. Consecutive snapshots may be equal; callers coalesce as
	// they see fit. The callback runs on the consuming goroutine; keep it
	// fast or hand off.
	SnapshotFunc func(reduce.Snapshot)
)

// ErrFrameTimeout reports that the transport produced no frame within the
// configured window. It is treated as a terminal run error, not a protocol
// event.
var ErrFrameTimeout = errors.New("timed out waiting for next frame")

// DefaultFrameTimeout bounds the wait for a single frame.
const DefaultFrameTimeout = 2 * time.Minute

// WithFrameTimeout overrides the per-frame timeout. Zero disables it.
func WithFrameTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) { r.frameTimeout = d }
}

// WithMetrics installs run metrics. Without it the Runner records nothing.
func WithMetrics(m *telemetry.RunMetrics) RunnerOption {
	return func(r *Runner) { r.metrics = m }
}

// NewRunner builds a Runner persisting thread state in store.
func NewRunner(store session.Store, opts ...RunnerOption) (*Runner, error) {
	if store == nil {
		return nil, errors.New("session store is required")
	}
	r := &Runner{store: store, frameTimeout: DefaultFrameTimeout}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run validates the input, folds the source's events into the thread named by
// the input and commits the resulting thread state. It returns the final
// snapshot; when the run aborts (patch failure, protocol violation, timeout)
// the snapshot reflects every event before the failure and the error reports
// the cause.
//
// Cancellation through ctx discards open streaming buffers without closing
// them and skips the commit: the last previously committed thread state
// stands, and the caller may retry the run.
func (r *Runner) Run(ctx context.Context, input protocol.RunAgentInput, src Source, onSnapshot SnapshotFunc) (reduce.Snapshot, error) {
	if err := protocol.ValidateInput(input); err != nil {
		return reduce.Snapshot{}, fmt.Errorf("invalid run input: %w", err)
	}

	thread, err := r.store.Load(ctx, input.ThreadID)
	switch {
	case errors.Is(err, session.ErrThreadNotFound):
		thread = session.NewThread(input.ThreadID)
	case err != nil:
		return reduce.Snapshot{}, fmt.Errorf("load thread %q: %w", input.ThreadID, err)
	}

	// Fold the input's unseen messages into the thread; resubmitted ids are
	// no-ops.
	for _, m := range thread.FilterNew(input.Messages) {
		thread.Messages = append(thread.Messages, m.Clone())
		thread.MarkProcessed(m.ID)
	}
	state := thread.State
	if state == nil {
		state = input.State
	}

	ctx, span := telemetry.StartRun(ctx, input.ThreadID, input.RunID)
	r.metrics.RecordRunStarted(ctx)

	reducer := reduce.New(thread.Messages, state)
	norm := chunks.New()
	snap, runErr := r.consume(ctx, reducer, norm, &thread, src, onSnapshot)
	span.End(runErr)

	if runErr != nil && (errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded)) {
		// Cancelled runs produced no terminal event; the last committed
		// thread state stands and the snapshot is provisional.
		return snap, runErr
	}

	thread.Messages = snap.Messages
	thread.State = snap.State
	for _, m := range snap.Messages {
		thread.MarkProcessed(m.ID)
	}
	thread.UpdatedAt = time.Now().UTC()
	if err := r.store.Save(ctx, thread); err != nil {
		if runErr != nil {
			return snap, runErr
		}
		return snap, fmt.Errorf("commit thread %q: %w", input.ThreadID, err)
	}
	return snap, runErr
}

// consume pulls raw events until the run terminates, normalizing and reducing
// each one, and reports the terminal error when the run failed.
func (r *Runner) consume(ctx context.Context, reducer *reduce.Reducer, norm *chunks.Normalizer, thread *session.Thread, src Source, onSnapshot SnapshotFunc) (reduce.Snapshot, error) {
	defer src.Close() //nolint:errcheck // close is best effort on the read path

	stop := make(chan struct{})
	defer close(stop)
	events := startPump(src, stop)
	var timer *time.Timer
	var timeout <-chan time.Time
	if r.frameTimeout > 0 {
		timer = time.NewTimer(r.frameTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		var item pumpItem
		select {
		case <-ctx.Done():
			norm.Reset()
			reducer.Discard()
			return reducer.Snapshot(), ctx.Err()
		case <-timeout:
			// Transport stall: report as a terminal RUN_ERROR-equivalent so
			// buffers force-close the same way an explicit error would.
			r.applyCanonical(ctx, reducer, thread, &protocol.RunErrorEvent{ //nolint:errcheck // terminal path
				BaseEvent: protocol.BaseEvent{EventType: protocol.EventTypeRunError},
				Message:   ErrFrameTimeout.Error(),
				Code:      "frame_timeout",
			}, onSnapshot)
			r.metrics.RecordRunFailed(ctx, "frame_timeout")
			return reducer.Snapshot(), ErrFrameTimeout
		case item = <-events:
		}

		if item.err != nil {
			if !errors.Is(item.err, io.EOF) {
				if ctx.Err() != nil {
					norm.Reset()
					reducer.Discard()
					return reducer.Snapshot(), ctx.Err()
				}
				log.Error(ctx, item.err, log.KV{K: "msg", V: "event source failed"})
			}
			return r.finish(ctx, reducer, norm, thread, onSnapshot)
		}

		canonical, err := norm.Push(item.evt)
		if err != nil {
			// Malformed chunk stream: the producer is broken, abort the run.
			r.applyCanonical(ctx, reducer, thread, &protocol.RunErrorEvent{ //nolint:errcheck // terminal path
				BaseEvent: protocol.BaseEvent{EventType: protocol.EventTypeRunError},
				Message:   err.Error(),
				Code:      "protocol_violation",
			}, onSnapshot)
			r.metrics.RecordRunFailed(ctx, "protocol_violation")
			return reducer.Snapshot(), err
		}
		for _, evt := range canonical {
			if err := r.applyCanonical(ctx, reducer, thread, evt, onSnapshot); err != nil {
				code := "apply_failed"
				if errors.Is(err, reduce.ErrPatchFailed) {
					code = "patch_failed"
				}
				r.metrics.RecordRunFailed(ctx, code)
				return reducer.Snapshot(), err
			}
		}
		if reducer.Terminal() {
			snap := reducer.Snapshot()
			if snap.Error != nil {
				r.metrics.RecordRunFailed(ctx, snap.Error.Code)
			}
			return snap, nil
		}
		if timer != nil {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(r.frameTimeout)
		}
	}
}

// finish handles the end of the raw sequence: close any chunk-derived streams,
// then treat a missing terminal event as an implicit RUN_ERROR.
func (r *Runner) finish(ctx context.Context, reducer *reduce.Reducer, norm *chunks.Normalizer, thread *session.Thread, onSnapshot SnapshotFunc) (reduce.Snapshot, error) {
	for _, evt := range norm.Flush() {
		r.metrics.RecordForceClose(ctx)
		if err := r.applyCanonical(ctx, reducer, thread, evt, onSnapshot); err != nil {
			return reducer.Snapshot(), err
		}
	}
	if !reducer.Terminal() {
		log.Warn(ctx, log.KV{K: "msg", V: "stream ended without terminal event"})
		reducer.CloseStream()
		r.metrics.RecordRunFailed(ctx, "stream_incomplete")
		if onSnapshot != nil {
			onSnapshot(reducer.Snapshot())
		}
	}
	snap := reducer.Snapshot()
	if snap.Error != nil && snap.Error.Code != "stream_incomplete" {
		r.metrics.RecordRunFailed(ctx, snap.Error.Code)
	}
	return snap, nil
}

// applyCanonical folds one canonical event, updates tool call bookkeeping and
// emits the per-event snapshot.
func (r *Runner) applyCanonical(ctx context.Context, reducer *reduce.Reducer, thread *session.Thread, evt protocol.Event, onSnapshot SnapshotFunc) error {
	switch e := evt.(type) {
	case *protocol.ToolCallStartEvent:
		thread.OpenToolCall(e.ToolCallID)
	case *protocol.ToolCallResultEvent:
		thread.ResolveToolCall(e.ToolCallID)
	}
	if err := reducer.Apply(evt); err != nil {
		return err
	}
	r.metrics.RecordEvent(ctx, string(evt.Type()))
	if onSnapshot != nil {
		onSnapshot(reducer.Snapshot())
	}
	return nil
}
