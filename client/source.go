package client

import (
	"context"
	"io"

	"goa.design/agentwire/protocol"
	"goa.design/agentwire/sse"
)

type (
	// Source is an ordered, lazy sequence of decoded protocol events, finite
	// until the run's terminal event. Recv blocks until the next event is
	// available and returns io.EOF at the end of the stream. Transports
	// implement Source; the Runner only consumes it.
	Source interface {
		// Recv returns the next decoded event or io.EOF when the stream ends.
		Recv() (protocol.Event, error)
		// Close releases the underlying transport. Recv calls unblock with an
		// error after Close.
		Close() error
	}

	// EventsSource serves a fixed in-memory event slice. Used by tests and by
	// callers that already hold the full event sequence.
	EventsSource struct {
		events []protocol.Event
		pos    int
	}

	// sseSource adapts an sse.Decoder to the Source interface.
	sseSource struct {
		ctx    context.Context
		dec    *sse.Decoder
		cancel context.CancelFunc
	}

	// pumpItem carries one Recv result across the pump channel.
	pumpItem struct {
		evt protocol.Event
		err error
	}
)

// NewEventsSource returns a Source yielding the given events in order.
func NewEventsSource(events ...protocol.Event) *EventsSource {
	return &EventsSource{events: events}
}

// Recv implements Source.
func (s *EventsSource) Recv() (protocol.Event, error) {
	if s.pos >= len(s.events) {
		return nil, io.EOF
	}
	evt := s.events[s.pos]
	s.pos++
	return evt, nil
}

// Close implements Source.
func (s *EventsSource) Close() error {
	s.pos = len(s.events)
	return nil
}

// NewSSESource returns a Source decoding SSE frames from r. The context bounds
// the lifetime of the source; cancelling it unblocks Recv.
func NewSSESource(ctx context.Context, r io.Reader) Source {
	cctx, cancel := context.WithCancel(ctx)
	return &sseSource{ctx: cctx, dec: sse.NewDecoder(r), cancel: cancel}
}

func (s *sseSource) Recv() (protocol.Event, error) {
	return s.dec.Next(s.ctx)
}

func (s *sseSource) Close() error {
	s.cancel()
	return s.dec.Close()
}

// startPump moves Recv calls onto their own goroutine so the Runner can select
// between the next event, cancellation and the frame timeout. The goroutine
// exits once Recv returns any error or stop closes; Close on the source
// unblocks a pending Recv.
func startPump(src Source, stop <-chan struct{}) <-chan pumpItem {
	ch := make(chan pumpItem)
	go func() {
		defer close(ch)
		for {
			evt, err := src.Recv()
			select {
			case ch <- pumpItem{evt: evt, err: err}:
			case <-stop:
				return
			}
			if err != nil {
				return
			}
		}
	}()
	return ch
}
