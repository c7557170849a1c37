// Command demo runs a complete round trip of the wire protocol in one
// process: it serves a canned agent over HTTP that streams events as SSE,
// then drives the client runner against it and prints each snapshot as the
// conversation takes shape.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"

	"goa.design/clue/log"

	"goa.design/agentwire/client"
	"goa.design/agentwire/patch"
	"goa.design/agentwire/protocol"
	"goa.design/agentwire/reduce"
	"goa.design/agentwire/session/inmem"
	"goa.design/agentwire/sse"
)

func main() {
	ctx := log.Context(context.Background(), log.WithFormat(log.FormatTerminal))
	if err := run(ctx); err != nil {
		log.Errorf(ctx, err, "demo failed")
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	srv := &http.Server{Handler: http.HandlerFunc(serveRun)}
	go srv.Serve(ln) //nolint:errcheck // closed on shutdown
	defer srv.Close()

	agent, err := client.NewHTTPAgent("http://" + ln.Addr().String())
	if err != nil {
		return err
	}

	input := protocol.RunAgentInput{
		ThreadID: "demo-thread",
		Messages: []protocol.Message{
			{ID: "u1", Role: protocol.RoleUser, Content: "What is the answer?"},
		},
	}
	src, err := agent.Start(ctx, input)
	if err != nil {
		return err
	}

	runner, err := client.NewRunner(inmem.New())
	if err != nil {
		return err
	}
	snap, err := runner.Run(ctx, input, src, func(s reduce.Snapshot) {
		fmt.Printf("snapshot: %d message(s), state=%v\n", len(s.Messages), s.State)
	})
	if err != nil {
		return err
	}

	fmt.Println("\nfinal conversation:")
	out, err := json.MarshalIndent(snap.Messages, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// serveRun streams a canned agent turn: a progress activity, a streamed
// assistant message, a tool call with its result, and a state update.
func serveRun(w http.ResponseWriter, req *http.Request) {
	var input protocol.RunAgentInput
	if err := json.NewDecoder(req.Body).Decode(&input); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")

	events := []protocol.Event{
		&protocol.RunStartedEvent{ThreadID: input.ThreadID, RunID: input.RunID},
		&protocol.ActivitySnapshotEvent{
			MessageID:    "act1",
			ActivityType: "progress",
			Content:      map[string]any{"steps": []any{"thinking"}},
		},
		&protocol.TextMessageStartEvent{MessageID: "m1", Role: protocol.RoleAssistant},
		&protocol.TextMessageContentEvent{MessageID: "m1", Delta: "Let me look that up."},
		&protocol.TextMessageEndEvent{MessageID: "m1"},
		&protocol.ToolCallStartEvent{ToolCallID: "c1", ToolCallName: "lookup", ParentMessageID: "m1"},
		&protocol.ToolCallArgsEvent{ToolCallID: "c1", Delta: `{"query":"the answer"}`},
		&protocol.ToolCallEndEvent{ToolCallID: "c1"},
		&protocol.ToolCallResultEvent{MessageID: "m2", ToolCallID: "c1", Content: "42"},
		&protocol.ActivityDeltaEvent{
			MessageID: "act1",
			Patch:     []patch.Operation{{Op: patch.OpAdd, Path: "/steps/-", Value: "done"}},
		},
		&protocol.StateSnapshotEvent{Snapshot: map[string]any{"answer": float64(42)}},
		&protocol.TextMessageStartEvent{MessageID: "m3", Role: protocol.RoleAssistant},
		&protocol.TextMessageContentEvent{MessageID: "m3", Delta: "The answer is 42."},
		&protocol.TextMessageEndEvent{MessageID: "m3"},
		&protocol.RunFinishedEvent{ThreadID: input.ThreadID, RunID: input.RunID},
	}
	for _, evt := range events {
		if err := sse.Encode(w, evt); err != nil {
			return
		}
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}
