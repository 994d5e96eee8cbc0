package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/gridsync/gridsync/internal/record"
	enginesync "github.com/gridsync/gridsync/internal/sync"
)

func startTestServer(t *testing.T) *Server {
	t.Helper()

	s := NewServer(&Config{
		Port:   0, // pick a free port
		Logger: log.New(io.Discard, "", 0),
	})
	if err := s.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Stop(); err != nil {
			t.Errorf("failed to stop server: %v", err)
		}
	})
	return s
}

// loopbackAddr rewrites the listener address (typically "[::]:PORT") to a
// dialable loopback host.
func loopbackAddr(t *testing.T, s *Server) string {
	t.Helper()

	_, port, err := net.SplitHostPort(s.GetAddr())
	if err != nil {
		t.Fatalf("failed to parse server address %q: %v", s.GetAddr(), err)
	}
	return net.JoinHostPort("127.0.0.1", port)
}

func TestHealthEndpoint(t *testing.T) {
	s := startTestServer(t)

	resp, err := http.Get(fmt.Sprintf("http://%s/health", loopbackAddr(t, s)))
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		Status  string `json:"status"`
		Clients int    `json:"clients"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode health body: %v", err)
	}
	if body.Status != "ok" || body.Clients != 0 {
		t.Errorf("health = %+v, want ok with 0 clients", body)
	}
}

func TestWebSocketReceivesBroadcast(t *testing.T) {
	s := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, fmt.Sprintf("ws://%s/ws", loopbackAddr(t, s)), nil)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// First frame is the welcome stats baseline.
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("failed to read welcome: %v", err)
	}
	var welcome Message
	if err := json.Unmarshal(data, &welcome); err != nil {
		t.Fatalf("failed to decode welcome: %v", err)
	}
	if welcome.Type != MessageTypeStats {
		t.Errorf("welcome type = %s, want %s", welcome.Type, MessageTypeStats)
	}

	if s.ClientCount() != 1 {
		t.Errorf("client count = %d, want 1", s.ClientCount())
	}

	payload, _ := json.Marshal(CommitData{Collection: "tasks", Records: 3})
	s.Broadcast(Message{Type: MessageTypeCommit, Data: payload})

	_, data, err = conn.Read(ctx)
	if err != nil {
		t.Fatalf("failed to read broadcast: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("failed to decode broadcast: %v", err)
	}
	if msg.Type != MessageTypeCommit {
		t.Errorf("type = %s, want %s", msg.Type, MessageTypeCommit)
	}
	if msg.Timestamp.IsZero() {
		t.Errorf("broadcast timestamp not stamped")
	}
	var commit CommitData
	if err := json.Unmarshal(msg.Data, &commit); err != nil {
		t.Fatalf("failed to decode commit data: %v", err)
	}
	if commit.Collection != "tasks" || commit.Records != 3 {
		t.Errorf("commit data = %+v", commit)
	}
}

func TestHandlerStats(t *testing.T) {
	s := startTestServer(t)
	h := NewHandler(s, log.New(io.Discard, "", 0))

	h.OnCommit("tasks", &enginesync.CommitResult{Records: 4, Conflicts: 1, Attempts: 2}, nil)
	h.OnCommit("orders", nil, errors.New("write failed"))
	h.OnConflicts("tasks", []enginesync.Conflict{
		{
			Local:  &record.Record{ID: "t-1", Version: 2},
			Remote: &record.Record{ID: "t-1", Version: 5},
		},
	})

	stats := h.Stats()
	if stats.Commits != 1 || stats.FailedCommits != 1 {
		t.Errorf("commits = %d failed = %d, want 1 and 1", stats.Commits, stats.FailedCommits)
	}
	if stats.Records != 4 {
		t.Errorf("records = %d, want 4", stats.Records)
	}
	if stats.Conflicts != 1 {
		t.Errorf("conflicts = %d, want 1", stats.Conflicts)
	}
}

func TestHandlerEventsReachClients(t *testing.T) {
	s := startTestServer(t)
	h := NewHandler(s, log.New(io.Discard, "", 0))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, fmt.Sprintf("ws://%s/ws", loopbackAddr(t, s)), nil)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Drain the welcome frame.
	if _, _, err := conn.Read(ctx); err != nil {
		t.Fatalf("failed to read welcome: %v", err)
	}

	h.OnCommit("tasks", &enginesync.CommitResult{Records: 2, Duration: 42 * time.Millisecond}, nil)

	// OnCommit broadcasts the commit followed by updated stats.
	types := []MessageType{}
	for i := 0; i < 2; i++ {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("failed to read frame %d: %v", i, err)
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("failed to decode frame %d: %v", i, err)
		}
		types = append(types, msg.Type)
	}
	if types[0] != MessageTypeCommit || types[1] != MessageTypeStats {
		t.Errorf("frame types = %v, want [commit_complete stats]", types)
	}
}
