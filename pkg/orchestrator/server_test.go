package orchestrator //nolint:testpackage // white-box tests drive internal handlers directly

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"navi/pkg/protocol"
)

func TestServeRoundTripOverSocket(t *testing.T) {
	t.Parallel()

	sock := filepath.Join(t.TempDir(), "navi.sock")
	e := newTestEnv(t, Config{SocketPath: sock})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	serveDone := make(chan error, 1)
	go func() { serveDone <- e.orch.Serve(ctx) }()

	waitFor(t, func() bool {
		c, err := net.Dial("unix", sock)
		if err != nil {
			return false
		}
		_ = c.Close()
		return true
	}, 2*time.Second)

	conn, err := net.Dial("unix", sock)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close() }()

	cmd, _ := json.Marshal(protocol.Command{
		Type: protocol.CmdQuery, SessionID: "s1", Prompt: "build it",
	})
	if _, err := conn.Write(append(cmd, '\n')); err != nil {
		t.Fatalf("write command: %v", err)
	}

	waitFor(t, func() bool { return e.spawner.spawnCount() == 1 }, 2*time.Second)

	// Worker output flows back over the same connection.
	e.spawner.emit(t, "s1", protocol.Message{
		Type:    protocol.MsgMessage,
		Message: &protocol.MessagePayload{Role: "assistant", Content: "hello"},
	})

	scanner := bufio.NewScanner(conn)
	var ev protocol.Event
	for scanner.Scan() {
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if ev.Type == protocol.EventAssistant {
			break
		}
	}
	if ev.Content != "hello" || ev.SessionID != "s1" {
		t.Fatalf("event = %+v", ev)
	}

	// Malformed lines are dropped without closing the connection.
	if _, err := conn.Write([]byte("not json\n")); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	cancelCmd, _ := json.Marshal(protocol.Command{Type: protocol.CmdCancel, SessionID: "s1"})
	if _, err := conn.Write(append(cancelCmd, '\n')); err != nil {
		t.Fatalf("write cancel: %v", err)
	}
	waitFor(t, func() bool { return e.spawner.proc("s1").wasKilled() }, 2*time.Second)

	cancel()
	select {
	case err := <-serveDone:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not stop on context cancel")
	}
}

func TestServeShutsDownWithIdleClientAttached(t *testing.T) {
	t.Parallel()

	sock := filepath.Join(t.TempDir(), "navi.sock")
	e := newTestEnv(t, Config{SocketPath: sock})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	serveDone := make(chan error, 1)
	go func() { serveDone <- e.orch.Serve(ctx) }()

	waitFor(t, func() bool {
		c, err := net.Dial("unix", sock)
		if err != nil {
			return false
		}
		_ = c.Close()
		return true
	}, 2*time.Second)

	// A client that connects and then goes quiet: its read loop is parked in
	// the scanner with no traffic. Shutdown must still complete.
	conn, err := net.Dial("unix", sock)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close() }()

	cancel()
	select {
	case err := <-serveDone:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("serve hung on shutdown with a client attached")
	}
}

func TestServeRemovesStaleSocket(t *testing.T) {
	t.Parallel()

	sock := filepath.Join(t.TempDir(), "navi.sock")
	// Leave a dead socket file behind, as a crashed daemon would.
	ln, err := net.Listen("unix", sock)
	if err != nil {
		t.Fatalf("pre-listen: %v", err)
	}
	_ = ln.Close()

	e := newTestEnv(t, Config{SocketPath: sock})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	serveDone := make(chan error, 1)
	go func() { serveDone <- e.orch.Serve(ctx) }()

	waitFor(t, func() bool {
		c, err := net.Dial("unix", sock)
		if err != nil {
			return false
		}
		_ = c.Close()
		return true
	}, 2*time.Second)
	cancel()
	if err := <-serveDone; err != nil {
		t.Fatalf("serve: %v", err)
	}
}
