package orchestrator

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"

	"navi/pkg/protocol"
)

// maxCommandLine bounds one client command line (prompts can be large).
const maxCommandLine = 4 * 1024 * 1024

// Serve accepts client connections on a Unix domain socket until ctx is
// done. A stale socket file from a previous run is removed first.
func (o *Orchestrator) Serve(ctx context.Context) error {
	if err := os.Remove(o.cfg.SocketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale socket: %w", err)
	}
	ln, err := net.Listen("unix", o.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", o.cfg.SocketPath, err)
	}
	defer func() { _ = ln.Close() }()

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	var wg sync.WaitGroup
	for {
		netConn, err := ln.Accept()
		if err != nil {
			wg.Wait()
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Unblock the read loop on shutdown: a client sitting idle on an
			// open connection must not hold the daemon up.
			readDone := make(chan struct{})
			go func() {
				select {
				case <-ctx.Done():
					_ = netConn.Close()
				case <-readDone:
				}
			}()
			o.serveConn(ctx, netConn)
			close(readDone)
		}()
	}
}

// serveConn reads line-delimited commands from one client until it hangs up.
// Closing the connection never kills subprocesses: sessions bound to it are
// detached and stay runnable for a later attach.
func (o *Orchestrator) serveConn(ctx context.Context, netConn net.Conn) {
	conn := newJSONConn(netConn)
	defer func() {
		o.Disconnect(conn)
		_ = netConn.Close()
	}()

	scanner := bufio.NewScanner(netConn)
	scanner.Buffer(make([]byte, 64*1024), maxCommandLine)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var cmd protocol.Command
		if err := json.Unmarshal(line, &cmd); err != nil {
			o.logger.Warn("dropping malformed command", "err", err)
			continue
		}
		o.HandleCommand(ctx, conn, cmd)
	}
	if err := scanner.Err(); err != nil {
		o.logger.Debug("client connection closed", "err", err)
	}
}

// jsonConn is a ClientConn writing line-delimited JSON events. Sends are
// serialized so concurrent session goroutines cannot interleave lines.
type jsonConn struct {
	mu sync.Mutex
	w  net.Conn
}

func newJSONConn(w net.Conn) *jsonConn {
	return &jsonConn{w: w}
}

// Send implements ClientConn.
func (c *jsonConn) Send(ev protocol.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	data = append(data, '\n')
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.w.Write(data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}
