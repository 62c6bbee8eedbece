// Package redistest runs an ephemeral Redis server for end-to-end tests.
package redistest

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
)

// Server is a throwaway Redis subprocess plus a connected client.
// Each test gets its own instance over a unix socket in a temp dir,
// so parallel test binaries never collide on a port.
type Server struct {
	Client *redis.Client

	cmd  *exec.Cmd
	done chan struct{}
	wg   sync.WaitGroup
	err  error
	mu   sync.Mutex
}

// NewRedis starts a Redis server subprocess and waits until it answers pings.
// The test fails immediately if the binary is missing or never comes up.
func NewRedis(ctx context.Context, t testing.TB) *Server {
	dir := t.TempDir()
	socket := filepath.Join(dir, "redis.sock")
	cmd := exec.CommandContext(ctx, "redis-server",
		"--port", "0",
		"--unixsocket", socket,
		"--unixsocketperm", "700",
		"--loglevel", "verbose")
	cmd.Dir = dir
	cmd.Stdout = &testLogWriter{tb: t, prefix: "redis: "}
	cmd.Stderr = &testLogWriter{tb: t, prefix: "redis: "}
	s := &Server{
		cmd:  cmd,
		done: make(chan struct{}),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(s.done)
		err := cmd.Run()
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
	}()
	s.Client = redis.NewClient(&redis.Options{
		Network: "unix",
		Addr:    socket,
	})
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	var pingErr error
	for try := 0; try < 30; try++ {
		if try > 0 {
			select {
			case <-ticker.C:
			case <-s.done:
				t.Fatal("Redis exited during startup:", s.exitErr())
				return nil
			}
		}
		pingErr = s.Client.Ping(ctx).Err()
		if errors.Is(pingErr, redis.ErrClosed) || errors.Is(pingErr, os.ErrNotExist) {
			continue // socket not created yet
		} else if pingErr != nil {
			t.Fatal("Failed to ping Redis:", pingErr)
			return nil
		}
		return s
	}
	t.Fatal("Redis never came up:", pingErr)
	return nil
}

// Close kills the server and waits for it to exit. Idempotent.
func (s *Server) Close(t testing.TB) {
	_ = s.Client.Close()
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	s.wg.Wait()
}

func (s *Server) exitErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// testLogWriter forwards subprocess output line-by-line to the test log.
type testLogWriter struct {
	tb     testing.TB
	prefix string
	buf    bytes.Buffer
}

func (w *testLogWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			w.buf.WriteString(line)
			break
		}
		w.tb.Log(w.prefix + line[:len(line)-1])
	}
	return len(p), nil
}
