// Package rebuild implements the rebuild supervisor (spec component
// C11): idle -> running -> {completed | failed} -> idle, with a
// full-rebuild path that supervises a child process and an incremental
// path that runs in-process. Grounded on the teacher's runner.go
// progress/checkpoint plumbing (since absorbed into internal/index) for
// the status-record update pattern and github.com/gofrs/flock for
// single-flight serialization across processes. The dirty-flag file is
// watched by the serve command, which calls TriggerIngest on changes.
package rebuild

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/dzheng/digitalmemory/internal/index"
	"github.com/dzheng/digitalmemory/internal/memerr"
	"github.com/dzheng/digitalmemory/internal/store"
)

// HardTimeout bounds a full rebuild child process (spec section 4.11).
const HardTimeout = 10 * time.Minute

// maxStderrCapture truncates the captured stderr tail on failure.
const maxStderrCapture = 4096

// FullRebuildCommand describes how to launch the full indexer as a
// child process.
type FullRebuildCommand struct {
	Path string
	Args []string
}

// Supervisor owns the single-flight rebuild state machine.
type Supervisor struct {
	deps       index.Dependencies
	fullCmd    FullRebuildCommand
	statusPath string
	dirtyFlag  *store.DirtyFlag
	lock       *flock.Flock
	logger     *slog.Logger

	mu      sync.Mutex
	running bool
	pending string // "", "incremental", or "full" — replaced by new triggers, never by the running job
}

func New(deps index.Dependencies, fullCmd FullRebuildCommand, lockPath string, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		deps:       deps,
		fullCmd:    fullCmd,
		statusPath: deps.StatusPath,
		dirtyFlag:  store.NewDirtyFlag(deps.DirtyFlag),
		lock:       flock.New(lockPath),
		logger:     logger,
	}
}

// IsRunning reports the supervisor's current running state.
func (s *Supervisor) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// TriggerIngest is called after a record is appended (spec section 5):
// sets the dirty flag and submits an incremental job.
func (s *Supervisor) TriggerIngest(ctx context.Context) error {
	if err := s.dirtyFlag.Set(); err != nil {
		return err
	}
	s.submit(ctx, "incremental")
	return nil
}

// TriggerPeriodicTick checks the dirty flag; if set, runs a full
// rebuild as a fallback (spec section 4.11).
func (s *Supervisor) TriggerPeriodicTick(ctx context.Context) {
	if !s.dirtyFlag.IsSet() {
		return
	}
	s.submit(ctx, "full")
}

// TriggerManualRebuild is the manual rebuild API (spec section 4.11):
// refuses if a rebuild is already running, otherwise sets the dirty
// flag and submits a full rebuild.
func (s *Supervisor) TriggerManualRebuild(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return memerr.New(memerr.ErrCodeRebuildFailed, "a rebuild is already running", nil)
	}
	s.mu.Unlock()

	if err := s.dirtyFlag.Set(); err != nil {
		return err
	}
	s.submit(ctx, "full")
	return nil
}

// submit enqueues kind as the pending job and starts the worker loop if
// nothing is currently running. A new trigger while a job is running
// replaces the pending slot, never the in-flight job (spec section
// 4.11's concurrency rule).
func (s *Supervisor) submit(ctx context.Context, kind string) {
	s.mu.Lock()
	if s.running {
		s.pending = kind
		s.mu.Unlock()
		return
	}
	s.running = true
	s.pending = ""
	s.mu.Unlock()

	go s.runLoop(ctx, kind)
}

func (s *Supervisor) runLoop(ctx context.Context, kind string) {
	for {
		s.runOne(ctx, kind)

		s.mu.Lock()
		next := s.pending
		s.pending = ""
		if next == "" {
			s.running = false
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
		kind = next
	}
}

func (s *Supervisor) runOne(ctx context.Context, kind string) {
	if err := s.lock.Lock(); err != nil {
		s.logger.Error("failed to acquire rebuild lock", slog.String("error", err.Error()))
		return
	}
	defer s.lock.Unlock()

	var err error
	switch kind {
	case "incremental":
		_, err = index.Incremental(ctx, s.deps)
	case "full":
		err = s.runFullChild(ctx)
	default:
		return
	}

	if err != nil {
		s.logger.Warn("rebuild failed", slog.String("kind", kind), slog.String("error", err.Error()))
		if kind == "full" {
			// A killed, timed-out or unstartable child cannot record its
			// own failure, so the supervisor does it.
			failed := store.Status{State: store.StateFailed, Message: err.Error(), Timestamp: time.Now()}
			if serr := failed.Save(s.statusPath); serr != nil {
				s.logger.Warn("failed to write failed status", slog.String("error", serr.Error()))
			}
		}
		return
	}
	if err := s.dirtyFlag.Clear(); err != nil {
		s.logger.Warn("failed to clear dirty flag after rebuild", slog.String("error", err.Error()))
	}
}

// runFullChild launches the full indexer as a child process, logs each
// line of its stdout, and enforces a hard timeout (spec section 4.11).
// Progress in the status record is written by the child itself; the
// supervisor does not parse the stdout lines.
func (s *Supervisor) runFullChild(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, HardTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.fullCmd.Path, s.fullCmd.Args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return memerr.IOError("attach rebuild child stdout", err)
	}
	var stderrBuf bytes.Buffer
	cmd.Stderr = &boundedWriter{buf: &stderrBuf, max: maxStderrCapture}

	if err := cmd.Start(); err != nil {
		return memerr.New(memerr.ErrCodeRebuildFailed, "failed to start full rebuild child", err)
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := scanner.Text()
		s.logger.Info("rebuild progress", slog.String("line", line))
	}

	waitErr := cmd.Wait()
	if ctx.Err() == context.DeadlineExceeded {
		return memerr.New(memerr.ErrCodeRebuildTimeout,
			fmt.Sprintf("full rebuild exceeded %s", HardTimeout), nil)
	}
	if waitErr != nil {
		return memerr.New(memerr.ErrCodeRebuildFailed,
			fmt.Sprintf("full rebuild child exited with error: %s", stderrBuf.String()), waitErr)
	}
	return nil
}

// boundedWriter caps how much of a stream is retained in memory.
type boundedWriter struct {
	buf *bytes.Buffer
	max int
}

func (w *boundedWriter) Write(p []byte) (int, error) {
	remaining := w.max - w.buf.Len()
	if remaining > 0 {
		if len(p) > remaining {
			w.buf.Write(p[:remaining])
		} else {
			w.buf.Write(p)
		}
	}
	return len(p), nil
}
