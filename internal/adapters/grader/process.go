package grader

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/okian/arenagrade/internal/domain/model"
	"github.com/okian/arenagrade/pkg/logger"
)

const (
	maxLineSize = 1 << 20
	stderrTail  = 512

	// waitDelay bounds how long a killed grader may keep its pipes open.
	waitDelay = 2 * time.Second
)

// Process is a Grader running an external executable as
//
//	<command> <args...> <problemPath> <submissionDir>
//
// Submission files are written to submissionDir as <field>.<file name>.
// Every stdout line is one JSON event.
type Process struct {
	command string
	args    []string
	timeout time.Duration
	tempDir string
	logger  logger.Logger
}

// ProcessOption configures a Process grader.
type ProcessOption func(*Process)

// WithArgs sets arguments placed before the problem path.
func WithArgs(args ...string) ProcessOption {
	return func(p *Process) { p.args = append([]string(nil), args...) }
}

// WithTimeout bounds the run time of one evaluation.
func WithTimeout(d time.Duration) ProcessOption {
	return func(p *Process) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithTempDir sets where submission directories are created.
func WithTempDir(dir string) ProcessOption {
	return func(p *Process) { p.tempDir = dir }
}

// NewProcess creates a process grader for command.
func NewProcess(command string, opts ...ProcessOption) *Process {
	p := &Process{command: command, logger: logger.Get().Named("grader")}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Process) Evaluate(ctx context.Context, problemPath string, content model.Content) (Stream, error) {
	if p.command == "" {
		return nil, ErrNoCommand
	}
	dir, err := os.MkdirTemp(p.tempDir, "submission-*")
	if err != nil {
		return nil, fmt.Errorf("create submission dir: %w", err)
	}
	if err := materialize(dir, content); err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if p.timeout > 0 {
		runCtx, cancel = context.WithTimeoutCause(ctx, p.timeout, ErrGraderTimeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	args := append(append([]string(nil), p.args...), problemPath, dir)
	cmd := exec.CommandContext(runCtx, p.command, args...)
	setProcessGroup(cmd)
	cmd.WaitDelay = waitDelay
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("grader stdout: %w", err)
	}
	st := &processStream{
		cmd:     cmd,
		runCtx:  runCtx,
		cancel:  cancel,
		timeout: p.timeout,
		dir:     dir,
		lines:   make(chan model.Payload),
	}
	cmd.Stderr = &st.stderr
	if err := cmd.Start(); err != nil {
		cancel()
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("start grader: %w", err)
	}
	p.logger.Debug(ctx, "grader started",
		logger.String("command", p.command),
		logger.String("problem", problemPath),
		logger.Int("pid", cmd.Process.Pid),
	)
	go st.scan(runCtx, stdout)
	return st, nil
}

// materialize writes the submission files into dir.
func materialize(dir string, content model.Content) error {
	for _, f := range content.Fields {
		name := filepath.Base(f.Field) + "." + filepath.Base(f.File.Name)
		if err := os.WriteFile(filepath.Join(dir, name), f.File.Content, 0o600); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}

type processStream struct {
	cmd     *exec.Cmd
	runCtx  context.Context
	cancel  context.CancelFunc
	timeout time.Duration
	dir     string
	lines   chan model.Payload
	stderr  bytes.Buffer

	scanErr   error
	waitOnce  sync.Once
	waitErr   error
	closeOnce sync.Once
}

func (s *processStream) scan(ctx context.Context, r io.Reader) {
	defer close(s.lines)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		select {
		case s.lines <- model.DecodeGraderLine(line):
		case <-ctx.Done():
			return
		}
	}
	// A grader left blocked on a full pipe would never exit.
	if err := sc.Err(); err != nil {
		s.scanErr = err
		s.cancel()
	}
}

func (s *processStream) Next(ctx context.Context) (model.Payload, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case p, ok := <-s.lines:
		if ok {
			return p, nil
		}
		return nil, s.wait()
	case <-s.runCtx.Done():
		return nil, s.wait()
	}
}

// wait reaps the process and maps its outcome. It returns within waitDelay
// of the process group being killed.
func (s *processStream) wait() error {
	s.waitOnce.Do(func() {
		err := s.cmd.Wait()
		for range s.lines { //nolint:revive // the scanner owns scanErr until it exits
		}
		switch {
		case errors.Is(context.Cause(s.runCtx), ErrGraderTimeout):
			s.waitErr = fmt.Errorf("%w after %s: %s", ErrGraderTimeout, s.timeout, tail(s.stderr.Bytes()))
		case s.scanErr != nil:
			s.waitErr = fmt.Errorf("read grader output: %w", s.scanErr)
		case err != nil:
			s.waitErr = fmt.Errorf("%w: %w: %s", ErrGraderExit, err, tail(s.stderr.Bytes()))
		case s.runCtx.Err() != nil:
			s.waitErr = fmt.Errorf("grader cancelled: %w", s.runCtx.Err())
		default:
			s.waitErr = io.EOF
		}
	})
	return s.waitErr
}

func (s *processStream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		_ = s.wait()
		_ = os.RemoveAll(s.dir)
	})
	return nil
}

func tail(b []byte) string {
	b = bytes.TrimSpace(b)
	if len(b) > stderrTail {
		b = b[len(b)-stderrTail:]
	}
	return string(b)
}
