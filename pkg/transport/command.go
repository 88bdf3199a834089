package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	mcperrors "github.com/Rheron1848/mcprt/pkg/errors"
	"github.com/Rheron1848/mcprt/pkg/logging"
)

// DefaultGracePeriod is how long Close waits for a child to exit on its own
// after its stdin was closed.
const DefaultGracePeriod = 5 * time.Second

// CommandTransport launches a server process and talks to it over the
// process's stdin and stdout. Lines the child writes to stderr are forwarded
// to the logger.
type CommandTransport struct {
	*StdioTransport

	cmd    *exec.Cmd
	logger logging.Logger
	grace  time.Duration

	group    *errgroup.Group
	exited   chan struct{}
	stopping atomic.Bool

	closeOnce sync.Once
	closeErr  error
}

// CommandOption configures a CommandTransport
type CommandOption func(*commandConfig)

type commandConfig struct {
	logger logging.Logger
	env    []string
	dir    string
	grace  time.Duration
}

// WithCommandLogger sets the logger receiving the child's stderr
func WithCommandLogger(logger logging.Logger) CommandOption {
	return func(c *commandConfig) {
		c.logger = logger
	}
}

// WithEnv appends environment variables to the child's inherited environment
func WithEnv(env ...string) CommandOption {
	return func(c *commandConfig) {
		c.env = append(c.env, env...)
	}
}

// WithDir sets the child's working directory
func WithDir(dir string) CommandOption {
	return func(c *commandConfig) {
		c.dir = dir
	}
}

// WithGracePeriod sets how long Close waits before killing the child
func WithGracePeriod(d time.Duration) CommandOption {
	return func(c *commandConfig) {
		c.grace = d
	}
}

// NewCommandTransport starts command with args. The process is killed when
// ctx is cancelled.
func NewCommandTransport(ctx context.Context, command string, args []string, opts ...CommandOption) (*CommandTransport, error) {
	if command == "" {
		return nil, mcperrors.TransportError(string(TypeCommand), "start", errors.New("command is required"))
	}

	cfg := commandConfig{grace: DefaultGracePeriod}
	for _, opt := range opts {
		opt(&cfg)
	}
	logger := logging.OrGlobal(cfg.logger).WithFields(
		logging.String("transport", string(TypeCommand)),
		logging.String("command", command),
	)

	cmd := exec.CommandContext(ctx, command, args...)
	if len(cfg.env) > 0 {
		cmd.Env = append(os.Environ(), cfg.env...)
	}
	cmd.Dir = cfg.dir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, mcperrors.TransportError(string(TypeCommand), "stdin_pipe", err)
	}

	// exec copies into these pipes and Wait returns only after the copies
	// finish, so no output is lost when the child exits.
	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return nil, mcperrors.TransportError(string(TypeCommand), "start", err)
	}
	logger.Debug("Started server process", logging.Int("pid", cmd.Process.Pid))

	t := &CommandTransport{
		StdioTransport: NewStdioTransport(stdoutR, stdin, withName(TypeCommand), WithStdioLogger(logger)),
		cmd:            cmd,
		logger:         logger,
		grace:          cfg.grace,
		group:          &errgroup.Group{},
		exited:         make(chan struct{}),
	}

	t.group.Go(func() error {
		scanner := bufio.NewScanner(stderrR)
		for scanner.Scan() {
			t.logger.Info("Server stderr", logging.String("line", scanner.Text()))
		}
		return nil
	})

	t.group.Go(func() error {
		defer close(t.exited)
		err := cmd.Wait()
		_ = stdoutW.Close()
		_ = stderrW.Close()

		if err != nil && !t.stopping.Load() {
			t.logger.WithError(err).Warn("Server process exited")
			return fmt.Errorf("server process: %w", err)
		}
		t.logger.Debug("Server process exited")
		return nil
	})

	return t, nil
}

// Pid returns the child's process id
func (t *CommandTransport) Pid() int {
	return t.cmd.Process.Pid
}

// Exited is closed once the child has exited
func (t *CommandTransport) Exited() <-chan struct{} {
	return t.exited
}

// Close closes the child's stdin and waits for it to exit. A child still
// running after the grace period is killed.
func (t *CommandTransport) Close() error {
	t.closeOnce.Do(func() {
		var result *multierror.Error
		t.stopping.Store(true)

		if err := t.StdioTransport.Close(); err != nil {
			result = multierror.Append(result, err)
		}

		select {
		case <-t.exited:
		case <-time.After(t.grace):
			t.logger.Warn("Server process did not exit, killing it", logging.Duration("grace", t.grace))
			if err := t.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				result = multierror.Append(result, err)
			}
			<-t.exited
		}

		if err := t.group.Wait(); err != nil {
			result = multierror.Append(result, err)
		}
		t.closeErr = result.ErrorOrNil()
	})
	return t.closeErr
}
