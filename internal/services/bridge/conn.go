package bridge

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"kiln/internal/logging"
	"kiln/internal/services"
)

// Conn is the single shared connection to the authoring-tool
// subprocess. At most one request/response exchange is in flight at a
// time, enforced by scoped Session acquisition.
type Conn struct {
	binary  string
	silence bool
	logger  *slog.Logger

	cmd    *exec.Cmd
	writer *bufio.Writer
	reader *bufio.Reader
	closer io.Closer

	// sessions is a one-slot semaphore: holding the token is holding
	// the connection.
	sessions chan struct{}
}

// Option configures the connection.
type Option func(*Conn)

// WithLogger injects a logger for protocol tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Conn) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithSilence controls whether the tool's stderr is discarded.
func WithSilence(silence bool) Option {
	return func(c *Conn) { c.silence = silence }
}

// WithPipes wires the connection to an in-memory peer instead of a
// subprocess (primarily for tests).
func WithPipes(r io.Reader, w io.WriteCloser) Option {
	return func(c *Conn) {
		c.reader = bufio.NewReader(r)
		c.writer = bufio.NewWriter(w)
		c.closer = w
	}
}

// Dial launches the authoring tool and performs the readiness
// handshake. The ctx bounds startup only, not the connection lifetime.
func Dial(ctx context.Context, binary string, opts ...Option) (*Conn, error) {
	conn := &Conn{
		binary:   strings.TrimSpace(binary),
		silence:  true,
		logger:   logging.NewNop(),
		sessions: make(chan struct{}, 1),
	}
	conn.sessions <- struct{}{}
	for _, opt := range opts {
		opt(conn)
	}

	if conn.reader == nil {
		if conn.binary == "" {
			return nil, services.Wrap(services.ErrConfiguration, "bridge", "dial", "no authoring tool binary configured", nil)
		}
		if err := conn.spawn(); err != nil {
			return nil, err
		}
	}

	if err := conn.handshake(ctx); err != nil {
		_ = conn.Shutdown()
		return nil, err
	}
	return conn, nil
}

func (c *Conn) spawn() error {
	cmd := exec.Command(c.binary, "--pipe-mode")
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "bridge", "spawn", "stdin pipe", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "bridge", "spawn", "stdout pipe", err)
	}
	if c.silence {
		cmd.Stderr = nil
	} else {
		cmd.Stderr = os.Stderr
	}
	if err := cmd.Start(); err != nil {
		return services.Wrap(services.ErrExternalTool, "bridge", "spawn", c.binary, err)
	}

	c.cmd = cmd
	c.writer = bufio.NewWriter(stdin)
	c.reader = bufio.NewReader(stdout)
	c.closer = stdin
	return nil
}

func (c *Conn) handshake(ctx context.Context) error {
	type result struct {
		line string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		line, err := c.readLine()
		done <- result{line, err}
	}()

	select {
	case <-ctx.Done():
		return services.Wrap(services.ErrExternalTool, "bridge", "handshake", "tool did not report readiness", ctx.Err())
	case res := <-done:
		if res.err != nil {
			return services.Wrap(services.ErrExternalTool, "bridge", "handshake", "read readiness line", res.err)
		}
		if res.line != "READY" {
			return services.Wrap(services.ErrExternalTool, "bridge", "handshake", fmt.Sprintf("unexpected greeting %q", res.line), nil)
		}
	}
	c.logger.Debug("bridge connected", logging.String(logging.FieldComponent, "bridge"))
	return nil
}

// Acquire takes exclusive ownership of the connection for one scripted
// exchange. The returned session must be closed on every exit path.
func (c *Conn) Acquire(ctx context.Context) (*Session, error) {
	select {
	case <-c.sessions:
		return &Session{conn: c}, nil
	case <-ctx.Done():
		return nil, services.Wrap(services.ErrExternalTool, "bridge", "acquire", "waiting for connection", ctx.Err())
	}
}

// Shutdown asks the tool to quit and releases the pipes. Safe to call
// once regardless of connection health.
func (c *Conn) Shutdown() error {
	if c.writer != nil {
		_ = c.writeLine("QUIT")
	}
	var closeErr error
	if c.closer != nil {
		closeErr = c.closer.Close()
		c.closer = nil
	}
	if c.cmd != nil {
		waited := make(chan error, 1)
		go func() { waited <- c.cmd.Wait() }()
		select {
		case err := <-waited:
			if closeErr == nil {
				closeErr = err
			}
		case <-time.After(5 * time.Second):
			_ = c.cmd.Process.Kill()
			<-waited
			if closeErr == nil {
				closeErr = errors.New("tool did not exit, killed")
			}
		}
		c.cmd = nil
	}
	return closeErr
}

func (c *Conn) writeLine(line string) error {
	if _, err := c.writer.WriteString(line + "\n"); err != nil {
		return err
	}
	return c.writer.Flush()
}

func (c *Conn) readLine() (string, error) {
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (c *Conn) readBuf(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.reader, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
