package bridge

import (
	"fmt"
	"strconv"
	"strings"

	"kiln/internal/object"
	"kiln/internal/services"
)

// Session is scoped exclusive ownership of the bridge connection. It
// is valid from Acquire until Close; requests issued after Close
// panic, which always indicates an escape of the scope.
type Session struct {
	conn   *Conn
	closed bool
}

// Close releases the connection for other acquirers. Safe to call more
// than once; deferred on every acquisition path.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.conn.sessions <- struct{}{}
}

func (s *Session) exchange(request string) (string, error) {
	if s.closed {
		panic("bridge: request on closed session")
	}
	if err := s.conn.writeLine(request); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "bridge", "write request", request, err)
	}
	line, err := s.conn.readLine()
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, "bridge", "read response", request, err)
	}
	return line, nil
}

// Open loads an existing scene file in the tool.
func (s *Session) Open(path string) error {
	return s.expectOK("OPEN " + path)
}

// Create makes a fresh scene file in the tool.
func (s *Session) Create(path string) error {
	return s.expectOK("CREATE " + path)
}

func (s *Session) expectOK(request string) error {
	line, err := s.exchange(request)
	if err != nil {
		return err
	}
	if line != "OK" {
		return services.Wrap(services.ErrExternalTool, "bridge", request, responseError(line), nil)
	}
	return nil
}

// CookToBuffer asks the tool to convert the scene at path into a raw
// cookable buffer for the given target. The expectedType tag lets the
// tool refuse a scene whose content does not match the requested
// object type.
func (s *Session) CookToBuffer(path string, expectedType object.FourCC, platform object.Platform, bigEndian bool) ([]byte, error) {
	endian := "little"
	if bigEndian {
		endian = "big"
	}
	request := fmt.Sprintf("COOK %s %s %s %s", expectedType, platformToken(platform), endian, path)

	line, err := s.exchange(request)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(line, "BUF ") {
		return nil, services.Wrap(services.ErrExternalTool, "bridge", "cook", responseError(line), nil)
	}
	size, err := strconv.Atoi(strings.TrimPrefix(line, "BUF "))
	if err != nil || size < 0 {
		return nil, services.Wrap(services.ErrExternalTool, "bridge", "cook", fmt.Sprintf("bad buffer header %q", line), nil)
	}

	buf, err := s.conn.readBuf(size)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "bridge", "cook", "read buffer", err)
	}
	// Trailing status line confirms the tool finished cleanly.
	status, err := s.conn.readLine()
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "bridge", "cook", "read status", err)
	}
	if status != "OK" {
		return nil, services.Wrap(services.ErrExternalTool, "bridge", "cook", responseError(status), nil)
	}
	return buf, nil
}

// RunScript feeds a multi-line tool script through the session. Each
// line is acknowledged before the next is sent; the first error aborts
// the script.
func (s *Session) RunScript(script string) error {
	for _, raw := range strings.Split(script, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := s.expectOK(line); err != nil {
			return err
		}
	}
	return nil
}

func platformToken(p object.Platform) string {
	switch p {
	case object.PlatformTiled:
		return "tiled"
	case object.PlatformSwizzled:
		return "swizzled"
	default:
		return "generic"
	}
}

func responseError(line string) string {
	if strings.HasPrefix(line, "ERR ") {
		return strings.TrimPrefix(line, "ERR ")
	}
	return fmt.Sprintf("unexpected response %q", line)
}
