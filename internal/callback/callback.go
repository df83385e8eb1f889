// Package callback implements the loopback progress channel between the updater
// and its elevated child. The child opens a fresh TCP connection for every message
// and writes a single newline-terminated token.
package callback

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/mcdonaldj/updater/internal/errs"
)

const (
	// DefaultAcceptTimeout bounds the wait for each incoming connection.
	DefaultAcceptTimeout = 5000 * time.Millisecond
	// DefaultReadTimeout bounds dialing and reading a single message.
	DefaultReadTimeout = 200 * time.Millisecond

	loopback = "127.0.0.1"
)

// ErrProtocol reports a connection that did not carry a known message.
var ErrProtocol = errors.New("callback protocol error")

// Message is a token sent by the elevated child.
type Message string

const (
	// Progress signals that one more task completed.
	Progress Message = "update"
	// Done signals that every task completed.
	Done Message = "done"
)

// ParseMessage converts a received line into a Message.
func ParseMessage(line string) (Message, error) {
	switch m := Message(strings.TrimSpace(line)); m {
	case Progress, Done:
		return m, nil
	default:
		return "", fmt.Errorf("%w: unexpected token %q", ErrProtocol, line)
	}
}

// Session is the parent side of the channel.
type Session struct {
	// Port is the loopback port the child connects to.
	Port int
	// Pending is the number of tasks the child was given.
	Pending int
	// Completed counts Progress messages received so far.
	Completed int

	AcceptTimeout time.Duration
	ReadTimeout   time.Duration

	listener *net.TCPListener
	log      *log.Entry
}

// Listen opens a session on an ephemeral loopback port.
func Listen(pending int, logger *log.Entry) (*Session, error) {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}

	addr, err := net.ResolveTCPAddr("tcp", net.JoinHostPort(loopback, "0"))
	if err != nil {
		return nil, err
	}
	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", loopback, err)
	}

	s := &Session{
		Port:          l.Addr().(*net.TCPAddr).Port,
		Pending:       pending,
		AcceptTimeout: DefaultAcceptTimeout,
		ReadTimeout:   DefaultReadTimeout,
		listener:      l,
		log:           logger.WithField("component", "callback"),
	}
	s.log.Debugf("Listening on %s:%d", loopback, s.Port)
	return s, nil
}

// Wait accepts connections until Done arrives. Each Progress message increments
// Completed and calls onProgress when set. An accept window without a connection
// fails with errs.ErrCallbackTimeout; an unreadable or unknown message fails with
// ErrProtocol. Cancelling ctx closes the listener and returns ctx.Err().
func (s *Session) Wait(ctx context.Context, onProgress func(completed int)) error {
	stop := context.AfterFunc(ctx, func() { _ = s.listener.Close() })
	defer stop()

	for {
		if err := s.listener.SetDeadline(time.Now().Add(s.AcceptTimeout)); err != nil {
			return s.acceptErr(ctx, err)
		}
		conn, err := s.listener.Accept()
		if err != nil {
			return s.acceptErr(ctx, err)
		}

		msg, err := s.read(conn)
		if err != nil {
			return err
		}

		switch msg {
		case Progress:
			s.Completed++
			s.log.Debugf("Progress: %d/%d", s.Completed, s.Pending)
			if onProgress != nil {
				onProgress(s.Completed)
			}
		case Done:
			s.log.Debugf("Done after %d/%d", s.Completed, s.Pending)
			return nil
		}
	}
}

func (s *Session) acceptErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return errs.CallbackTimeout(err, "no callback within %s (%d/%d completed)", s.AcceptTimeout, s.Completed, s.Pending)
	}
	return fmt.Errorf("%w: accept: %w", ErrProtocol, err)
}

func (s *Session) read(conn net.Conn) (Message, error) {
	defer func() { _ = conn.Close() }()

	if err := conn.SetReadDeadline(time.Now().Add(s.ReadTimeout)); err != nil {
		return "", fmt.Errorf("%w: %w", ErrProtocol, err)
	}
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("%w: read: %w", ErrProtocol, err)
	}
	return ParseMessage(line)
}

// Close releases the listener. It is safe to call more than once.
func (s *Session) Close() error {
	if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// Client is the child side of the channel.
type Client struct {
	addr    string
	timeout time.Duration
}

// NewClient returns a client for the session listening on port.
func NewClient(port int, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	return &Client{
		addr:    net.JoinHostPort(loopback, strconv.Itoa(port)),
		timeout: timeout,
	}
}

// Send delivers msg on a fresh connection.
func (c *Client) Send(msg Message) error {
	conn, err := net.DialTimeout("tcp", c.addr, c.timeout)
	if err != nil {
		return fmt.Errorf("callback %s: %w", c.addr, err)
	}
	defer func() { _ = conn.Close() }()

	if err := conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return err
	}
	if _, err := io.WriteString(conn, string(msg)+"\n"); err != nil {
		return fmt.Errorf("callback %s: %w", c.addr, err)
	}
	return nil
}
