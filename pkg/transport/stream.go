package transport

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"time"
)

const (
	defaultReadSize  = 4096
	defaultMaxBuffer = 1 << 20

	// maxDrain bounds Drain on a console that never goes quiet.
	maxDrain = 5 * time.Second
)

// deadlineConn is satisfied by net.Conn and by pollable *os.File values.
type deadlineConn interface {
	io.ReadWriteCloser
	SetReadDeadline(t time.Time) error
}

// Stream buffers console output and matches it against pattern sets.
// A Stream is driven by one caller at a time.
type Stream struct {
	conn       deadlineConn
	name       string
	transcript io.Writer
	maxBuffer  int
	chunk      []byte
	buf        []byte
}

// Option configures a Stream.
type Option func(*Stream)

// WithTranscript copies every byte sent and received to w.
func WithTranscript(w io.Writer) Option {
	return func(s *Stream) {
		s.transcript = w
	}
}

// WithMaxBuffer limits how much unmatched output is retained. The oldest
// bytes are dropped first.
func WithMaxBuffer(n int) Option {
	return func(s *Stream) {
		if n > 0 {
			s.maxBuffer = n
		}
	}
}

// NewStream wraps conn. The name identifies the target in errors and logs.
func NewStream(conn deadlineConn, name string, opts ...Option) *Stream {
	s := &Stream{
		conn:      conn,
		name:      name,
		maxBuffer: defaultMaxBuffer,
		chunk:     make([]byte, defaultReadSize),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the target the stream is connected to.
func (s *Stream) Name() string {
	return s.name
}

// Write sends p to the console and mirrors it to the transcript.
func (s *Stream) Write(p []byte) (int, error) {
	n, err := s.conn.Write(p)
	if n > 0 {
		s.tap(p[:n])
	}
	if err != nil {
		return n, &Error{Op: "write", Target: s.name, Err: err}
	}
	return n, nil
}

// WriteSilent sends p without mirroring it. Keystrokes relayed to a console
// that echoes them go through here.
func (s *Stream) WriteSilent(p []byte) (int, error) {
	n, err := s.conn.Write(p)
	if err != nil {
		return n, &Error{Op: "write", Target: s.name, Err: err}
	}
	return n, nil
}

// ReadUntilMatch implements Transport. Pending output left over from an
// earlier call is searched before anything new is read.
func (s *Stream) ReadUntilMatch(patterns []*regexp.Regexp, timeout time.Duration) (int, string, error) {
	if len(patterns) == 0 {
		return -1, "", fmt.Errorf("transport: no patterns to match")
	}

	if idx, text, ok := s.consume(patterns); ok {
		return idx, text, nil
	}

	if err := s.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return -1, "", &Error{Op: "set_deadline", Target: s.name, Err: err}
	}
	defer s.conn.SetReadDeadline(time.Time{})

	for {
		n, err := s.conn.Read(s.chunk)
		if n > 0 {
			s.receive(s.chunk[:n])
			if idx, text, ok := s.consume(patterns); ok {
				return idx, text, nil
			}
		}
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return -1, "", fmt.Errorf("%w (%s)", ErrTimeout, timeout)
			}
			return -1, "", &Error{Op: "read", Target: s.name, Err: err}
		}
	}
}

// Read returns buffered output first, then reads straight from the console
// without a deadline. It is meant for interactive pass-through once pattern
// matching is over.
func (s *Stream) Read(p []byte) (int, error) {
	if len(s.buf) > 0 {
		n := copy(p, s.buf)
		s.buf = s.buf[n:]
		return n, nil
	}
	n, err := s.conn.Read(p)
	if n > 0 {
		s.tap(p[:n])
	}
	return n, err
}

// Drain discards pending output, then keeps reading and discarding until the
// console has been silent for quiet. It returns the number of bytes dropped.
// Discarded output still reaches the transcript.
func (s *Stream) Drain(quiet time.Duration) (int, error) {
	dropped := len(s.buf)
	s.buf = s.buf[:0]
	defer s.conn.SetReadDeadline(time.Time{})

	limit := time.Now().Add(maxDrain)
	for time.Now().Before(limit) {
		if err := s.conn.SetReadDeadline(time.Now().Add(quiet)); err != nil {
			return dropped, &Error{Op: "set_deadline", Target: s.name, Err: err}
		}
		n, err := s.conn.Read(s.chunk)
		if n > 0 {
			s.tap(s.chunk[:n])
			dropped += n
		}
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return dropped, nil
			}
			return dropped, &Error{Op: "read", Target: s.name, Err: err}
		}
	}
	slog.Warn("transport_drain_limit", "target", s.name, "dropped", dropped)
	return dropped, nil
}

// Close closes the underlying connection.
func (s *Stream) Close() error {
	slog.Info("transport_close", "target", s.name)
	return s.conn.Close()
}

func (s *Stream) receive(data []byte) {
	s.tap(data)
	s.buf = append(s.buf, data...)
	if over := len(s.buf) - s.maxBuffer; over > 0 {
		slog.Debug("transport_buffer_trimmed", "target", s.name, "dropped", over)
		s.buf = append(s.buf[:0], s.buf[over:]...)
	}
}

func (s *Stream) consume(patterns []*regexp.Regexp) (int, string, bool) {
	if len(s.buf) == 0 {
		return -1, "", false
	}
	idx, loc := FirstMatch(patterns, string(s.buf))
	if idx < 0 {
		return -1, "", false
	}
	text := string(s.buf[loc[0]:loc[1]])
	s.buf = append([]byte(nil), s.buf[loc[1]:]...)
	return idx, text, true
}

func (s *Stream) tap(p []byte) {
	if s.transcript == nil {
		return
	}
	if _, err := s.transcript.Write(p); err != nil {
		slog.Warn("transcript_write_failed", "target", s.name, "error", err)
	}
}
