// Package transport provides the duplex byte streams used to talk to a
// bootloader console: a local serial device or a telnet-relayed serial port.
// Both variants are exposed through the same Transport interface so callers
// never branch on which one they hold.
package transport

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// ErrTimeout is returned by ReadUntilMatch when no pattern matched before the
// timeout elapsed.
var ErrTimeout = errors.New("no response within timeout")

// Transport is a line-oriented console connection.
type Transport interface {
	// Write sends raw bytes to the console.
	Write(p []byte) (int, error)

	// ReadUntilMatch blocks until one of patterns matches the pending console
	// output or timeout elapses. It returns the index of the matching pattern
	// and the matched text. Output up to the end of the match is consumed.
	ReadUntilMatch(patterns []*regexp.Regexp, timeout time.Duration) (int, string, error)

	// Drain discards pending output and whatever arrives until the console
	// has been silent for quiet. It returns the number of bytes discarded.
	Drain(quiet time.Duration) (int, error)

	// Close releases the underlying device or connection.
	Close() error
}

// Error describes a fault of the underlying stream.
type Error struct {
	Op     string
	Target string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transport %s %s: %v", e.Op, e.Target, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err is a pattern-wait timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// FirstMatch finds the pattern whose match starts earliest in buf. When two
// patterns match at the same offset the one listed first wins. It returns -1
// and a nil location when nothing matches.
func FirstMatch(patterns []*regexp.Regexp, buf string) (int, []int) {
	best := -1
	var bestLoc []int
	for i, re := range patterns {
		if re == nil {
			continue
		}
		loc := re.FindStringIndex(buf)
		if loc == nil {
			continue
		}
		if best < 0 || loc[0] < bestLoc[0] {
			best = i
			bestLoc = loc
		}
	}
	return best, bestLoc
}
