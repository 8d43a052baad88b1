// Package consoletest provides a scripted bootloader console for tests.
package consoletest

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/visionfive-tools/tftpboot/pkg/transport"
)

// Console is an in-memory transport.Transport. Lines written to it are
// recorded and handed to Respond, whose return value is queued as console
// output. Waits never block: when nothing queued matches they time out at
// once.
type Console struct {
	// Respond produces the console's answer to a sent line.
	Respond func(line string) string

	// ReadErrs are returned, one per wait, before queued output is searched.
	// A nil entry lets that wait proceed normally.
	ReadErrs []error

	// WriteErr fails every write when set.
	WriteErr error

	// Sent holds every line written, without its terminator.
	Sent []string

	// Waits holds the timeout of every wait.
	Waits []time.Duration

	// Drains holds the quiet period of every drain.
	Drains []time.Duration

	Closed bool

	pending string
	partial string
}

var _ transport.Transport = (*Console)(nil)

// Emit queues unsolicited console output.
func (c *Console) Emit(s string) {
	c.pending += s
}

// Pending returns queued output that no wait has consumed yet.
func (c *Console) Pending() string {
	return c.pending
}

func (c *Console) Write(p []byte) (int, error) {
	if c.WriteErr != nil {
		return 0, c.WriteErr
	}
	c.partial += string(p)
	for {
		i := strings.IndexByte(c.partial, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimSuffix(c.partial[:i], "\r")
		c.partial = c.partial[i+1:]
		c.Sent = append(c.Sent, line)
		if c.Respond != nil {
			c.pending += c.Respond(line)
		}
	}
	return len(p), nil
}

func (c *Console) ReadUntilMatch(patterns []*regexp.Regexp, timeout time.Duration) (int, string, error) {
	c.Waits = append(c.Waits, timeout)

	if len(c.ReadErrs) > 0 {
		err := c.ReadErrs[0]
		c.ReadErrs = c.ReadErrs[1:]
		if err != nil {
			return -1, "", err
		}
	}

	idx, loc := transport.FirstMatch(patterns, c.pending)
	if idx < 0 {
		return -1, "", fmt.Errorf("%w (%s)", transport.ErrTimeout, timeout)
	}
	text := c.pending[loc[0]:loc[1]]
	c.pending = c.pending[loc[1]:]
	return idx, text, nil
}

// Drain discards everything queued, as if it all arrived within quiet.
func (c *Console) Drain(quiet time.Duration) (int, error) {
	c.Drains = append(c.Drains, quiet)
	n := len(c.pending)
	c.pending = ""
	return n, nil
}

// Read drains queued output, then reports io.EOF.
func (c *Console) Read(p []byte) (int, error) {
	if c.pending == "" {
		return 0, io.EOF
	}
	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

func (c *Console) Close() error {
	c.Closed = true
	return nil
}

// Prompter answers every line with an echo and the given prompt, like an
// idle U-Boot shell.
func Prompter(prompt string) func(string) string {
	return func(line string) string {
		return line + "\r\n" + prompt + " "
	}
}
