package session

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// EscapeByte ends the pass-through, like telnet's Ctrl-].
const EscapeByte = 0x1d

// PassThrough relays stdin keystrokes to conn until EscapeByte, end of input
// or a stream error. Console output keeps reaching the user through the
// stream's transcript tap, so the reverse direction only has to keep reading.
// A terminal stdin is put in raw mode and restored on return.
func (s *Session) PassThrough(conn Conn) error {
	if f, ok := s.stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fd := int(f.Fd())
		oldState, err := term.MakeRaw(fd)
		if err != nil {
			s.logger.Warn("terminal_raw_mode_failed", "error", err)
		} else {
			defer term.Restore(fd, oldState)
		}
	}

	s.logger.Info("passthrough_start", "escape", "^]")
	fmt.Fprint(s.stdout, "\r\n*** Console attached, press Ctrl-] to quit ***\r\n")

	done := make(chan error, 2)

	go func() {
		_, err := io.Copy(io.Discard, conn)
		done <- err
	}()

	var keyboard io.Writer = conn
	if sw, ok := conn.(silentWriter); ok {
		keyboard = writerFunc(sw.WriteSilent)
	}

	go func() {
		done <- relayInput(keyboard, s.stdin)
	}()

	err := <-done
	s.logger.Info("passthrough_end", "error", err)
	return err
}

// silentWriter writes to the console without echoing to the transcript.
type silentWriter interface {
	WriteSilent(p []byte) (int, error)
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

// relayInput copies in to w up to the escape byte.
func relayInput(w io.Writer, in io.Reader) error {
	buf := make([]byte, 256)
	for {
		n, err := in.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if i := bytes.IndexByte(chunk, EscapeByte); i >= 0 {
				chunk = chunk[:i]
				if len(chunk) > 0 {
					if _, werr := w.Write(chunk); werr != nil {
						return werr
					}
				}
				return nil
			}
			if _, werr := w.Write(chunk); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
