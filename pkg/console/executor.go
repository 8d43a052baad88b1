package console

import (
	"fmt"
	"time"

	"github.com/visionfive-tools/tftpboot/pkg/transport"
)

// Response is a classified console response.
type Response struct {
	Kind ResponseKind
	Text string
}

// Executor runs single commands against a synchronized console.
type Executor struct {
	cfg Config
}

// NewExecutor creates an Executor.
func NewExecutor(opts ...Option) *Executor {
	return &Executor{cfg: newConfig(opts)}
}

// Execute sends command and waits once, up to timeout, for expected or any
// catalogued failure. A failure match, a timeout or a stream error is
// returned as a *CommandFailedError together with the response kind. Nothing
// is retried.
func (e *Executor) Execute(t transport.Transport, command string, expected Pattern, timeout time.Duration) (Response, error) {
	if expected.Expr == nil {
		return Response{}, fmt.Errorf("command %q has no expected pattern", command)
	}

	e.cfg.Logger.Info("command_send", "command", command, "expect", expected.String(), "timeout", timeout)

	if err := writeLine(t, command, e.cfg.LineEnding); err != nil {
		e.cfg.Logger.Error("command_write_failed", "command", command, "error", err)
		return Response{Kind: TransportFault}, &CommandFailedError{
			Command: command,
			Kind:    TransportFault,
			Reason:  err.Error(),
			Err:     err,
		}
	}

	return e.wait(t, command, BuildTable(expected), timeout)
}

// Await waits, without sending anything, for expected or one of failures.
// The outcome is classified as in Execute; label stands in for the command
// in errors.
func (e *Executor) Await(t transport.Transport, label string, expected Pattern, failures []Pattern, timeout time.Duration) (Response, error) {
	if expected.Expr == nil {
		return Response{}, fmt.Errorf("wait %q has no expected pattern", label)
	}

	e.cfg.Logger.Info("await_start", "label", label, "expect", expected.String(), "timeout", timeout)

	table := append(Table{expected}, failures...)
	return e.wait(t, label, table, timeout)
}

func (e *Executor) wait(t transport.Transport, command string, table Table, timeout time.Duration) (Response, error) {
	log := e.cfg.Logger

	idx, text, err := t.ReadUntilMatch(table.Expressions(), timeout)
	if err != nil {
		kind := TransportFault
		reason := err.Error()
		if transport.IsTimeout(err) {
			kind = NoResponse
			reason = fmt.Sprintf("no response within %s", timeout)
		}
		log.Error("command_failed", "command", command, "kind", kind, "error", err)
		return Response{Kind: kind}, &CommandFailedError{Command: command, Kind: kind, Reason: reason, Err: err}
	}

	matched := table[idx]
	if matched.Kind != ExpectedSuccess {
		log.Error("command_failed", "command", command, "kind", matched.Kind, "response", text)
		return Response{Kind: matched.Kind, Text: text}, &CommandFailedError{
			Command: command,
			Kind:    matched.Kind,
			Reason:  fmt.Sprintf("unexpected response: %s", text),
		}
	}

	log.Info("command_ok", "command", command, "response", text)
	return Response{Kind: ExpectedSuccess, Text: text}, nil
}
