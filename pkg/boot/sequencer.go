package boot

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/visionfive-tools/tftpboot/pkg/console"
	pkgerrors "github.com/visionfive-tools/tftpboot/pkg/errors"
	"github.com/visionfive-tools/tftpboot/pkg/security"
	"github.com/visionfive-tools/tftpboot/pkg/transport"
)

// ShellStep names the post-boot shell wait in results and errors.
const ShellStep = "shell"

// StepResult records a completed step.
type StepResult struct {
	Step     int
	Name     string
	Command  string
	Response console.Response
	Elapsed  time.Duration
}

// Result is the outcome of a successful run.
type Result struct {
	// Banner is the kernel banner that completed booti.
	Banner string

	// Shell is the matched shell prompt, empty when the shell wait is off.
	Shell string

	Steps []StepResult
}

// SequenceError reports the step a run stopped at.
type SequenceError struct {
	// Step is 1-based. The shell wait counts as the step after the last
	// command.
	Step    int
	Name    string
	Command string
	Err     *console.CommandFailedError
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("boot step %d (%s) failed: %v", e.Step, e.Name, e.Err)
}

func (e *SequenceError) Unwrap() error {
	return e.Err
}

// Stage names where the run stopped: command#k, or shell.
func (e *SequenceError) Stage() string {
	if e.Name == ShellStep {
		return ShellStep
	}
	return fmt.Sprintf("command#%d", e.Step)
}

// Sequencer runs a rendered boot sequence.
type Sequencer struct {
	steps        []CommandSpec
	lines        []string
	executor     *console.Executor
	prompt       console.Pattern
	shellTimeout time.Duration
	validator    *security.Validator
	logger       *slog.Logger
}

// SequencerOption configures a Sequencer.
type SequencerOption func(*Sequencer)

// WithSteps replaces the boot sequence.
func WithSteps(steps []CommandSpec) SequencerOption {
	return func(s *Sequencer) {
		s.steps = steps
	}
}

// WithExecutor sets the executor commands are sent with.
func WithExecutor(e *console.Executor) SequencerOption {
	return func(s *Sequencer) {
		s.executor = e
	}
}

// WithPrompt replaces the ready prompt every prompt-terminated step
// expects.
func WithPrompt(p console.Pattern) SequencerOption {
	return func(s *Sequencer) {
		s.prompt = p
	}
}

// WithShellWait makes a run wait up to timeout for a shell prompt after the
// kernel banner. Zero disables the wait.
func WithShellWait(timeout time.Duration) SequencerOption {
	return func(s *Sequencer) {
		s.shellTimeout = timeout
	}
}

// WithValidator sets the validator parameters and rendered lines are
// checked with.
func WithValidator(v *security.Validator) SequencerOption {
	return func(s *Sequencer) {
		s.validator = v
	}
}

// WithSequencerLogger sets the logger.
func WithSequencerLogger(logger *slog.Logger) SequencerOption {
	return func(s *Sequencer) {
		s.logger = logger
	}
}

// NewSequencer validates params and renders the sequence with them.
func NewSequencer(params Parameters, timeouts Timeouts, opts ...SequencerOption) (*Sequencer, error) {
	s := &Sequencer{steps: Sequence(timeouts)}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.executor == nil {
		s.executor = console.NewExecutor(console.WithLogger(s.logger))
	}
	if s.validator == nil {
		s.validator = security.NewValidator(security.DefaultMaxPathLength, security.DefaultMaxCommandLength)
	}
	if s.prompt.Expr != nil {
		s.steps = withPrompt(s.steps, s.prompt)
	}

	if err := params.Validate(s.validator); err != nil {
		return nil, pkgerrors.Wrap(err, "invalid boot parameters")
	}

	vars := Variables(params)
	s.lines = make([]string, len(s.steps))
	for i, step := range s.steps {
		if step.Expect.Expr == nil {
			return nil, fmt.Errorf("boot step %d (%s) has no expected response", i+1, step.Name)
		}
		line, err := step.Render(vars)
		if err != nil {
			return nil, err
		}
		if err := s.validator.ValidateCommandLength(line); err != nil {
			return nil, pkgerrors.Wrapf(err, "boot step %d (%s)", i+1, step.Name)
		}
		s.lines[i] = line
	}

	s.logger.Info("boot_sequence_ready", "steps", len(s.lines), "server", params.ServerAddress)
	return s, nil
}

// Lines returns the rendered command lines in order.
func (s *Sequencer) Lines() []string {
	return append([]string(nil), s.lines...)
}

// Run drives m from Synchronized through Executing to Completed, sending
// each command once and stopping at the first failure, which leaves m Failed
// and is returned as a *SequenceError.
func (s *Sequencer) Run(t transport.Transport, m *console.Machine) (*Result, error) {
	if err := m.Advance(console.Executing); err != nil {
		return nil, err
	}

	result := &Result{}
	for i, step := range s.steps {
		start := time.Now()
		resp, err := s.executor.Execute(t, s.lines[i], step.Expect, step.Timeout)
		if err != nil {
			return result, s.fail(m, i+1, step.Name, s.lines[i], err)
		}

		result.Steps = append(result.Steps, StepResult{
			Step:     i + 1,
			Name:     step.Name,
			Command:  s.lines[i],
			Response: resp,
			Elapsed:  time.Since(start),
		})
		s.logger.Info("boot_step_done", "step", i+1, "name", step.Name, "elapsed", time.Since(start))
	}
	if n := len(result.Steps); n > 0 {
		result.Banner = result.Steps[n-1].Response.Text
	}

	if s.shellTimeout > 0 {
		resp, err := s.executor.Await(t, ShellStep, ShellPrompt, PanicPatterns, s.shellTimeout)
		if err != nil {
			return result, s.fail(m, len(s.steps)+1, ShellStep, "", err)
		}
		result.Shell = resp.Text
	}

	if err := m.Advance(console.Completed); err != nil {
		return result, err
	}
	s.logger.Info("boot_completed", "banner", result.Banner, "shell", result.Shell)
	return result, nil
}

func (s *Sequencer) fail(m *console.Machine, step int, name, line string, err error) error {
	var cerr *console.CommandFailedError
	if !errors.As(err, &cerr) {
		cerr = &console.CommandFailedError{
			Command: line,
			Kind:    console.TransportFault,
			Reason:  err.Error(),
			Err:     err,
		}
	}

	if aerr := m.Advance(console.Failed); aerr != nil {
		s.logger.Error("boot_state_error", "error", aerr)
	}
	s.logger.Error("boot_step_failed", "step", step, "name", name, "kind", cerr.Kind, "reason", cerr.Reason)
	return &SequenceError{Step: step, Name: name, Command: line, Err: cerr}
}

func withPrompt(steps []CommandSpec, prompt console.Pattern) []CommandSpec {
	out := make([]CommandSpec, len(steps))
	for i, step := range steps {
		if step.Expect.String() == console.ReadyPrompt.String() {
			step.Expect = prompt
		}
		out[i] = step
	}
	return out
}
