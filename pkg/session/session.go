// Package session runs one boot end to end: it opens the console, brings it
// to the bootloader prompt, drives the boot sequence, records the run and
// finally hands the console to the user.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/visionfive-tools/tftpboot/pkg/boot"
	"github.com/visionfive-tools/tftpboot/pkg/console"
	"github.com/visionfive-tools/tftpboot/pkg/db"
	pkgerrors "github.com/visionfive-tools/tftpboot/pkg/errors"
	"github.com/visionfive-tools/tftpboot/pkg/storage"
	"github.com/visionfive-tools/tftpboot/pkg/transport"
)

// Stages reported in an Outcome besides command#k and shell.
const (
	StageTransport       = "transport"
	StageSynchronization = "synchronization"
)

// Conn is a console connection that can also be read directly once the
// automaton is done with it.
type Conn interface {
	transport.Transport
	io.Reader
}

// Opener opens the console named by target. Everything read from or written
// to the connection must be copied to transcript.
type Opener func(target string, baud int, transcript io.Writer) (Conn, error)

// OpenTransport opens a serial device or telnet relay.
func OpenTransport(target string, baud int, transcript io.Writer) (Conn, error) {
	return transport.Open(target, baud, transport.WithTranscript(transcript))
}

// History records runs. *db.Repository implements it.
type History interface {
	Create(ctx context.Context, run *db.Run) error
	Finish(ctx context.Context, id int64, status, stage, reason string) error
	SetTranscript(ctx context.Context, id int64, path, archiveKey string) error
}

// Archive stores transcripts. *storage.Client implements it.
type Archive interface {
	Upload(ctx context.Context, localPath, key string) (*storage.UploadResult, error)
}

// Config describes one boot.
type Config struct {
	Target   string
	Baud     int
	Params   boot.Parameters
	Timeouts boot.Timeouts

	// Prompt is the literal bootloader prompt.
	Prompt  string
	Retries int

	// WaitShell waits for a shell prompt after the kernel banner.
	WaitShell bool

	// Interactive hands the console to the user after a successful boot.
	Interactive bool

	TranscriptDir string
	ArchivePrefix string
}

// Outcome is what a run reports to the user.
type Outcome struct {
	Success bool

	// Text is the kernel banner, or the shell prompt when one was awaited.
	Text string

	// Stage names where a failed run stopped: transport, synchronization,
	// command#k or shell.
	Stage  string
	Reason string

	RunID          int64
	TranscriptPath string
	ArchiveKey     string
}

// Session runs boots.
type Session struct {
	cfg     Config
	open    Opener
	history History
	archive Archive
	stdin   io.Reader
	stdout  io.Writer
	logger  *slog.Logger
}

// Option configures a Session.
type Option func(*Session)

// WithOpener replaces the transport factory.
func WithOpener(open Opener) Option {
	return func(s *Session) {
		s.open = open
	}
}

// WithHistory records every run.
func WithHistory(h History) Option {
	return func(s *Session) {
		s.history = h
	}
}

// WithArchive uploads every transcript.
func WithArchive(a Archive) Option {
	return func(s *Session) {
		s.archive = a
	}
}

// WithTerminal sets the user's keyboard and screen.
func WithTerminal(stdin io.Reader, stdout io.Writer) Option {
	return func(s *Session) {
		s.stdin = stdin
		s.stdout = stdout
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// New creates a Session.
func New(cfg Config, opts ...Option) *Session {
	s := &Session{
		cfg:    cfg,
		open:   OpenTransport,
		stdin:  os.Stdin,
		stdout: os.Stdout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Run boots the board once. A failed boot is returned both as an Outcome
// and as an error; the error keeps the typed cause for errors.As.
func (s *Session) Run(ctx context.Context) (*Outcome, error) {
	cfg := s.cfg
	log := s.logger.With("target", cfg.Target)

	prompt := console.ReadyPrompt
	if cfg.Prompt != "" {
		prompt = console.Literal(cfg.Prompt, console.ExpectedSuccess)
	}
	opts := []console.Option{console.WithPrompt(prompt), console.WithRetries(cfg.Retries), console.WithLogger(log)}

	seqOpts := []boot.SequencerOption{
		boot.WithPrompt(prompt),
		boot.WithExecutor(console.NewExecutor(opts...)),
		boot.WithSequencerLogger(log),
	}
	if cfg.WaitShell {
		seqOpts = append(seqOpts, boot.WithShellWait(cfg.Timeouts.Shell))
	}
	sequencer, err := boot.NewSequencer(cfg.Params, cfg.Timeouts, seqOpts...)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	run := &db.Run{
		Target:        cfg.Target,
		Baud:          cfg.Baud,
		ServerAddress: cfg.Params.ServerAddress,
		KernelPrefix:  cfg.Params.KernelPrefix,
		StartedAt:     time.Now(),
	}
	if s.history != nil {
		if err := s.history.Create(ctx, run); err != nil {
			log.Warn("session_history_unavailable", "error", err)
		}
	}
	outcome := &Outcome{RunID: run.ID}

	transcript, err := s.openTranscript(run)
	if err != nil {
		return nil, err
	}
	defer transcript.Close()
	outcome.TranscriptPath = transcript.Name()

	log.Info("session_start", "run_id", run.ID, "baud", cfg.Baud, "transcript", transcript.Name())

	conn, err := s.open(cfg.Target, cfg.Baud, io.MultiWriter(transcript, s.stdout))
	if err != nil {
		outcome.Stage = StageTransport
		outcome.Reason = err.Error()
		s.finish(ctx, run, outcome)
		return outcome, pkgerrors.Wrapf(err, "failed to open %s", cfg.Target)
	}
	defer conn.Close()

	// Cancellation closes the console so a pending wait fails at once.
	stop := context.AfterFunc(ctx, func() {
		log.Warn("session_interrupted", "run_id", run.ID)
		conn.Close()
	})
	defer stop()

	result, err := s.boot(conn, sequencer, opts)
	if err != nil {
		outcome.Stage, outcome.Reason = classify(err)
		if ctx.Err() != nil {
			outcome.Reason = "interrupted: " + outcome.Reason
		}
		s.finish(ctx, run, outcome)
		fmt.Fprintf(s.stdout, "\r\n")
		return outcome, err
	}

	outcome.Success = true
	outcome.Text = result.Banner
	if result.Shell != "" {
		outcome.Text = result.Shell
	}
	s.record(ctx, run, outcome)

	if cfg.Interactive {
		if err := s.PassThrough(conn); err != nil {
			log.Warn("passthrough_error", "error", err)
		}
	}
	s.archiveTranscript(ctx, run, outcome)
	return outcome, nil
}

// boot synchronizes and runs the sequence on one machine.
func (s *Session) boot(conn Conn, sequencer *boot.Sequencer, opts []console.Option) (*boot.Result, error) {
	m := console.NewMachine()

	if err := console.NewSynchronizer(opts...).Synchronize(conn, m); err != nil {
		return nil, err
	}
	return sequencer.Run(conn, m)
}

func classify(err error) (stage, reason string) {
	var serr *boot.SequenceError
	if errors.As(err, &serr) {
		return serr.Stage(), serr.Err.Reason
	}
	var syncErr *console.SynchronizationError
	if errors.As(err, &syncErr) {
		return StageSynchronization, syncErr.Error()
	}
	return StageTransport, err.Error()
}

func (s *Session) openTranscript(run *db.Run) (*os.File, error) {
	if err := os.MkdirAll(s.cfg.TranscriptDir, 0755); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to create transcript directory")
	}

	name := path.Base(storage.TranscriptKey("", run.ID, run.StartedAt))
	f, err := os.Create(filepath.Join(s.cfg.TranscriptDir, name))
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to create transcript")
	}
	return f, nil
}

// finish records the outcome and archives the transcript. Neither is fatal
// to the boot.
func (s *Session) finish(ctx context.Context, run *db.Run, outcome *Outcome) {
	s.record(ctx, run, outcome)
	s.archiveTranscript(ctx, run, outcome)
}

// record stores the outcome in the history. It outlives a cancelled ctx so
// an interrupted run is still closed.
func (s *Session) record(ctx context.Context, run *db.Run, outcome *Outcome) {
	status := db.StatusFailed
	if outcome.Success {
		status = db.StatusSucceeded
		s.logger.Info("session_succeeded", "run_id", run.ID, "text", outcome.Text)
	} else {
		s.logger.Error("session_failed", "run_id", run.ID, "stage", outcome.Stage, "reason", outcome.Reason)
	}

	if s.history == nil || run.ID == 0 {
		return
	}
	if err := s.history.Finish(context.WithoutCancel(ctx), run.ID, status, outcome.Stage, outcome.Reason); err != nil {
		s.logger.Warn("session_history_finish_failed", "run_id", run.ID, "error", err)
	}
}

// archiveTranscript uploads the transcript as it stands, interactive part
// included, and records where it went.
func (s *Session) archiveTranscript(ctx context.Context, run *db.Run, outcome *Outcome) {
	ctx = context.WithoutCancel(ctx)

	if s.archive != nil {
		key := storage.TranscriptKey(s.cfg.ArchivePrefix, run.ID, run.StartedAt)
		if _, err := s.archive.Upload(ctx, outcome.TranscriptPath, key); err != nil {
			s.logger.Warn("session_archive_failed", "run_id", run.ID, "error", err)
		} else {
			outcome.ArchiveKey = key
		}
	}

	if s.history == nil || run.ID == 0 {
		return
	}
	if err := s.history.SetTranscript(ctx, run.ID, outcome.TranscriptPath, outcome.ArchiveKey); err != nil {
		s.logger.Warn("session_history_transcript_failed", "run_id", run.ID, "error", err)
	}
}
