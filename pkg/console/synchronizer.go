package console

import (
	"fmt"
	"regexp"

	"github.com/visionfive-tools/tftpboot/pkg/transport"
)

// Synchronizer brings a console of unknown state to its ready prompt.
type Synchronizer struct {
	cfg Config
}

// NewSynchronizer creates a Synchronizer.
func NewSynchronizer(opts ...Option) *Synchronizer {
	return &Synchronizer{cfg: newConfig(opts)}
}

// Synchronize probes the console with a blank line and waits for the ready
// prompt, leaving menus and re-probing on silence. Every wait, whatever its
// outcome, consumes one retry. Once the prompt is seen the console is left to
// go quiet and late answers to earlier probes are discarded, so the next
// command is matched only against its own response. On success m moves to
// Synchronized; when the budget runs out m moves to Failed and a
// *SynchronizationError is returned.
func (s *Synchronizer) Synchronize(t transport.Transport, m *Machine) error {
	log := s.cfg.Logger
	log.Info("sync_start", "prompt", s.cfg.Prompt.String(), "retries", s.cfg.Retries)

	if err := writeLine(t, "", s.cfg.LineEnding); err != nil {
		log.Warn("sync_probe_failed", "attempt", 0, "error", err)
	}

	patterns := make([]*regexp.Regexp, 0, 1+len(s.cfg.Menus))
	patterns = append(patterns, s.cfg.Prompt.Expr)
	for _, menu := range s.cfg.Menus {
		patterns = append(patterns, menu.Pattern)
	}

	var last error
	for attempt := 1; attempt <= s.cfg.Retries; attempt++ {
		timeout := s.cfg.ProbeTimeout
		if attempt == 1 {
			timeout = s.cfg.FirstTimeout
		}

		idx, text, err := t.ReadUntilMatch(patterns, timeout)
		switch {
		case err == nil && idx == 0:
			dropped, err := t.Drain(s.cfg.SettleTime)
			if err != nil {
				log.Warn("sync_drain_failed", "attempt", attempt, "error", err)
			}
			log.Info("sync_ready", "attempt", attempt, "discarded", dropped)
			return m.Advance(Synchronized)

		case err == nil:
			menu := s.cfg.Menus[idx-1]
			selection := menu.Selection(text)
			log.Info("sync_menu", "attempt", attempt, "menu", menu.Name, "selection", selection)
			last = fmt.Errorf("console stuck at %s", menu.Name)
			if err := writeLine(t, selection, s.cfg.LineEnding); err != nil {
				log.Warn("sync_menu_select_failed", "attempt", attempt, "menu", menu.Name, "error", err)
				last = err
			}

		case transport.IsTimeout(err):
			log.Warn("sync_timeout", "attempt", attempt, "timeout", timeout)
			last = err
			if attempt < s.cfg.Retries {
				if err := writeLine(t, "", s.cfg.LineEnding); err != nil {
					log.Warn("sync_probe_failed", "attempt", attempt, "error", err)
				}
			}

		default:
			log.Error("sync_error", "attempt", attempt, "error", err)
			last = err
		}
	}

	log.Error("sync_failed", "attempts", s.cfg.Retries, "error", last)
	if err := m.Advance(Failed); err != nil {
		return err
	}
	return &SynchronizationError{Attempts: s.cfg.Retries, Last: last}
}

func writeLine(t transport.Transport, line, ending string) error {
	_, err := t.Write([]byte(line + ending))
	return err
}
