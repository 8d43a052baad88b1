package console

import (
	"log/slog"
	"regexp"
	"time"
)

// MenuPrompt is a boot or update menu the console may be sitting at instead
// of the ready prompt.
type MenuPrompt struct {
	// Name identifies the menu in logs.
	Name string

	// Pattern matches the menu's prompt.
	Pattern *regexp.Regexp

	// Selection returns the line that leaves the menu, given the matched text.
	Selection func(matched string) string
}

// updateMenu matches the StarFive flash programming menu and captures the
// number of its quit entry.
var updateMenu = regexp.MustCompile(`(?is)(\d+)\s*:\s*quit.*?select the function[^:\r\n]*:`)

// DefaultMenus are the menus left automatically during synchronization.
var DefaultMenus = []MenuPrompt{
	{
		Name:    "update_menu",
		Pattern: updateMenu,
		Selection: func(matched string) string {
			if m := updateMenu.FindStringSubmatch(matched); m != nil {
				return m[1]
			}
			return ""
		},
	},
	{
		Name:      "autoboot",
		Pattern:   regexp.MustCompile(`Hit any key to stop autoboot`),
		Selection: func(string) string { return "" },
	},
}

// Config holds the console automaton settings.
type Config struct {
	// Prompt is the bootloader's ready prompt.
	Prompt Pattern

	// Menus are left by sending their selection during synchronization.
	Menus []MenuPrompt

	// Retries bounds the number of synchronization waits.
	Retries int

	// FirstTimeout is the first synchronization wait, catching a console
	// that answers the initial probe immediately.
	FirstTimeout time.Duration

	// ProbeTimeout is every later synchronization wait.
	ProbeTimeout time.Duration

	// SettleTime is how long the console must stay silent after the ready
	// prompt before the first command goes out. Answers to earlier probes
	// arriving in that window are discarded.
	SettleTime time.Duration

	// LineEnding terminates every line sent.
	LineEnding string

	// Logger receives the automaton's events.
	Logger *slog.Logger
}

func defaultConfig() Config {
	return Config{
		Prompt:       ReadyPrompt,
		Menus:        DefaultMenus,
		Retries:      10,
		FirstTimeout: 1 * time.Second,
		ProbeTimeout: 5 * time.Second,
		SettleTime:   500 * time.Millisecond,
		LineEnding:   "\n",
	}
}

// Option configures a Synchronizer or an Executor.
type Option func(*Config)

func newConfig(opts []Option) Config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return cfg
}

// WithPrompt overrides the ready prompt.
func WithPrompt(p Pattern) Option {
	return func(c *Config) {
		if p.Expr != nil {
			c.Prompt = p
		}
	}
}

// WithMenus replaces the menu catalog.
func WithMenus(menus ...MenuPrompt) Option {
	return func(c *Config) {
		c.Menus = menus
	}
}

// WithRetries sets the synchronization retry budget.
func WithRetries(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.Retries = n
		}
	}
}

// WithProbeTimeouts sets the first and subsequent synchronization waits.
func WithProbeTimeouts(first, next time.Duration) Option {
	return func(c *Config) {
		if first > 0 {
			c.FirstTimeout = first
		}
		if next > 0 {
			c.ProbeTimeout = next
		}
	}
}

// WithSettleTime sets the quiet period required after synchronization.
func WithSettleTime(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.SettleTime = d
		}
	}
}

// WithLineEnding sets the line terminator.
func WithLineEnding(ending string) Option {
	return func(c *Config) {
		c.LineEnding = ending
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}
