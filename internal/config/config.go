package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/visionfive-tools/tftpboot/pkg/boot"
)

// Config holds all application configuration
type Config struct {
	// Boot parameters
	Server        string `mapstructure:"server"`
	KernelPrefix  string `mapstructure:"kernel-prefix"`
	DeviceTree    string `mapstructure:"dtb"`
	Ramdisk       string `mapstructure:"ramdisk"`
	ConsoleDevice string `mapstructure:"console"`

	// Console automaton
	Prompt          string        `mapstructure:"prompt"`
	Retries         int           `mapstructure:"retries"`
	CommandTimeout  time.Duration `mapstructure:"command-timeout"`
	TransferTimeout time.Duration `mapstructure:"transfer-timeout"`
	BootTimeout     time.Duration `mapstructure:"boot-timeout"`
	ShellTimeout    time.Duration `mapstructure:"shell-timeout"`
	WaitShell       bool          `mapstructure:"wait-shell"`
	Interactive     bool          `mapstructure:"interactive"`

	// History and transcripts
	HistoryDB     string `mapstructure:"history-db"`
	TranscriptDir string `mapstructure:"transcript-dir"`

	// S3 transcript archive, disabled when the bucket is empty
	S3Bucket   string `mapstructure:"s3-bucket"`
	S3Region   string `mapstructure:"s3-region"`
	S3Endpoint string `mapstructure:"s3-endpoint"`
	S3Prefix   string `mapstructure:"s3-prefix"`
}

// SetDefaults registers every default with viper.
func SetDefaults() {
	params := boot.DefaultParameters()
	timeouts := boot.DefaultTimeouts()

	viper.SetDefault("server", params.ServerAddress)
	viper.SetDefault("kernel-prefix", params.KernelPrefix)
	viper.SetDefault("dtb", params.DeviceTreeFile)
	viper.SetDefault("ramdisk", params.RamdiskPath)
	viper.SetDefault("console", params.ConsoleDevice)
	viper.SetDefault("prompt", "VisionFive #")
	viper.SetDefault("retries", 10)
	viper.SetDefault("command-timeout", timeouts.Command)
	viper.SetDefault("transfer-timeout", timeouts.Transfer)
	viper.SetDefault("boot-timeout", timeouts.Boot)
	viper.SetDefault("shell-timeout", timeouts.Shell)
	viper.SetDefault("wait-shell", false)
	viper.SetDefault("interactive", true)
	viper.SetDefault("history-db", ".artifacts/history.db")
	viper.SetDefault("transcript-dir", ".artifacts/transcripts")
	viper.SetDefault("s3-bucket", "")
	viper.SetDefault("s3-region", "us-east-1")
	viper.SetDefault("s3-endpoint", "")
	viper.SetDefault("s3-prefix", "transcripts")
}

// Load reads configuration from environment, config file, and defaults
func Load() (*Config, error) {
	SetDefaults()

	// Environment variables (will be TFTPBOOT_SERVER, etc.)
	viper.SetEnvPrefix("TFTPBOOT")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// Config file (optional)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.tftpboot")

	// Read config file (ignore if not found)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Unmarshal into config struct
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	if c.Prompt == "" {
		return fmt.Errorf("prompt cannot be empty")
	}
	if c.Retries <= 0 {
		return fmt.Errorf("retries must be positive")
	}
	if c.CommandTimeout <= 0 || c.TransferTimeout <= 0 || c.BootTimeout <= 0 {
		return fmt.Errorf("command, transfer and boot timeouts must be positive")
	}
	if c.WaitShell && c.ShellTimeout <= 0 {
		return fmt.Errorf("shell-timeout must be positive when wait-shell is set")
	}
	if c.HistoryDB == "" {
		return fmt.Errorf("history-db cannot be empty")
	}
	if c.TranscriptDir == "" {
		return fmt.Errorf("transcript-dir cannot be empty")
	}
	if c.S3Bucket != "" && c.S3Region == "" {
		return fmt.Errorf("s3-region cannot be empty when s3-bucket is set")
	}
	if err := c.Parameters().Validate(nil); err != nil {
		return err
	}
	return nil
}

// Parameters returns the configured boot parameters.
func (c *Config) Parameters() boot.Parameters {
	return boot.Parameters{
		ServerAddress:  c.Server,
		KernelPrefix:   c.KernelPrefix,
		DeviceTreeFile: c.DeviceTree,
		RamdiskPath:    c.Ramdisk,
		ConsoleDevice:  c.ConsoleDevice,
	}
}

// Timeouts returns the configured command timeouts.
func (c *Config) Timeouts() boot.Timeouts {
	return boot.Timeouts{
		Command:  c.CommandTimeout,
		Transfer: c.TransferTimeout,
		Boot:     c.BootTimeout,
		Shell:    c.ShellTimeout,
	}
}
