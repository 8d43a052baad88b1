package security

import (
	"fmt"
	"log/slog"
	"net"
	"path"
	"strings"
)

// Default limits of the VisionFive U-Boot build.
const (
	// DefaultMaxPathLength is the longest file name U-Boot's TFTP client accepts.
	DefaultMaxPathLength = 128
	// DefaultMaxCommandLength is the console input buffer size.
	DefaultMaxCommandLength = 256
)

// forbiddenChars would end or re-quote a U-Boot command line.
const forbiddenChars = " \t\r\n'\";$\\"

// Validator checks boot parameters before they are interpolated into
// bootloader commands.
type Validator struct {
	maxPathLength    int
	maxCommandLength int
}

// NewValidator creates a new parameter validator
func NewValidator(maxPathLength, maxCommandLength int) *Validator {
	slog.Info("security_validator_init",
		"max_path_length", maxPathLength,
		"max_command_length", maxCommandLength)

	return &Validator{
		maxPathLength:    maxPathLength,
		maxCommandLength: maxCommandLength,
	}
}

// ValidatePath checks a file path relative to the TFTP server root.
func (v *Validator) ValidatePath(tftpPath string) error {
	if tftpPath == "" {
		slog.Error("security_path_validation_failed", "path", tftpPath, "reason", "empty")
		return fmt.Errorf("security: empty path")
	}

	// Reject absolute paths
	if strings.HasPrefix(tftpPath, "/") {
		slog.Error("security_path_validation_failed", "path", tftpPath, "reason", "absolute_path")
		return fmt.Errorf("security: absolute path not allowed: %s", tftpPath)
	}

	// Reject paths that escape the server root
	clean := path.Clean(tftpPath)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		slog.Error("security_path_validation_failed", "path", tftpPath, "reason", "path_traversal")
		return fmt.Errorf("security: path traversal detected: %s", tftpPath)
	}

	if strings.ContainsAny(tftpPath, forbiddenChars) {
		slog.Error("security_path_validation_failed", "path", tftpPath, "reason", "forbidden_character")
		return fmt.Errorf("security: path contains whitespace, quote or command separator: %q", tftpPath)
	}

	if len(tftpPath) > v.maxPathLength {
		slog.Error("security_path_validation_failed", "path", tftpPath, "reason", "too_long",
			"length", len(tftpPath), "max_length", v.maxPathLength)
		return fmt.Errorf("security: path length %d exceeds max %d", len(tftpPath), v.maxPathLength)
	}

	return nil
}

// ValidateServerAddress checks that addr is a dotted-quad IPv4 address.
func (v *Validator) ValidateServerAddress(addr string) error {
	ip := net.ParseIP(addr)
	if ip == nil || ip.To4() == nil || strings.Count(addr, ".") != 3 {
		slog.Error("security_server_validation_failed", "address", addr)
		return fmt.Errorf("security: server address must be dotted-quad IPv4: %q", addr)
	}
	return nil
}

// ValidateArgument checks a single kernel command-line token.
func (v *Validator) ValidateArgument(arg string) error {
	if arg == "" || strings.ContainsAny(arg, forbiddenChars) {
		slog.Error("security_argument_validation_failed", "argument", arg)
		return fmt.Errorf("security: invalid kernel argument: %q", arg)
	}
	return nil
}

// ValidateCommandLength checks that line fits the console input buffer.
func (v *Validator) ValidateCommandLength(line string) error {
	if len(line) >= v.maxCommandLength {
		slog.Error("security_command_too_long", "length", len(line), "max_length", v.maxCommandLength)
		return fmt.Errorf("security: command length %d exceeds max %d", len(line), v.maxCommandLength-1)
	}
	return nil
}
