// Package console implements the bootloader console automaton: reaching a
// known prompt on a console of unknown state, and executing commands whose
// responses are classified against a fixed table of success and failure
// patterns.
package console

import (
	"regexp"

	"github.com/visionfive-tools/tftpboot/pkg/transport"
)

// ResponseKind classifies a console response.
type ResponseKind int

const (
	ExpectedSuccess ResponseKind = iota
	CPUReset
	MustReset
	Timeout
	RetryExceeded
	RetryTimeExceeded
	TransferDenied
	WrongRamdiskFormat
	CorruptImage
	ReservedMemoryOverwrite
	ImageMagicMismatch
	WrongImageFormat
	AllocationFailed
	NoRemoteResponse
	MissingDeviceTree
	OverlappingImages
	KernelPanic

	// NoResponse and TransportFault are never produced by a pattern: they
	// describe a wait that timed out or a stream that failed.
	NoResponse
	TransportFault
)

var kindNames = map[ResponseKind]string{
	ExpectedSuccess:         "expected_success",
	CPUReset:                "cpu_reset",
	MustReset:               "must_reset",
	Timeout:                 "timeout",
	RetryExceeded:           "retry_exceeded",
	RetryTimeExceeded:       "retry_time_exceeded",
	TransferDenied:          "transfer_denied",
	WrongRamdiskFormat:      "wrong_ramdisk_format",
	CorruptImage:            "corrupt_image",
	ReservedMemoryOverwrite: "reserved_memory_overwrite",
	ImageMagicMismatch:      "image_magic_mismatch",
	WrongImageFormat:        "wrong_image_format",
	AllocationFailed:        "allocation_failed",
	NoRemoteResponse:        "no_remote_response",
	MissingDeviceTree:       "missing_device_tree",
	OverlappingImages:       "overlapping_images",
	KernelPanic:             "kernel_panic",
	NoResponse:              "no_response",
	TransportFault:          "transport_fault",
}

func (k ResponseKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Pattern pairs a regular expression with the classification of the text it
// matches.
type Pattern struct {
	Expr *regexp.Regexp
	Kind ResponseKind
}

// Literal builds a pattern matching text verbatim.
func Literal(text string, kind ResponseKind) Pattern {
	return Pattern{Expr: regexp.MustCompile(regexp.QuoteMeta(text)), Kind: kind}
}

// Regexp builds a pattern from a regular expression. An invalid expression
// panics.
func Regexp(expr string, kind ResponseKind) Pattern {
	return Pattern{Expr: regexp.MustCompile(expr), Kind: kind}
}

func (p Pattern) String() string {
	if p.Expr == nil {
		return ""
	}
	return p.Expr.String()
}

// ReadyPrompt is the U-Boot prompt of the VisionFive board.
var ReadyPrompt = Literal("VisionFive #", ExpectedSuccess)

// failureCatalog is everything U-Boot prints when a command goes wrong, in
// the order it is searched.
var failureCatalog = []Pattern{
	Literal("Resetting CPU", CPUReset),
	Literal("Must RESET board to recover", MustReset),
	Literal("TIMEOUT", Timeout),
	Literal("Retry count exceeded", RetryExceeded),
	Literal("Retry time exceeded; starting again", RetryTimeExceeded),
	Literal("File not found", TransferDenied),
	Literal("Wrong Ramdisk Image Format", WrongRamdiskFormat),
	Literal("Ramdisk image is corrupt or invalid", CorruptImage),
	Literal("TFTP error: trying to overwrite reserved memory", ReservedMemoryOverwrite),
	Literal("Bad Linux RISCV Image magic!", ImageMagicMismatch),
	Literal("Wrong Image Format for boot", WrongImageFormat),
	Literal("ERROR: Failed to allocate", AllocationFailed),
	Literal("ERROR: The remote end did not respond in time.", NoRemoteResponse),
	Literal("ERROR: Did not find a cmdline Flattened Device Tree", MissingDeviceTree),
	Literal("ERROR: RD image overlaps OS image", OverlappingImages),
}

// FailureCatalog returns a copy of the fixed failure patterns.
func FailureCatalog() []Pattern {
	return append([]Pattern(nil), failureCatalog...)
}

// Table is an ordered pattern list. On a tie the earlier entry wins.
type Table []Pattern

// BuildTable returns expected followed by the failure catalog.
func BuildTable(expected Pattern) Table {
	table := make(Table, 0, 1+len(failureCatalog))
	table = append(table, expected)
	return append(table, failureCatalog...)
}

// Expressions returns the table's regular expressions in order.
func (t Table) Expressions() []*regexp.Regexp {
	exprs := make([]*regexp.Regexp, len(t))
	for i, p := range t {
		exprs[i] = p.Expr
	}
	return exprs
}

// Classify finds the entry matching earliest in text. ok is false when no
// entry matches.
func (t Table) Classify(text string) (p Pattern, matched string, ok bool) {
	idx, loc := transport.FirstMatch(t.Expressions(), text)
	if idx < 0 {
		return Pattern{}, "", false
	}
	return t[idx], text[loc[0]:loc[1]], true
}
