package security

import (
	"strings"
	"testing"
)

func TestValidatePath_PathTraversal(t *testing.T) {
	v := NewValidator(DefaultMaxPathLength, DefaultMaxCommandLength)

	tests := []struct {
		path      string
		shouldErr bool
	}{
		{"Image", false},
		{"linux/build/arch/riscv/boot/Image", false},
		{"ramdisk/rootfs.cpio.gz.uboot", false},
		{"../etc/passwd", true},
		{"/srv/tftp/Image", true},
		{"dir/../Image", false},
		{"dir/../../etc/passwd", true},
		{"..", true},
		{"", true},
	}

	for _, tt := range tests {
		err := v.ValidatePath(tt.path)
		if tt.shouldErr && err == nil {
			t.Errorf("expected error for path: %s", tt.path)
		}
		if !tt.shouldErr && err != nil {
			t.Errorf("unexpected error for path %s: %v", tt.path, err)
		}
	}
}

func TestValidatePath_CommandBreakers(t *testing.T) {
	v := NewValidator(DefaultMaxPathLength, DefaultMaxCommandLength)

	for _, p := range []string{"my Image", "Image;reset", "Image'", "$kernel", "a\\b", "Image\n"} {
		if err := v.ValidatePath(p); err == nil {
			t.Errorf("expected error for path: %q", p)
		}
	}
}

func TestValidatePath_Length(t *testing.T) {
	v := NewValidator(16, DefaultMaxCommandLength)

	if err := v.ValidatePath(strings.Repeat("a", 16)); err != nil {
		t.Errorf("unexpected error at limit: %v", err)
	}
	if err := v.ValidatePath(strings.Repeat("a", 17)); err == nil {
		t.Error("expected error for path over limit")
	}
}

func TestValidateServerAddress(t *testing.T) {
	v := NewValidator(DefaultMaxPathLength, DefaultMaxCommandLength)

	tests := []struct {
		addr      string
		shouldErr bool
	}{
		{"192.168.1.90", false},
		{"10.0.0.1", false},
		{"::1", true},
		{"::ffff:192.168.1.90", true},
		{"tftp.lab", true},
		{"192.168.1", true},
		{"", true},
	}

	for _, tt := range tests {
		err := v.ValidateServerAddress(tt.addr)
		if tt.shouldErr && err == nil {
			t.Errorf("expected error for address: %q", tt.addr)
		}
		if !tt.shouldErr && err != nil {
			t.Errorf("unexpected error for address %q: %v", tt.addr, err)
		}
	}
}

func TestValidateArgument(t *testing.T) {
	v := NewValidator(DefaultMaxPathLength, DefaultMaxCommandLength)

	if err := v.ValidateArgument("ttyS0,115200n8"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	for _, a := range []string{"", "ttyS0 quiet", "ttyS0'"} {
		if err := v.ValidateArgument(a); err == nil {
			t.Errorf("expected error for argument: %q", a)
		}
	}
}

func TestValidateCommandLength(t *testing.T) {
	v := NewValidator(DefaultMaxPathLength, 8)

	if err := v.ValidateCommandLength("1234567"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := v.ValidateCommandLength("12345678"); err == nil {
		t.Error("expected error for command filling the buffer")
	}
}
