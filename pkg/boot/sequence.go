package boot

import (
	"time"

	"github.com/visionfive-tools/tftpboot/pkg/console"
)

// Timeouts bound the response wait of each class of command.
type Timeouts struct {
	// Command covers environment settings.
	Command time.Duration

	// Transfer covers dhcp and every tftpboot.
	Transfer time.Duration

	// Boot covers booti up to the kernel banner.
	Boot time.Duration

	// Shell covers the kernel's way from its banner to a shell prompt.
	Shell time.Duration
}

// DefaultTimeouts returns the timeouts used by the CLI.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Command:  10 * time.Second,
		Transfer: 120 * time.Second,
		Boot:     60 * time.Second,
		Shell:    120 * time.Second,
	}
}

// KernelBanner is printed by the kernel once booti has handed over.
var KernelBanner = console.Regexp(`Linux version \S+`, console.ExpectedSuccess)

// ShellPrompt matches a login prompt or a root or user shell prompt.
var ShellPrompt = console.Regexp(`(?m)(?:login: |[#$] )$`, console.ExpectedSuccess)

// PanicPatterns end the post-boot shell wait early.
var PanicPatterns = []console.Pattern{
	console.Literal("Kernel panic - not syncing", console.KernelPanic),
}

// Sequence returns the TFTP boot sequence of the VisionFive board.
func Sequence(t Timeouts) []CommandSpec {
	prompt := console.ReadyPrompt

	return []CommandSpec{
		{Name: "disable_autoload", Template: "setenv autoload no", Expect: prompt, Timeout: t.Command},
		{Name: "unlimit_relocation", Template: "setenv initrd_high 0xffffffffffffffff; setenv fdt_high 0xffffffffffffffff", Expect: prompt, Timeout: t.Command},
		{Name: "dhcp", Template: "dhcp", Expect: prompt, Timeout: t.Transfer},
		{Name: "set_server", Template: "setenv serverip {server}", Expect: prompt, Timeout: t.Command},
		{Name: "load_kernel", Template: "tftpboot {kernel_addr} {kernel_prefix}/Image", Expect: prompt, Timeout: t.Transfer},
		{Name: "load_device_tree", Template: "tftpboot {fdt_addr} {kernel_prefix}/{dtb}", Expect: prompt, Timeout: t.Transfer},
		{Name: "load_ramdisk", Template: "tftpboot {ramdisk_addr} {ramdisk}", Expect: prompt, Timeout: t.Transfer},
		{Name: "set_bootargs", Template: "setenv bootargs 'console={console} root=/dev/ram0 console_msg_format=syslog earlycon ip=dhcp'", Expect: prompt, Timeout: t.Command},
		{Name: "boot_kernel", Template: "booti {kernel_addr} {ramdisk_addr} {fdt_addr}", Expect: KernelBanner, Timeout: t.Boot},
	}
}
