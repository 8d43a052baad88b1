package boot

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/visionfive-tools/tftpboot/internal/consoletest"
	"github.com/visionfive-tools/tftpboot/pkg/console"
)

var expectedLines = []string{
	"setenv autoload no",
	"setenv initrd_high 0xffffffffffffffff; setenv fdt_high 0xffffffffffffffff",
	"dhcp",
	"setenv serverip 192.168.1.90",
	"tftpboot 0x84000000 linux/build/arch/riscv/boot/Image",
	"tftpboot 0x88000000 linux/build/arch/riscv/boot/dts/starfive/jh7100-starfive-visionfive-v1.dtb",
	"tftpboot 0x88300000 ramdisk/rootfs.cpio.gz.uboot",
	"setenv bootargs 'console=ttyS0,115200n8 root=/dev/ram0 console_msg_format=syslog earlycon ip=dhcp'",
	"booti 0x84000000 0x88300000 0x88000000",
}

const kernelBoot = "\r\n## Flattened Device Tree blob at 88000000\r\n" +
	"Starting kernel ...\r\n\r\n" +
	"[    0.000000] Linux version 5.15.0-starfive (builder@lab) #1 SMP\r\n"

// board answers like a healthy VisionFive; override replaces the answer to
// lines it has an entry for.
func board(override map[string]string) func(string) string {
	prompt := consoletest.Prompter("VisionFive #")
	return func(line string) string {
		if out, ok := override[line]; ok {
			return line + "\r\n" + out
		}
		if strings.HasPrefix(line, "booti") {
			return line + kernelBoot
		}
		return prompt(line)
	}
}

func synchronized(t *testing.T) *console.Machine {
	t.Helper()
	m := console.NewMachine()
	require.NoError(t, m.Advance(console.Synchronized))
	return m
}

func TestSequencer_RoundTrip(t *testing.T) {
	s, err := NewSequencer(DefaultParameters(), DefaultTimeouts())
	require.NoError(t, err)
	require.Equal(t, expectedLines, s.Lines())

	c := &consoletest.Console{Respond: board(nil)}
	m := synchronized(t)

	result, err := s.Run(c, m)
	require.NoError(t, err)
	require.Equal(t, console.Completed, m.State())
	require.Equal(t, expectedLines, c.Sent)
	require.Len(t, result.Steps, 9)
	require.Equal(t, "Linux version 5.15.0-starfive", result.Banner)
	require.Empty(t, result.Shell)

	for i, step := range result.Steps {
		require.Equal(t, i+1, step.Step)
		require.Equal(t, expectedLines[i], step.Command)
		require.Equal(t, console.ExpectedSuccess, step.Response.Kind)
	}
}

func TestSequencer_StepTimeouts(t *testing.T) {
	timeouts := Timeouts{Command: time.Second, Transfer: 2 * time.Second, Boot: 3 * time.Second}
	s, err := NewSequencer(DefaultParameters(), timeouts)
	require.NoError(t, err)

	c := &consoletest.Console{Respond: board(nil)}
	_, err = s.Run(c, synchronized(t))
	require.NoError(t, err)

	require.Equal(t, []time.Duration{
		time.Second, time.Second, 2 * time.Second, time.Second,
		2 * time.Second, 2 * time.Second, 2 * time.Second,
		time.Second, 3 * time.Second,
	}, c.Waits)
}

func TestSequencer_StopsAtKernelTransferTimeout(t *testing.T) {
	s, err := NewSequencer(DefaultParameters(), DefaultTimeouts())
	require.NoError(t, err)

	c := &consoletest.Console{Respond: board(map[string]string{
		expectedLines[4]: "Using ethernet@10090000 device\r\nTFTP from server 192.168.1.90\r\n",
	})}
	m := synchronized(t)

	result, err := s.Run(c, m)

	var serr *SequenceError
	require.True(t, errors.As(err, &serr))
	require.Equal(t, 5, serr.Step)
	require.Equal(t, "load_kernel", serr.Name)
	require.Equal(t, "command#5", serr.Stage())
	require.Equal(t, console.NoResponse, serr.Err.Kind)
	require.Equal(t, console.Failed, m.State())
	require.Len(t, c.Sent, 5)
	require.Len(t, result.Steps, 4)
}

func TestSequencer_FailureResponse(t *testing.T) {
	tests := []struct {
		name string
		line int
		out  string
		kind console.ResponseKind
	}{
		{"missing dtb", 5, "TFTP error: 'File not found' (1)\r\nVisionFive # ", console.TransferDenied},
		{"bad ramdisk", 8, "Wrong Ramdisk Image Format\r\nVisionFive # ", console.WrongRamdiskFormat},
		{"bad kernel", 8, "Bad Linux RISCV Image magic!\r\nVisionFive # ", console.ImageMagicMismatch},
		{"dhcp timeout", 2, "Retry time exceeded; starting again\r\n", console.RetryTimeExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSequencer(DefaultParameters(), DefaultTimeouts())
			require.NoError(t, err)

			c := &consoletest.Console{Respond: board(map[string]string{expectedLines[tt.line]: tt.out})}
			m := synchronized(t)

			_, err = s.Run(c, m)

			var serr *SequenceError
			require.True(t, errors.As(err, &serr))
			require.Equal(t, tt.line+1, serr.Step)
			require.Equal(t, tt.kind, serr.Err.Kind)
			require.Equal(t, expectedLines[tt.line], serr.Command)
			require.Equal(t, console.Failed, m.State())
			require.Len(t, c.Sent, tt.line+1)

			var cerr *console.CommandFailedError
			require.True(t, errors.As(err, &cerr))
		})
	}
}

func TestSequencer_ShellWait(t *testing.T) {
	s, err := NewSequencer(DefaultParameters(), DefaultTimeouts(), WithShellWait(time.Minute))
	require.NoError(t, err)

	c := &consoletest.Console{Respond: board(map[string]string{
		expectedLines[8]: kernelBoot + "[    2.1] Run /init as init process\r\n\r\nbuildroot login: ",
	})}
	m := synchronized(t)

	result, err := s.Run(c, m)
	require.NoError(t, err)
	require.Equal(t, "login: ", result.Shell)
	require.Equal(t, console.Completed, m.State())
	require.Equal(t, time.Minute, c.Waits[len(c.Waits)-1])
}

func TestSequencer_KernelPanic(t *testing.T) {
	s, err := NewSequencer(DefaultParameters(), DefaultTimeouts(), WithShellWait(time.Minute))
	require.NoError(t, err)

	c := &consoletest.Console{Respond: board(map[string]string{
		expectedLines[8]: kernelBoot + "Kernel panic - not syncing: VFS: Unable to mount root fs\r\n",
	})}
	m := synchronized(t)

	_, err = s.Run(c, m)

	var serr *SequenceError
	require.True(t, errors.As(err, &serr))
	require.Equal(t, 10, serr.Step)
	require.Equal(t, ShellStep, serr.Stage())
	require.Equal(t, console.KernelPanic, serr.Err.Kind)
	require.Equal(t, console.Failed, m.State())
}

func TestSequencer_RequiresSynchronizedConsole(t *testing.T) {
	s, err := NewSequencer(DefaultParameters(), DefaultTimeouts())
	require.NoError(t, err)

	c := &consoletest.Console{Respond: board(nil)}
	_, err = s.Run(c, console.NewMachine())

	var terr *console.TransitionError
	require.True(t, errors.As(err, &terr))
	require.Empty(t, c.Sent)
}

func TestNewSequencer_RejectsInvalidParameters(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Parameters)
	}{
		{"hostname server", func(p *Parameters) { p.ServerAddress = "tftp.lab" }},
		{"absolute prefix", func(p *Parameters) { p.KernelPrefix = "/srv/tftp/linux" }},
		{"traversing dtb", func(p *Parameters) { p.DeviceTreeFile = "../../../etc/shadow" }},
		{"quoted console", func(p *Parameters) { p.ConsoleDevice = "ttyS0' init=/bin/sh '" }},
		{"empty ramdisk", func(p *Parameters) { p.RamdiskPath = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParameters()
			tt.mutate(&p)
			_, err := NewSequencer(p, DefaultTimeouts())
			require.Error(t, err)
		})
	}
}

func TestNewSequencer_CustomSteps(t *testing.T) {
	steps := []CommandSpec{
		{Name: "version", Template: "version", Expect: console.ReadyPrompt, Timeout: time.Second},
		{Name: "bad", Template: "echo {nope}", Expect: console.ReadyPrompt, Timeout: time.Second},
	}
	_, err := NewSequencer(DefaultParameters(), DefaultTimeouts(), WithSteps(steps))
	require.ErrorContains(t, err, "nope")

	s, err := NewSequencer(DefaultParameters(), DefaultTimeouts(), WithSteps(steps[:1]))
	require.NoError(t, err)
	require.Equal(t, []string{"version"}, s.Lines())
}

func TestSequencer_CustomPrompt(t *testing.T) {
	prompt := console.Literal("=>", console.ExpectedSuccess)
	s, err := NewSequencer(DefaultParameters(), DefaultTimeouts(), WithPrompt(prompt))
	require.NoError(t, err)

	c := &consoletest.Console{Respond: func(line string) string {
		if strings.HasPrefix(line, "booti") {
			return line + kernelBoot
		}
		return line + "\r\n=> "
	}}

	_, err = s.Run(c, synchronized(t))
	require.NoError(t, err)
	require.Len(t, c.Sent, 9)
}
