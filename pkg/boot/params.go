// Package boot describes the VisionFive TFTP boot protocol: the parameters
// of a boot, the fixed command sequence they are rendered into, and the
// Sequencer that drives that sequence over a synchronized console.
package boot

import (
	"fmt"

	"github.com/visionfive-tools/tftpboot/pkg/errors"
	"github.com/visionfive-tools/tftpboot/pkg/security"
)

// LoadAddresses are the RAM addresses the boot images are transferred to.
type LoadAddresses struct {
	Kernel     uint64
	DeviceTree uint64
	Ramdisk    uint64
}

// DefaultLoadAddresses fit the JH7100 memory map.
var DefaultLoadAddresses = LoadAddresses{
	Kernel:     0x84000000,
	DeviceTree: 0x88000000,
	Ramdisk:    0x88300000,
}

// Parameters are the user-supplied parts of a boot.
type Parameters struct {
	// ServerAddress is the TFTP server, dotted-quad IPv4.
	ServerAddress string

	// KernelPrefix is the directory holding Image and the device tree,
	// relative to the TFTP root.
	KernelPrefix string

	// DeviceTreeFile is relative to KernelPrefix.
	DeviceTreeFile string

	// RamdiskPath is the U-Boot wrapped initramfs, relative to the TFTP root.
	RamdiskPath string

	// ConsoleDevice is the kernel console argument.
	ConsoleDevice string
}

// DefaultParameters returns the parameters of the reference lab setup.
func DefaultParameters() Parameters {
	return Parameters{
		ServerAddress:  "192.168.1.90",
		KernelPrefix:   "linux/build/arch/riscv/boot",
		DeviceTreeFile: "dts/starfive/jh7100-starfive-visionfive-v1.dtb",
		RamdiskPath:    "ramdisk/rootfs.cpio.gz.uboot",
		ConsoleDevice:  "ttyS0,115200n8",
	}
}

// Validate checks every parameter with v. A nil v uses the default limits.
func (p Parameters) Validate(v *security.Validator) error {
	if v == nil {
		v = security.NewValidator(security.DefaultMaxPathLength, security.DefaultMaxCommandLength)
	}

	if err := v.ValidateServerAddress(p.ServerAddress); err != nil {
		return errors.Wrap(err, "invalid server address")
	}
	if err := v.ValidatePath(p.KernelPrefix); err != nil {
		return errors.Wrap(err, "invalid kernel prefix")
	}
	if err := v.ValidatePath(p.DeviceTreeFile); err != nil {
		return errors.Wrap(err, "invalid device tree file")
	}
	if err := v.ValidatePath(p.KernelPrefix + "/" + p.DeviceTreeFile); err != nil {
		return errors.Wrap(err, "invalid device tree file")
	}
	if err := v.ValidatePath(p.KernelPrefix + "/Image"); err != nil {
		return errors.Wrap(err, "invalid kernel image path")
	}
	if err := v.ValidatePath(p.RamdiskPath); err != nil {
		return errors.Wrap(err, "invalid ramdisk path")
	}
	if err := v.ValidateArgument(p.ConsoleDevice); err != nil {
		return errors.Wrap(err, "invalid console device")
	}
	return nil
}

// Variables returns the placeholder values command templates are rendered
// with.
func Variables(p Parameters) map[string]string {
	return map[string]string{
		"server":        p.ServerAddress,
		"kernel_prefix": p.KernelPrefix,
		"dtb":           p.DeviceTreeFile,
		"ramdisk":       p.RamdiskPath,
		"console":       p.ConsoleDevice,
		"kernel_addr":   fmt.Sprintf("0x%08x", DefaultLoadAddresses.Kernel),
		"fdt_addr":      fmt.Sprintf("0x%08x", DefaultLoadAddresses.DeviceTree),
		"ramdisk_addr":  fmt.Sprintf("0x%08x", DefaultLoadAddresses.Ramdisk),
	}
}
