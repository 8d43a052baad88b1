//go:build linux

package transport

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/visionfive-tools/tftpboot/pkg/errors"
	"golang.org/x/sys/unix"
)

var baudRates = map[int]uint32{
	9600:    unix.B9600,
	19200:   unix.B19200,
	38400:   unix.B38400,
	57600:   unix.B57600,
	115200:  unix.B115200,
	230400:  unix.B230400,
	460800:  unix.B460800,
	921600:  unix.B921600,
	1500000: unix.B1500000,
}

// openSerial opens a tty in raw 8N1 mode without flow control. The
// descriptor is non-blocking so the returned file honours read deadlines.
func openSerial(path string, baud int) (*os.File, error) {
	speed, ok := baudRates[baud]
	if !ok {
		return nil, fmt.Errorf("unsupported baud rate %d", baud)
	}

	slog.Info("serial_open", "device", path, "baud", baud)

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		slog.Error("serial_open_failed", "device", path, "error", err)
		return nil, errors.Wrap(err, "failed to open serial device")
	}

	tio, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		unix.Close(fd)
		slog.Error("serial_get_termios_failed", "device", path, "error", err)
		return nil, errors.Wrap(err, "not a terminal device")
	}

	tio.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON | unix.IXOFF | unix.IXANY
	tio.Oflag &^= unix.OPOST
	tio.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	tio.Cflag &^= unix.CSIZE | unix.PARENB | unix.CSTOPB | unix.CRTSCTS | unix.CBAUD
	tio.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL | speed
	tio.Ispeed = speed
	tio.Ospeed = speed
	tio.Cc[unix.VMIN] = 1
	tio.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, tio); err != nil {
		unix.Close(fd)
		slog.Error("serial_set_termios_failed", "device", path, "error", err)
		return nil, errors.Wrap(err, "failed to configure serial device")
	}

	slog.Info("serial_ready", "device", path, "baud", baud)
	return os.NewFile(uintptr(fd), path), nil
}
