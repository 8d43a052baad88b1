package transport

import (
	"log/slog"

	"github.com/ziutek/telnet"

	"github.com/visionfive-tools/tftpboot/pkg/errors"
)

// dialRelay connects to a telnet-relayed serial port. The telnet connection
// answers option negotiation and unescapes IAC bytes, so reads only ever
// return console output.
func dialRelay(endpoint string) (*telnet.Conn, error) {
	conn, err := telnet.DialTimeout("tcp", endpoint, dialTimeout)
	if err != nil {
		slog.Error("relay_dial_failed", "endpoint", endpoint, "error", err)
		return nil, errors.Wrap(err, "failed to connect to relay")
	}
	return conn, nil
}
