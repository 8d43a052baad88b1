package transport

import (
	"log/slog"
	"net"
	"strconv"
	"time"
)

// DefaultBaud is the VisionFive console speed.
const DefaultBaud = 115200

const dialTimeout = 10 * time.Second

// Open connects to target. A bare port number or a host:port pair selects a
// telnet relay; anything else is treated as a serial device path.
func Open(target string, baud int, opts ...Option) (*Stream, error) {
	if endpoint, ok := relayEndpoint(target); ok {
		slog.Info("transport_open", "target", target, "kind", "relay", "endpoint", endpoint)

		conn, err := dialRelay(endpoint)
		if err != nil {
			return nil, err
		}
		return NewStream(conn, endpoint, opts...), nil
	}

	slog.Info("transport_open", "target", target, "kind", "serial", "baud", baud)

	f, err := openSerial(target, baud)
	if err != nil {
		return nil, err
	}
	return NewStream(f, target, opts...), nil
}

// relayEndpoint reports whether target names a TCP relay and returns the
// address to dial.
func relayEndpoint(target string) (string, bool) {
	if validPort(target) {
		return net.JoinHostPort("localhost", target), true
	}

	host, port, err := net.SplitHostPort(target)
	if err != nil || !validPort(port) {
		return "", false
	}
	if host == "" {
		host = "localhost"
	}
	return net.JoinHostPort(host, port), true
}

func validPort(s string) bool {
	port, err := strconv.Atoi(s)
	return err == nil && port > 0 && port <= 65535
}
