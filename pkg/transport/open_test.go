package transport

import (
	"net"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRelayEndpoint(t *testing.T) {
	tests := []struct {
		target   string
		endpoint string
		relay    bool
	}{
		{"2001", "localhost:2001", true},
		{"lab-relay:3001", "lab-relay:3001", true},
		{":4000", "localhost:4000", true},
		{"192.168.1.10:7000", "192.168.1.10:7000", true},
		{"/dev/ttyUSB0", "", false},
		{"ttyS0", "", false},
		{"0", "", false},
		{"70000", "", false},
		{"host:serial", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			endpoint, relay := relayEndpoint(tt.target)
			require.Equal(t, tt.relay, relay)
			require.Equal(t, tt.endpoint, endpoint)
		})
	}
}

func TestOpen_Relay(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.Write([]byte("\xff\xfb\x01\r\nVisionFive # "))
		time.Sleep(200 * time.Millisecond)
	}()

	s, err := Open(ln.Addr().String(), DefaultBaud)
	require.NoError(t, err)
	defer s.Close()

	idx, text, err := s.ReadUntilMatch([]*regexp.Regexp{regexp.MustCompile(`\nVisionFive #`)}, 2*time.Second)
	require.NoError(t, err)
	require.Equal(t, 0, idx)
	require.Equal(t, "\nVisionFive #", text)
}

func TestOpen_MissingSerialDevice(t *testing.T) {
	_, err := Open("/dev/does-not-exist-tftpboot", DefaultBaud)
	require.Error(t, err)
}
