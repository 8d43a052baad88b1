package transport

import (
	"net"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOpen_RelayAnswersNegotiation(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	reply := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		// DO TERMINAL-TYPE, then console output carrying an escaped 0xff.
		conn.Write([]byte("\xff\xfd\x18boot\xff\xff\r\nVisionFive # "))

		buf := make([]byte, 16)
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		n, _ := conn.Read(buf)
		reply <- buf[:n]
	}()

	s, err := Open(ln.Addr().String(), DefaultBaud)
	require.NoError(t, err)
	defer s.Close()

	_, text, err := s.ReadUntilMatch([]*regexp.Regexp{regexp.MustCompile(`(?s)^.*VisionFive #`)}, 2*time.Second)
	require.NoError(t, err)
	require.Equal(t, "boot\xff\r\nVisionFive #", text)

	select {
	case got := <-reply:
		require.NotEmpty(t, got)
		require.Equal(t, byte(0xff), got[0])
	case <-time.After(3 * time.Second):
		t.Fatal("relay never saw a negotiation reply")
	}
}

func TestOpen_RelayRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	_, err = Open(addr, DefaultBaud)
	require.ErrorContains(t, err, "failed to connect to relay")
}
