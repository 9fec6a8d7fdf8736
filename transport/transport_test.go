package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kprime/fixengine/message"
)

func buildFrame(t *testing.T) []byte {
	t.Helper()
	m := message.New(message.MsgTypeHeartbeat)
	m.Set(message.TagBeginString, "FIX.4.2")
	frame, err := message.Encode(m)
	require.NoError(t, err)
	return frame
}

func listenLocal(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	return ln
}

func TestSendRecvRoundTrip(t *testing.T) {
	ln := listenLocal(t)

	serverConnCh := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			serverConnCh <- c
		}
	}()

	client, err := Connect(context.Background(), "S1", ln.Addr().String(), Config{})
	require.NoError(t, err)
	defer client.Close()

	serverRaw := <-serverConnCh
	server, err := Accept("S1", serverRaw, Config{})
	require.NoError(t, err)
	defer server.Close()

	frame := buildFrame(t)
	require.NoError(t, client.Send(frame))

	got, err := server.Recv(time.Now().Add(2 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, frame, got)
}

func TestRecvBuffersPartialFrames(t *testing.T) {
	ln := listenLocal(t)

	serverConnCh := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			serverConnCh <- c
		}
	}()

	client, err := Connect(context.Background(), "S1", ln.Addr().String(), Config{})
	require.NoError(t, err)
	defer client.Close()

	serverRaw := <-serverConnCh
	server, err := Accept("S1", serverRaw, Config{})
	require.NoError(t, err)
	defer server.Close()

	frame := buildFrame(t)
	half := len(frame) / 2

	require.NoError(t, client.Send(frame[:half]))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, client.Send(frame[half:]))

	got, err := server.Recv(time.Now().Add(2 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, frame, got)
}

func TestRecvTimeout(t *testing.T) {
	ln := listenLocal(t)

	serverConnCh := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			serverConnCh <- c
		}
	}()

	client, err := Connect(context.Background(), "S1", ln.Addr().String(), Config{})
	require.NoError(t, err)
	defer client.Close()

	serverRaw := <-serverConnCh
	server, err := Accept("S1", serverRaw, Config{})
	require.NoError(t, err)
	defer server.Close()

	_, err = server.Recv(time.Now().Add(50 * time.Millisecond))
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestClosedConnectionReturnsErrClosed(t *testing.T) {
	ln := listenLocal(t)

	serverConnCh := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			serverConnCh <- c
		}
	}()

	client, err := Connect(context.Background(), "S1", ln.Addr().String(), Config{})
	require.NoError(t, err)

	serverRaw := <-serverConnCh
	server, err := Accept("S1", serverRaw, Config{})
	require.NoError(t, err)
	defer server.Close()

	require.NoError(t, client.Close())
	err = client.Send(buildFrame(t))
	assert.ErrorIs(t, err, ErrClosed)
}
