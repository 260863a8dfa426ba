package ftp

import (
	"bytes"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPortPoolValidation(t *testing.T) {
	tests := []struct {
		name     string
		min, max int
		wantErr  bool
	}{
		{name: "valid range", min: 61000, max: 61010},
		{name: "single port", min: 61000, max: 61000},
		{name: "zero min", min: 0, max: 61000, wantErr: true},
		{name: "inverted", min: 61010, max: 61000, wantErr: true},
		{name: "above 65535", min: 61000, max: 70000, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPortPool(tt.min, tt.max)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPortPoolNeverDoubleAssigns(t *testing.T) {
	pool, err := NewPortPool(61100, 61119)
	require.NoError(t, err)

	var (
		mu        sync.Mutex
		ports     = make(map[int]bool)
		listeners []net.Listener
		wg        sync.WaitGroup
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			listener, port, err := pool.Acquire()
			if err != nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			assert.False(t, ports[port], "port %d handed out twice", port)
			ports[port] = true
			listeners = append(listeners, listener)
		}()
	}
	wg.Wait()

	assert.NotEmpty(t, ports)
	assert.Equal(t, len(ports), pool.Reserved())
	for _, l := range listeners {
		l.Close()
	}
}

func TestPortPoolExhaustionAndRelease(t *testing.T) {
	pool, err := NewPortPool(61200, 61204)
	require.NoError(t, err)

	type lease struct {
		listener net.Listener
		port     int
	}
	var leases []lease
	for {
		listener, port, err := pool.Acquire()
		if err != nil {
			assert.ErrorIs(t, err, ErrPoolExhausted)
			break
		}
		leases = append(leases, lease{listener, port})
	}
	require.NotEmpty(t, leases, "at least one port in the range must be free")

	// an exhausted pool rejects until a port comes back
	_, _, err = pool.Acquire()
	assert.ErrorIs(t, err, ErrPoolExhausted)

	first := leases[0]
	first.listener.Close()
	pool.Release(first.port)

	listener, port, err := pool.Acquire()
	require.NoError(t, err)
	defer listener.Close()
	assert.Equal(t, first.port, port, "a released port is reusable")

	for _, l := range leases[1:] {
		l.listener.Close()
		pool.Release(l.port)
	}
	pool.Release(port)
	listener.Close()
}

func TestPortPoolReleaseUnreservedIsNoop(t *testing.T) {
	pool, err := NewPortPool(61300, 61305)
	require.NoError(t, err)
	pool.Release(61300)
	assert.Zero(t, pool.Reserved())
}

func TestASCIIWriter(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "bare LF gets CR", in: "a\nb\n", want: "a\r\nb\r\n"},
		{name: "existing CRLF untouched", in: "a\r\nb\r\n", want: "a\r\nb\r\n"},
		{name: "mixed endings", in: "a\r\nb\nc", want: "a\r\nb\r\nc"},
		{name: "no trailing newline", in: "abc", want: "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			w := newASCIIWriter(&buf)
			n, err := w.Write([]byte(tt.in))
			require.NoError(t, err)
			assert.Equal(t, len(tt.in), n)
			assert.Equal(t, tt.want, buf.String())
		})
	}

	t.Run("CR LF split across writes", func(t *testing.T) {
		var buf bytes.Buffer
		w := newASCIIWriter(&buf)
		_, err := w.Write([]byte("a\r"))
		require.NoError(t, err)
		_, err = w.Write([]byte("\nb"))
		require.NoError(t, err)
		assert.Equal(t, "a\r\nb", buf.String())
	})
}
