package activation

import (
	"fmt"
	"net"
	"strconv"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envOf(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestCount(t *testing.T) {
	const pid = 4242

	tests := []struct {
		name    string
		env     map[string]string
		want    int
		wantErr bool
	}{
		{name: "no environment", env: nil, want: 0},
		{name: "other process", env: map[string]string{"LISTEN_PID": "99999", "LISTEN_FDS": "1"}, want: 0},
		{name: "invalid pid", env: map[string]string{"LISTEN_PID": "not-a-number", "LISTEN_FDS": "1"}, wantErr: true},
		{name: "missing fds", env: map[string]string{"LISTEN_PID": strconv.Itoa(pid)}, want: 0},
		{name: "invalid fds", env: map[string]string{"LISTEN_PID": strconv.Itoa(pid), "LISTEN_FDS": "x"}, wantErr: true},
		{name: "negative fds", env: map[string]string{"LISTEN_PID": strconv.Itoa(pid), "LISTEN_FDS": "-1"}, wantErr: true},
		{name: "zero fds", env: map[string]string{"LISTEN_PID": strconv.Itoa(pid), "LISTEN_FDS": "0"}, want: 0},
		{name: "two fds", env: map[string]string{"LISTEN_PID": strconv.Itoa(pid), "LISTEN_FDS": "2"}, want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := count(envOf(tt.env), pid)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestListeners_NoEnvironment(t *testing.T) {
	t.Setenv("LISTEN_PID", "")
	t.Setenv("LISTEN_FDS", "")

	listeners, err := Listeners()
	require.NoError(t, err)
	assert.Nil(t, listeners)
}

func TestListeners_InvalidPID(t *testing.T) {
	t.Setenv("LISTEN_PID", "not-a-number")
	t.Setenv("LISTEN_FDS", "1")

	_, err := Listeners()
	assert.Error(t, err)
}

func TestListenersFrom_PassedSocket(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() {
		_ = l.Close()
	}()

	file, err := l.(*net.TCPListener).File()
	require.NoError(t, err)
	defer func() {
		_ = file.Close()
	}()

	// listenersFrom takes ownership of the descriptor, hand it a copy.
	fd, err := syscall.Dup(int(file.Fd()))
	require.NoError(t, err)

	listeners, err := listenersFrom(fd, 1)
	require.NoError(t, err)
	require.Len(t, listeners, 1)
	defer closeAll(listeners)

	assert.Equal(t, l.Addr().String(), listeners[0].Addr().String())
}

func TestListenersFrom_NotASocket(t *testing.T) {
	fds := make([]int, 2)
	require.NoError(t, syscall.Pipe(fds))
	defer func() {
		_ = syscall.Close(fds[1])
	}()

	_, err := listenersFrom(fds[0], 1)
	assert.Error(t, err)
}

func TestNames(t *testing.T) {
	t.Setenv("LISTEN_FDNAMES", "http:metrics")
	assert.Equal(t, []string{"http", "metrics"}, Names())

	t.Setenv("LISTEN_FDNAMES", "")
	assert.Nil(t, Names())
}

// Example demonstrates how socket activation detection works
func ExampleListeners() {
	listeners, err := Listeners()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	if listeners == nil {
		fmt.Println("No socket activation detected")
	} else {
		fmt.Printf("Received %d systemd socket(s)\n", len(listeners))
	}
}
