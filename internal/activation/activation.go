// Package activation picks up listening sockets handed over by systemd
// socket activation.
package activation

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
)

// Systemd passes file descriptors starting at fd 3
// (0=stdin, 1=stdout, 2=stderr).
const firstFD = 3

// Listeners returns the systemd-activated listeners, or nil when the process
// was not socket activated. The activation variables are removed from the
// environment so child processes (svn) don't inherit them.
func Listeners() ([]net.Listener, error) {
	n, err := count(os.Getenv, os.Getpid())
	if err != nil || n == 0 {
		return nil, err
	}

	listeners, err := listenersFrom(firstFD, n)
	if err != nil {
		return nil, err
	}

	_ = os.Unsetenv("LISTEN_PID")
	_ = os.Unsetenv("LISTEN_FDS")
	_ = os.Unsetenv("LISTEN_FDNAMES")

	return listeners, nil
}

// Names returns the socket names from LISTEN_FDNAMES, used for logging.
func Names() []string {
	v := os.Getenv("LISTEN_FDNAMES")
	if v == "" {
		return nil
	}
	return strings.Split(v, ":")
}

// count returns how many descriptors were passed to the process with the
// given pid.
func count(getenv func(string) string, pid int) (int, error) {
	pidStr := getenv("LISTEN_PID")
	if pidStr == "" {
		return 0, nil
	}

	listenPID, err := strconv.Atoi(pidStr)
	if err != nil {
		return 0, fmt.Errorf("invalid LISTEN_PID %q: %w", pidStr, err)
	}
	if listenPID != pid {
		// Socket activation is for a different process
		return 0, nil
	}

	fdsStr := getenv("LISTEN_FDS")
	if fdsStr == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(fdsStr)
	if err != nil {
		return 0, fmt.Errorf("invalid LISTEN_FDS %q: %w", fdsStr, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid LISTEN_FDS %q: negative", fdsStr)
	}
	return n, nil
}

func listenersFrom(start, n int) ([]net.Listener, error) {
	listeners := make([]net.Listener, 0, n)
	for i := 0; i < n; i++ {
		fd := start + i
		file := os.NewFile(uintptr(fd), fmt.Sprintf("systemd-socket-%d", i))
		if file == nil {
			closeAll(listeners)
			return nil, fmt.Errorf("failed to create file for fd %d", fd)
		}

		listener, err := net.FileListener(file)
		// The listener holds its own duplicate of the descriptor.
		_ = file.Close()
		if err != nil {
			closeAll(listeners)
			return nil, fmt.Errorf("failed to create listener from fd %d: %w", fd, err)
		}

		listeners = append(listeners, listener)
	}
	return listeners, nil
}

func closeAll(listeners []net.Listener) {
	for _, l := range listeners {
		_ = l.Close()
	}
}
