package httpx

import (
	"errors"
	"net"
	"os"
	"runtime"
	"strconv"
	"syscall"

	"github.com/vizrig/vizrig/pkg/logger"
)

const maxPortRollAttempts = 42

type Listener struct {
	net.Listener
}

// NewListener listens on address, trying the next ports when rollPorts
// is set and the port is taken.
func NewListener(address string, rollPorts bool, log *logger.Logger) (*Listener, error) {
	ls, err := net.Listen("tcp4", address)
	if err == nil {
		return &Listener{ls}, nil
	}
	if !rollPorts || !isErrorAddressAlreadyInUse(err) {
		return nil, err
	}
	host, port, serr := net.SplitHostPort(address)
	if serr != nil {
		return nil, err
	}
	p, serr := strconv.Atoi(port)
	if serr != nil {
		return nil, err
	}
	for i := p + 1; i < p+maxPortRollAttempts; i++ {
		ls, err = net.Listen("tcp4", net.JoinHostPort(host, strconv.Itoa(i)))
		if err == nil {
			if log != nil {
				log.Warn().Msgf("port %v is busy, rolled to %v", p, i)
			}
			return &Listener{ls}, nil
		}
	}
	return nil, err
}

func (l Listener) GetPort() int {
	if l.Listener == nil {
		return 0
	}
	tcp, ok := l.Addr().(*net.TCPAddr)
	if !ok || tcp == nil {
		return 0
	}
	return tcp.Port
}

func isErrorAddressAlreadyInUse(err error) bool {
	var eOsSyscall *os.SyscallError
	if !errors.As(err, &eOsSyscall) {
		return false
	}
	var errErrno syscall.Errno
	if !errors.As(eOsSyscall, &errErrno) {
		return false
	}
	if errErrno == syscall.EADDRINUSE {
		return true
	}
	const WSAEADDRINUSE = 10048
	if runtime.GOOS == "windows" && errErrno == WSAEADDRINUSE {
		return true
	}
	return false
}
