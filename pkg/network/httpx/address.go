package httpx

import (
	"net"
	"strconv"
)

// reachable turns a bind address into one a local client can dial.
// Wildcard hosts become localhost and the bound port replaces the
// requested one, so ":0" reads as "localhost:53124".
func reachable(bind string, port int) string {
	host, _, err := net.SplitHostPort(bind)
	if err != nil {
		host = bind
	}
	switch host {
	case "", "0.0.0.0", "::", "[::]":
		host = "localhost"
	}
	if port <= 0 {
		return host
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}
