package api

import (
	"net"

	"golang.org/x/net/netutil"

	"github.com/lumenlib/lumen-server/internal/errors"
)

// Listen opens a TCP listener on addr that accepts at most maxConns
// simultaneous connections. maxConns <= 0 means unlimited.
func Listen(addr string, maxConns int) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeInternal, "listen on %s", addr)
	}
	if maxConns > 0 {
		ln = netutil.LimitListener(ln, maxConns)
	}
	return ln, nil
}
