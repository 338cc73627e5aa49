package probe

import (
	"context"
	"net"
	"time"

	"github.com/uptimeguard/monitorcore/internal/model"
)

// probeTCP opens a socket against addr within timeout, reporting up on
// a successful three-way handshake. The socket is always closed on
// every exit path.
func (e *Engine) probeTCP(ctx context.Context, addr string, timeout time.Duration) (up bool, errMsg string) {
	host, port, err := model.SplitHostPort(addr)
	if err != nil {
		return false, err.Error()
	}

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
	if err != nil {
		return false, err.Error()
	}
	defer conn.Close()

	return true, ""
}
