package netcheck

import (
	"context"
	"net"
	"time"
)

const (
	DefaultAddr    = "generativelanguage.googleapis.com:443"
	DefaultTimeout = 3 * time.Second
)

// Checker reports whether the image service is reachable.
type Checker interface {
	Online(ctx context.Context) bool
}

// Probe dials a TCP address. A successful handshake counts as online.
type Probe struct {
	Addr    string
	Timeout time.Duration
	dial    func(ctx context.Context, network, addr string) (net.Conn, error)
}

func NewProbe(addr string, timeout time.Duration) *Probe {
	if addr == "" {
		addr = DefaultAddr
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	d := &net.Dialer{}
	return &Probe{Addr: addr, Timeout: timeout, dial: d.DialContext}
}

func (p *Probe) Online(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	conn, err := p.dial(ctx, "tcp", p.Addr)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Static always reports the same answer. Used when probing is disabled and in tests.
type Static bool

func (s Static) Online(context.Context) bool {
	return bool(s)
}
