package capture

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"firestige.xyz/udptrain/internal/core"
)

// ErrWouldBlock is returned by Receive when no datagram is pending.
var ErrWouldBlock = errors.New("capture: no datagram available")

// PacketSource delivers datagrams without blocking for long. Receive returns
// ErrWouldBlock when nothing arrived within its polling window.
type PacketSource interface {
	Receive(buf []byte) (int, net.Addr, error)
	Close() error
}

// ListenOptions configures the UDP listener.
type ListenOptions struct {
	Address string
	Port    int
	// ReadBuffer sets SO_RCVBUF when positive.
	ReadBuffer int
	// PollInterval bounds how long one Receive waits.
	PollInterval time.Duration
}

// UDPSource is a PacketSource over a bound IPv4 UDP socket.
type UDPSource struct {
	conn *net.UDPConn
	poll time.Duration
}

// ListenUDP binds an IPv4 UDP socket with SO_REUSEADDR set.
func ListenUDP(ctx context.Context, opts ListenOptions) (*UDPSource, error) {
	if opts.PollInterval <= 0 {
		return nil, fmt.Errorf("%w: poll interval must be positive", core.ErrConfigInvalid)
	}
	address := net.JoinHostPort(opts.Address, strconv.Itoa(opts.Port))
	if _, err := net.ResolveUDPAddr("udp4", address); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrAddressResolution, address, err)
	}

	lc := net.ListenConfig{Control: reuseAddrControl}
	pc, err := lc.ListenPacket(ctx, "udp4", address)
	if err != nil {
		if errors.Is(err, core.ErrSocketSetup) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %v", core.ErrBind, address, err)
	}
	conn := pc.(*net.UDPConn)
	if opts.ReadBuffer > 0 {
		if err := conn.SetReadBuffer(opts.ReadBuffer); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("%w: SO_RCVBUF: %v", core.ErrSocketSetup, err)
		}
	}
	return &UDPSource{conn: conn, poll: opts.PollInterval}, nil
}

// LocalAddr is the bound address.
func (s *UDPSource) LocalAddr() net.Addr { return s.conn.LocalAddr() }

func (s *UDPSource) Receive(buf []byte) (int, net.Addr, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(s.poll)); err != nil {
		return 0, nil, err
	}
	n, addr, err := s.conn.ReadFromUDP(buf)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return 0, nil, ErrWouldBlock
		}
		return 0, nil, err
	}
	return n, addr, nil
}

func (s *UDPSource) Close() error { return s.conn.Close() }
