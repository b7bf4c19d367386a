package prober

import (
	"fmt"
	"net"
	"strconv"

	"golang.org/x/net/ipv4"

	"firestige.xyz/udptrain/internal/core"
)

// Transport delivers a probe payload for a class. Sends are best effort.
type Transport interface {
	Send(class core.Priority, payload []byte) error
	Close() error
}

// Endpoints describes where a run sends.
type Endpoints struct {
	// Destinations holds one host, or the high and low hosts of a
	// dual-destination run.
	Destinations []string
	ProbePort    int
	HighPort     int
	LowPort      int
	HighTOS      int
	LowTOS       int
}

// Open creates the transport for policy.
func Open(policy core.Policy, ep Endpoints) (Transport, error) {
	want := 1
	if policy == core.PolicyDualDestination {
		want = 2
	}
	if len(ep.Destinations) != want {
		return nil, fmt.Errorf("%w: policy %s needs %d destination(s), got %d",
			core.ErrInvalidArguments, policy, want, len(ep.Destinations))
	}
	for _, d := range ep.Destinations {
		if d == "" {
			return nil, fmt.Errorf("%w: empty destination", core.ErrInvalidAddress)
		}
	}

	switch policy {
	case core.PolicyNone, core.PolicyVariablePayload:
		return dialSingle(ep.Destinations[0], ep.ProbePort)
	case core.PolicyDualDestination:
		return dialDualDestination(ep.Destinations[0], ep.Destinations[1], ep.ProbePort)
	case core.PolicyDualPort:
		return dialDualPort(ep.Destinations[0], ep.HighPort, ep.LowPort)
	case core.PolicyDualTOS:
		return dialDualTOS(ep.Destinations[0], ep.ProbePort, ep.HighTOS, ep.LowTOS)
	}
	return nil, fmt.Errorf("%w: unknown policy %d", core.ErrConfigInvalid, policy)
}

func resolve(host string, port int) (*net.UDPAddr, error) {
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("%w: %d", core.ErrInvalidPort, port)
	}
	addr, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrAddressResolution, host, err)
	}
	return addr, nil
}

func dial(host string, port int) (*net.UDPConn, error) {
	addr, err := resolve(host, port)
	if err != nil {
		return nil, err
	}
	conn, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrSocketCreation, addr, err)
	}
	return conn, nil
}

// singleTransport sends every class over one connected socket.
type singleTransport struct {
	conn *net.UDPConn
}

func dialSingle(host string, port int) (*singleTransport, error) {
	conn, err := dial(host, port)
	if err != nil {
		return nil, err
	}
	return &singleTransport{conn: conn}, nil
}

func (t *singleTransport) Send(_ core.Priority, payload []byte) error {
	_, err := t.conn.Write(payload)
	return err
}

func (t *singleTransport) Close() error { return t.conn.Close() }

// dualDestinationTransport holds one socket per class.
type dualDestinationTransport struct {
	high, low *net.UDPConn
}

func dialDualDestination(highHost, lowHost string, port int) (*dualDestinationTransport, error) {
	high, err := dial(highHost, port)
	if err != nil {
		return nil, err
	}
	low, err := dial(lowHost, port)
	if err != nil {
		_ = high.Close()
		return nil, err
	}
	return &dualDestinationTransport{high: high, low: low}, nil
}

func (t *dualDestinationTransport) Send(class core.Priority, payload []byte) error {
	conn := t.low
	if class == core.PriorityHigh {
		conn = t.high
	}
	_, err := conn.Write(payload)
	return err
}

func (t *dualDestinationTransport) Close() error {
	errHigh := t.high.Close()
	if err := t.low.Close(); err != nil {
		return err
	}
	return errHigh
}

// dualPortTransport switches the destination port on one unconnected socket.
type dualPortTransport struct {
	conn      *net.UDPConn
	high, low *net.UDPAddr
}

func dialDualPort(host string, highPort, lowPort int) (*dualPortTransport, error) {
	high, err := resolve(host, highPort)
	if err != nil {
		return nil, err
	}
	low, err := resolve(host, lowPort)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrSocketCreation, err)
	}
	return &dualPortTransport{conn: conn, high: high, low: low}, nil
}

func (t *dualPortTransport) Send(class core.Priority, payload []byte) error {
	addr := t.low
	if class == core.PriorityHigh {
		addr = t.high
	}
	_, err := t.conn.WriteToUDP(payload, addr)
	return err
}

func (t *dualPortTransport) Close() error { return t.conn.Close() }

// dualTOSTransport re-marks IP_TOS on one socket whenever the class changes.
type dualTOSTransport struct {
	conn    *net.UDPConn
	ip      *ipv4.Conn
	highTOS int
	lowTOS  int
	current int
}

func dialDualTOS(host string, port, highTOS, lowTOS int) (*dualTOSTransport, error) {
	conn, err := dial(host, port)
	if err != nil {
		return nil, err
	}
	t := &dualTOSTransport{
		conn:    conn,
		ip:      ipv4.NewConn(conn),
		highTOS: highTOS,
		lowTOS:  lowTOS,
		current: -1,
	}
	if err := t.mark(highTOS); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: IP_TOS: %v", core.ErrSocketSetup, err)
	}
	return t, nil
}

func (t *dualTOSTransport) mark(tos int) error {
	if tos == t.current {
		return nil
	}
	if err := t.ip.SetTOS(tos); err != nil {
		return err
	}
	t.current = tos
	return nil
}

// TOS is the marking currently applied to the socket.
func (t *dualTOSTransport) TOS() (int, error) { return t.ip.TOS() }

func (t *dualTOSTransport) Send(class core.Priority, payload []byte) error {
	tos := t.lowTOS
	if class == core.PriorityHigh {
		tos = t.highTOS
	}
	if err := t.mark(tos); err != nil {
		return err
	}
	_, err := t.conn.Write(payload)
	return err
}

func (t *dualTOSTransport) Close() error { return t.conn.Close() }
