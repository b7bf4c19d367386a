package capture

import (
	"errors"
	"net"
	"time"

	"firestige.xyz/udptrain/internal/core"
	"firestige.xyz/udptrain/internal/probe"
	"firestige.xyz/udptrain/internal/timing"
)

var testWall = time.Date(2024, 3, 9, 14, 5, 7, 0, time.Local)

type fakeClock struct {
	now  timing.Timespec
	wall time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{wall: testWall} }

func (c *fakeClock) Now() timing.Timespec { return c.now }

func (c *fakeClock) Wall() time.Time { return c.wall }

func (c *fakeClock) advance(d time.Duration) {
	c.now = timing.FromDuration(c.now.Duration() + d)
}

// step is one scripted Receive: the clock moves by advance, then data (or
// err) is returned.
type step struct {
	advance time.Duration
	data    []byte
	from    net.Addr
	err     error
	hook    func()
}

// scriptSource replays steps and then reports ErrWouldBlock, moving the
// clock by tick on every empty poll.
type scriptSource struct {
	clock  *fakeClock
	steps  []step
	tick   time.Duration
	closed int
}

func (s *scriptSource) Receive(buf []byte) (int, net.Addr, error) {
	if len(s.steps) == 0 {
		s.clock.advance(s.tick)
		return 0, nil, ErrWouldBlock
	}
	st := s.steps[0]
	s.steps = s.steps[1:]
	s.clock.advance(st.advance)
	if st.hook != nil {
		st.hook()
	}
	if st.err != nil {
		return 0, nil, st.err
	}
	if st.data == nil {
		return 0, nil, ErrWouldBlock
	}
	n := copy(buf, st.data)
	return n, st.from, nil
}

func (s *scriptSource) Close() error {
	s.closed++
	return nil
}

type flushCall struct {
	name string
	data string
	at   time.Duration
}

type recordingSink struct {
	clock *fakeClock
	calls []flushCall
	err   error
}

func (s *recordingSink) Write(name string, data []byte) error {
	if s.err != nil {
		return s.err
	}
	s.calls = append(s.calls, flushCall{name: name, data: string(data), at: s.clock.now.Duration()})
	return nil
}

func udpAddr(ip string, port int) *net.UDPAddr {
	return &net.UDPAddr{IP: net.ParseIP(ip).To4(), Port: port}
}

func packet(seq int32, tag core.Priority) []byte {
	pkt, err := probe.NewTemplate(probe.TemplateOptions{Length: 64, Tagged: tag != 0, Tag: tag})
	if err != nil {
		panic(err)
	}
	probe.Stamp(pkt, seq)
	return pkt
}

// withTagByte returns a copy of pkt whose tag byte is b.
func withTagByte(pkt []byte, b byte) []byte {
	out := append([]byte(nil), pkt...)
	out[probe.TagOffset] = b
	return out
}

var errBoom = errors.New("boom")
