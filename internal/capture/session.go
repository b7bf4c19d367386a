package capture

import (
	"math"
	"net"
	"time"

	"firestige.xyz/udptrain/internal/probe"
	"firestige.xyz/udptrain/internal/timing"
)

// State is the collector lifecycle state.
type State int

const (
	StateAwaitingFirstPacket State = iota
	StateCapturing
	StateFlushing
	StateTerminated
	StateInterrupted
)

var stateNames = [...]string{"awaiting-first-packet", "capturing", "flushing", "terminated", "interrupted"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Event is what a Tick decided.
type Event int

const (
	EventNone Event = iota
	EventDelimiter
	EventFlushDue
)

// disarmed pushes the idle timer beyond any reachable deadline.
const disarmed = time.Duration(math.MaxInt64)

// SessionConfig holds the timing parameters of a capture.
type SessionConfig struct {
	// RunTime is the deadline of the first round.
	RunTime time.Duration
	// LaterRunTime is the deadline of every round after the first flush.
	// Zero means RunTime/2.
	LaterRunTime  time.Duration
	IdleThreshold time.Duration
	Tagged        bool
	Delimiter     string
	// BufferCapacity limits the in-memory log; zero is unbounded.
	BufferCapacity int
}

// Session holds the timing state and capture buffer. It is owned by a
// single goroutine and does no I/O.
type Session struct {
	cfg SessionConfig

	state     State
	source    net.Addr
	buf       *LogBuffer
	lastFlush timing.Timespec
	deadline  time.Duration
	idle      time.Duration
	flushes   int
}

// NewSession starts a session whose first checkpoint is start.
func NewSession(cfg SessionConfig, start timing.Timespec) *Session {
	if cfg.LaterRunTime <= 0 {
		cfg.LaterRunTime = cfg.RunTime / 2
	}
	if cfg.Delimiter == "" {
		cfg.Delimiter = DefaultDelimiter
	}
	return &Session{
		cfg:       cfg,
		state:     StateAwaitingFirstPacket,
		buf:       NewLogBuffer(cfg.BufferCapacity),
		lastFlush: start,
		deadline:  cfg.RunTime,
		idle:      cfg.IdleThreshold,
	}
}

// Record decodes a datagram received at now and appends its line. The first
// packet fixes the source address for the rest of the session. A datagram
// shorter than the header is rejected and leaves the session unchanged.
func (s *Session) Record(now timing.Timespec, data []byte, from net.Addr) (Record, error) {
	p, err := probe.Decode(data, s.cfg.Tagged)
	if err != nil {
		return Record{}, err
	}
	rec := Record{
		Sequence: p.Sequence,
		Tag:      p.Tag,
		Offset:   timing.Diff(s.lastFlush, now),
	}
	if err := s.buf.AppendRecord(rec); err != nil {
		return Record{}, err
	}
	if s.state == StateAwaitingFirstPacket {
		s.source = from
		s.state = StateCapturing
	}
	return rec, nil
}

// Tick evaluates the deadline and idle timers at now. The deadline wins when
// both are due. An idle delimiter is written at most once per round.
func (s *Session) Tick(now timing.Timespec) (Event, error) {
	elapsed := timing.Diff(s.lastFlush, now).Duration()
	if elapsed >= s.deadline {
		s.state = StateFlushing
		return EventFlushDue, nil
	}
	if elapsed >= s.idle {
		if err := s.buf.AppendDelimiter(s.cfg.Delimiter); err != nil {
			return EventNone, err
		}
		s.idle = disarmed
		return EventDelimiter, nil
	}
	return EventNone, nil
}

// CompleteFlush empties the buffer after a successful write and moves the
// checkpoint to now. final terminates the session; otherwise the next round
// runs on the later deadline with the idle timer re-armed.
func (s *Session) CompleteFlush(now timing.Timespec, final bool) {
	s.flushes++
	s.buf.Reset()
	s.lastFlush = now
	s.deadline = s.cfg.LaterRunTime
	s.idle = s.cfg.IdleThreshold
	switch {
	case final:
		s.state = StateTerminated
	case s.source == nil:
		s.state = StateAwaitingFirstPacket
	default:
		s.state = StateCapturing
	}
}

// Interrupt marks the session as cancelled.
func (s *Session) Interrupt() { s.state = StateInterrupted }

func (s *Session) State() State { return s.state }

// Source is the learned sender address, nil until the first packet.
func (s *Session) Source() net.Addr { return s.source }

// Buffered returns the pending capture log.
func (s *Session) Buffered() []byte { return s.buf.Bytes() }

// Deadline is the run time of the current round.
func (s *Session) Deadline() time.Duration { return s.deadline }

// IdleArmed reports whether the idle delimiter can still fire this round.
func (s *Session) IdleArmed() bool { return s.idle != disarmed }

// Flushes counts completed flushes.
func (s *Session) Flushes() int { return s.flushes }
