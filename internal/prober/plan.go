// Package prober generates probe packet trains for every priority policy
// and sends them over UDP.
package prober

import (
	"fmt"
	"io"

	"firestige.xyz/udptrain/internal/core"
	"firestige.xyz/udptrain/internal/probe"
)

// Config describes one probe run.
type Config struct {
	Policy core.Policy
	// Priority is the first class of an interleaved run, or the class sent
	// by a variable-payload run.
	Priority core.Priority
	Entropy  core.Entropy

	// Count is the train length of the none and variable-payload policies.
	Count int
	// Initial, Separation and Trains shape an interleaved run: Initial
	// packets of the first class, then Trains times one packet of the first
	// class followed by Separation packets of the second.
	Initial    int
	Separation int
	Trains     int

	Length int
	// Extra is added to Length for high-priority packets of a
	// variable-payload run.
	Extra int

	// Random fills high-entropy padding. nil means crypto/rand.
	Random io.Reader
}

// Validate checks the run before any socket is opened. Sequence ids must fit
// the signed 32-bit wire field, so runs that would overflow it are refused.
func (c Config) Validate() error {
	if !c.Policy.Valid() {
		return fmt.Errorf("%w: unknown policy %d", core.ErrConfigInvalid, c.Policy)
	}
	if c.Entropy != core.EntropyHigh && c.Entropy != core.EntropyLow {
		return fmt.Errorf("%w: entropy %q", core.ErrInvalidPriority, byte(c.Entropy))
	}
	if c.Policy != core.PolicyNone && !c.Priority.Valid() {
		return fmt.Errorf("%w: priority %q", core.ErrInvalidPriority, byte(c.Priority))
	}
	if err := probe.ValidateLength(c.Length, c.Policy.Tagged()); err != nil {
		return err
	}

	switch c.Policy {
	case core.PolicyNone, core.PolicyVariablePayload:
		if c.Count < 0 || int64(c.Count) > probe.MaxSequence+1 {
			return fmt.Errorf("%w: packet count %d out of range", core.ErrConfigInvalid, c.Count)
		}
		if c.Policy == core.PolicyVariablePayload {
			if c.Extra < 0 {
				return fmt.Errorf("%w: negative extra length %d", core.ErrConfigInvalid, c.Extra)
			}
			if err := probe.ValidateLength(c.Length+c.Extra, true); err != nil {
				return err
			}
		}
	default:
		if c.Initial < 0 || c.Separation < 0 || c.Trains < 0 {
			return fmt.Errorf("%w: negative train geometry %d/%d/%d",
				core.ErrConfigInvalid, c.Initial, c.Separation, c.Trains)
		}
		first := int64(c.Initial) + int64(c.Trains)
		second := int64(c.Trains) * int64(c.Separation)
		if first > probe.MaxSequence+1 || second > probe.MaxSequence+1 {
			return fmt.Errorf("%w: train geometry overflows 32-bit sequence ids", core.ErrConfigInvalid)
		}
	}
	return nil
}

// Send is one planned datagram. Class is zero for untagged runs.
type Send struct {
	Class    core.Priority
	Sequence int32
	Length   int
}

// Planner enumerates the datagrams of a run in transmission order.
type Planner struct {
	cfg Config
}

// NewPlanner validates cfg.
func NewPlanner(cfg Config) (*Planner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Planner{cfg: cfg}, nil
}

// Classes lists the classes the run sends, first class first.
func (p *Planner) Classes() []core.Priority {
	switch {
	case p.cfg.Policy == core.PolicyNone:
		return []core.Priority{0}
	case p.cfg.Policy.Interleaved():
		return []core.Priority{p.cfg.Priority, p.cfg.Priority.Other()}
	}
	return []core.Priority{p.cfg.Priority}
}

// LengthOf is the payload length sent for class.
func (p *Planner) LengthOf(class core.Priority) int {
	if p.cfg.Policy == core.PolicyVariablePayload && class == core.PriorityHigh {
		return p.cfg.Length + p.cfg.Extra
	}
	return p.cfg.Length
}

// Expected returns how many datagrams each class receives.
func (p *Planner) Expected() map[core.Priority]int {
	c := p.cfg
	if c.Policy.Interleaved() {
		return map[core.Priority]int{
			c.Priority:         c.Initial + c.Trains,
			c.Priority.Other(): c.Trains * c.Separation,
		}
	}
	return map[core.Priority]int{p.Classes()[0]: c.Count}
}

// Each calls fn for every datagram in order until fn returns false. Every
// class counts its sequence ids from zero independently.
func (p *Planner) Each(fn func(Send) bool) {
	c := p.cfg
	if !c.Policy.Interleaved() {
		class := p.Classes()[0]
		length := p.LengthOf(class)
		for i := 0; i < c.Count; i++ {
			if !fn(Send{Class: class, Sequence: int32(i), Length: length}) {
				return
			}
		}
		return
	}

	first, second := c.Priority, c.Priority.Other()
	var firstSeq, secondSeq int32
	for i := 0; i < c.Initial; i++ {
		if !fn(Send{Class: first, Sequence: firstSeq, Length: c.Length}) {
			return
		}
		firstSeq++
	}
	for t := 0; t < c.Trains; t++ {
		if !fn(Send{Class: first, Sequence: firstSeq, Length: c.Length}) {
			return
		}
		firstSeq++
		for s := 0; s < c.Separation; s++ {
			if !fn(Send{Class: second, Sequence: secondSeq, Length: c.Length}) {
				return
			}
			secondSeq++
		}
	}
}

// Plan materializes a run.
func Plan(cfg Config) ([]Send, error) {
	p, err := NewPlanner(cfg)
	if err != nil {
		return nil, err
	}
	var out []Send
	p.Each(func(s Send) bool {
		out = append(out, s)
		return true
	})
	return out, nil
}
