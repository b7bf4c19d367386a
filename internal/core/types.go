package core

import (
	"fmt"
	"strings"
)

// Priority is the one-byte class tag carried at offset 4 of a probe packet.
type Priority byte

const (
	PriorityHigh Priority = 'H'
	PriorityLow  Priority = 'L'
)

// ParsePriority accepts "H" or "L" (case-insensitive).
func ParsePriority(s string) (Priority, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "H":
		return PriorityHigh, nil
	case "L":
		return PriorityLow, nil
	}
	return 0, fmt.Errorf("%w: %q (must be H or L)", ErrInvalidPriority, s)
}

// Other returns the opposite class.
func (p Priority) Other() Priority {
	if p == PriorityHigh {
		return PriorityLow
	}
	return PriorityHigh
}

func (p Priority) Valid() bool {
	return p == PriorityHigh || p == PriorityLow
}

func (p Priority) String() string {
	return string(rune(p))
}

// Entropy selects how probe padding is filled: Low is zero-filled, High is
// read from a random source.
type Entropy byte

const (
	EntropyHigh Entropy = 'H'
	EntropyLow  Entropy = 'L'
)

// ParseEntropy accepts "H" or "L" (case-insensitive).
func ParseEntropy(s string) (Entropy, error) {
	p, err := ParsePriority(s)
	if err != nil {
		return 0, err
	}
	return Entropy(p), nil
}

func (e Entropy) String() string {
	return string(rune(e))
}

// Policy is the priority interleaving scheme of a probe run.
type Policy int

const (
	// PolicyNone sends one untagged train to one destination.
	PolicyNone Policy = iota
	// PolicyDualDestination alternates classes over two sockets and two destinations.
	PolicyDualDestination
	// PolicyDualPort alternates classes over one socket by switching destination port.
	PolicyDualPort
	// PolicyDualTOS alternates classes over one socket by switching IP_TOS.
	PolicyDualTOS
	// PolicyVariablePayload sends one class whose payload size depends on the class.
	PolicyVariablePayload
)

var policyNames = map[Policy]string{
	PolicyNone:            "none",
	PolicyDualDestination: "dual-destination",
	PolicyDualPort:        "dual-port",
	PolicyDualTOS:         "dual-tos",
	PolicyVariablePayload: "variable-payload",
}

// ParsePolicy resolves a policy by its CLI name.
func ParsePolicy(s string) (Policy, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for p, n := range policyNames {
		if n == name {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown policy %q", ErrConfigInvalid, s)
}

func (p Policy) String() string {
	if n, ok := policyNames[p]; ok {
		return n
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

// Interleaved reports whether the policy sends trains alternating two classes.
func (p Policy) Interleaved() bool {
	return p == PolicyDualDestination || p == PolicyDualPort || p == PolicyDualTOS
}

// Tagged reports whether packets of the policy carry a priority tag byte.
func (p Policy) Tagged() bool {
	return p != PolicyNone
}

// Valid reports whether p is a known policy.
func (p Policy) Valid() bool {
	_, ok := policyNames[p]
	return ok
}

func (p Priority) MarshalText() ([]byte, error) {
	if p == 0 {
		return nil, nil
	}
	return []byte{byte(p)}, nil
}

func (p *Priority) UnmarshalText(text []byte) error {
	v, err := ParsePriority(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

func (e Entropy) MarshalText() ([]byte, error) {
	if e == 0 {
		return nil, nil
	}
	return []byte{byte(e)}, nil
}

func (e *Entropy) UnmarshalText(text []byte) error {
	v, err := ParseEntropy(string(text))
	if err != nil {
		return err
	}
	*e = v
	return nil
}

func (p Policy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Policy) UnmarshalText(text []byte) error {
	v, err := ParsePolicy(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}
