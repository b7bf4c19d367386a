package probe

import (
	"fmt"
	"io"

	"github.com/google/gopacket"

	"firestige.xyz/udptrain/internal/core"
)

// ValidateLength checks that a payload of length bytes can carry the header.
func ValidateLength(length int, tagged bool) error {
	if hdr := HeaderLen(tagged); length < hdr {
		return fmt.Errorf("%w: payload length %d below header size %d", core.ErrConfigInvalid, length, hdr)
	}
	if length > MaxPayloadLen {
		return fmt.Errorf("%w: payload length %d above %d", core.ErrConfigInvalid, length, MaxPayloadLen)
	}
	return nil
}

// TemplateOptions describes the packet buffer a class sends repeatedly.
type TemplateOptions struct {
	Length  int
	Tagged  bool
	Tag     core.Priority
	Entropy core.Entropy
	// Random fills the padding in high-entropy mode.
	Random io.Reader
}

// NewTemplate builds a probe packet with sequence id 0. The padding is zero
// for low entropy and read once from opts.Random for high entropy.
func NewTemplate(opts TemplateOptions) ([]byte, error) {
	if err := ValidateLength(opts.Length, opts.Tagged); err != nil {
		return nil, err
	}
	padding := make([]byte, opts.Length-HeaderLen(opts.Tagged))
	if opts.Entropy == core.EntropyHigh {
		if opts.Random == nil {
			return nil, fmt.Errorf("%w: no random source configured", core.ErrRandomSource)
		}
		if _, err := io.ReadFull(opts.Random, padding); err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrRandomSource, err)
		}
	}

	buf := gopacket.NewSerializeBuffer()
	hdr := &Probe{Tagged: opts.Tagged, Tag: opts.Tag}
	if err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{}, hdr, gopacket.Payload(padding)); err != nil {
		return nil, fmt.Errorf("serialize probe template: %w", err)
	}
	out := make([]byte, len(buf.Bytes()))
	copy(out, buf.Bytes())
	return out, nil
}

// Stamp writes seq into the sequence field of pkt in place.
func Stamp(pkt []byte, seq int32) {
	ByteOrder.PutUint32(pkt[:SequenceLen], uint32(seq))
}
