// Package probe implements the probe packet wire format.
//
//	 0                   1                   2
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 . . . n-1
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	| seq id  |T|              padding                |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//
// The sequence id is a signed 32-bit integer in host byte order. T is the
// optional priority tag ('H' or 'L'). Sequence ids above 2^31-1 are not
// representable; senders refuse runs that would need them.
package probe

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/udptrain/internal/core"
)

const (
	// SequenceLen is the size of the sequence id field.
	SequenceLen = 4
	// TagOffset is the offset of the priority tag byte.
	TagOffset = 4
	// MaxPayloadLen is the largest UDP payload over IPv4.
	MaxPayloadLen = 65507
	// MaxSequence is the largest representable sequence id.
	MaxSequence = math.MaxInt32
)

// ByteOrder is the byte order of the sequence id field.
var ByteOrder = binary.NativeEndian

// LayerTypeProbe is registered in the local-use range of gopacket layer numbers.
var LayerTypeProbe = gopacket.RegisterLayerType(1987, gopacket.LayerTypeMetadata{
	Name:    "Probe",
	Decoder: gopacket.DecodeFunc(decodeProbe),
})

// HeaderLen returns the header size for tagged or untagged packets.
func HeaderLen(tagged bool) int {
	if tagged {
		return SequenceLen + 1
	}
	return SequenceLen
}

// Probe is the header of a probe packet. Set Tagged before calling
// DecodeFromBytes; it decides whether byte 4 is read as the tag. A tag byte
// other than 'H' or 'L' decodes as untagged (Tag 0).
type Probe struct {
	layers.BaseLayer

	Sequence int32
	Tag      core.Priority
	Tagged   bool
}

func (p *Probe) LayerType() gopacket.LayerType { return LayerTypeProbe }

func (p *Probe) CanDecode() gopacket.LayerClass { return LayerTypeProbe }

func (p *Probe) NextLayerType() gopacket.LayerType { return gopacket.LayerTypePayload }

// Payload returns the padding after the header.
func (p *Probe) Payload() []byte { return p.BaseLayer.Payload }

// DecodeFromBytes reads the header from data without copying it.
func (p *Probe) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	hdr := HeaderLen(p.Tagged)
	if len(data) < hdr {
		if df != nil {
			df.SetTruncated()
		}
		return fmt.Errorf("%w: %d bytes, header needs %d", core.ErrPacketTooShort, len(data), hdr)
	}
	p.Sequence = int32(ByteOrder.Uint32(data[:SequenceLen]))
	p.Tag = 0
	if p.Tagged {
		if tag := core.Priority(data[TagOffset]); tag.Valid() {
			p.Tag = tag
		}
	}
	p.BaseLayer = layers.BaseLayer{Contents: data[:hdr], Payload: data[hdr:]}
	return nil
}

// SerializeTo prepends the header to b.
func (p *Probe) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	bytes, err := b.PrependBytes(HeaderLen(p.Tagged))
	if err != nil {
		return err
	}
	ByteOrder.PutUint32(bytes, uint32(p.Sequence))
	if p.Tagged {
		bytes[TagOffset] = byte(p.Tag)
	}
	return nil
}

// decodeProbe treats byte 4 as a tag only when it holds a known class.
func decodeProbe(data []byte, pb gopacket.PacketBuilder) error {
	p := &Probe{}
	if len(data) > TagOffset && core.Priority(data[TagOffset]).Valid() {
		p.Tagged = true
	}
	if err := p.DecodeFromBytes(data, pb); err != nil {
		return err
	}
	pb.AddLayer(p)
	pb.SetApplicationLayer(p)
	return nil
}

// Decode parses the header of a received datagram.
func Decode(data []byte, tagged bool) (Probe, error) {
	p := Probe{Tagged: tagged}
	err := p.DecodeFromBytes(data, gopacket.NilDecodeFeedback)
	return p, err
}
