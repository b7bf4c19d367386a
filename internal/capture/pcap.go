package capture

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/udptrain/internal/core"
	"firestige.xyz/udptrain/internal/probe"
	"firestige.xyz/udptrain/internal/timing"
)

// PcapOptions selects probe traffic inside a packet capture.
type PcapOptions struct {
	// Ports filters on UDP destination port; empty accepts every port.
	Ports  []int
	Tagged bool
}

// PcapCapture is a packet capture converted into capture records. Offsets
// are relative to the first matching probe.
type PcapCapture struct {
	Source    net.IP
	Start     time.Time
	Entries   []Entry
	Malformed int
	Skipped   int
}

// Addr returns Source as a net.Addr for file naming.
func (p *PcapCapture) Addr() net.Addr {
	if p.Source == nil {
		return nil
	}
	return &net.UDPAddr{IP: p.Source}
}

// Bytes renders the records in capture file format.
func (p *PcapCapture) Bytes() []byte {
	b := NewLogBuffer(0)
	for _, e := range p.Entries {
		_ = b.AppendRecord(e.Record)
	}
	return b.Bytes()
}

// pcapDecoder pre-allocates the layers of an Ethernet, Linux cooked or raw
// IPv4 frame carrying UDP.
type pcapDecoder struct {
	parser  *gopacket.DecodingLayerParser
	eth     layers.Ethernet
	sll     layers.LinuxSLL
	ipv4    layers.IPv4
	udp     layers.UDP
	decoded []gopacket.LayerType
}

func newPcapDecoder(link layers.LinkType) (*pcapDecoder, error) {
	var first gopacket.LayerType
	switch link {
	case layers.LinkTypeEthernet:
		first = layers.LayerTypeEthernet
	case layers.LinkTypeLinuxSLL:
		first = layers.LayerTypeLinuxSLL
	case layers.LinkTypeRaw, layers.LinkTypeIPv4:
		first = layers.LayerTypeIPv4
	default:
		return nil, fmt.Errorf("%w: unsupported pcap link type %s", core.ErrConfigInvalid, link)
	}
	d := &pcapDecoder{decoded: make([]gopacket.LayerType, 0, 4)}
	d.parser = gopacket.NewDecodingLayerParser(first, &d.eth, &d.sll, &d.ipv4, &d.udp)
	d.parser.IgnoreUnsupported = true
	return d, nil
}

// decode returns the UDP layer of data, or false when the frame is not
// IPv4/UDP.
func (d *pcapDecoder) decode(data []byte) (*layers.UDP, bool) {
	if err := d.parser.DecodeLayers(data, &d.decoded); err != nil {
		return nil, false
	}
	for _, lt := range d.decoded {
		if lt == layers.LayerTypeUDP {
			return &d.udp, true
		}
	}
	return nil, false
}

// ReadPcap converts the probes found in a pcap stream into records. Frames
// that are not IPv4/UDP to a selected port are skipped; UDP payloads too
// short for a probe header are counted as malformed.
func ReadPcap(r io.Reader, opts PcapOptions) (*PcapCapture, error) {
	reader, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrConfigInvalid, err)
	}
	dec, err := newPcapDecoder(reader.LinkType())
	if err != nil {
		return nil, err
	}
	ports := make(map[layers.UDPPort]struct{}, len(opts.Ports))
	for _, p := range opts.Ports {
		ports[layers.UDPPort(p)] = struct{}{}
	}

	out := &PcapCapture{}
	for {
		data, ci, err := reader.ReadPacketData()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, fmt.Errorf("%w: %v", core.ErrConfigInvalid, err)
		}

		udp, ok := dec.decode(data)
		if !ok {
			out.Skipped++
			continue
		}
		if _, want := ports[udp.DstPort]; len(ports) > 0 && !want {
			out.Skipped++
			continue
		}
		p, err := probe.Decode(udp.Payload, opts.Tagged)
		if err != nil {
			out.Malformed++
			continue
		}
		if out.Source == nil {
			out.Source = append(net.IP(nil), dec.ipv4.SrcIP...)
			out.Start = ci.Timestamp
		}
		out.Entries = append(out.Entries, Entry{Record: Record{
			Sequence: p.Sequence,
			Tag:      p.Tag,
			Offset:   timing.FromDuration(ci.Timestamp.Sub(out.Start)),
		}})
	}
}
