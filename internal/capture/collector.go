package capture

import (
	"context"
	"errors"
	"fmt"
	"net"

	"firestige.xyz/udptrain/internal/core"
	"firestige.xyz/udptrain/internal/log"
	"firestige.xyz/udptrain/internal/metrics"
	"firestige.xyz/udptrain/internal/probe"
	"firestige.xyz/udptrain/internal/timing"
)

// Options configures a Collector.
type Options struct {
	Session SessionConfig
	// PacketLength sizes the receive buffer; longer datagrams are truncated.
	PacketLength int
	// Rounds is the number of flushes before the collector exits. Values
	// below one mean a single flush.
	Rounds int
	// FlushOnInterrupt writes the pending buffer when cancelled.
	FlushOnInterrupt bool
	Naming           NameOptions
}

// Collector runs the receive loop: poll a datagram, timestamp it, then let
// the session decide whether to write a delimiter or flush.
type Collector struct {
	source PacketSource
	sink   Sink
	clock  timing.Clock
	opts   Options

	session *Session
	closed  bool
}

// NewCollector wires a source, sink and clock together.
func NewCollector(source PacketSource, sink Sink, clock timing.Clock, opts Options) *Collector {
	if opts.Rounds < 1 {
		opts.Rounds = 1
	}
	if opts.Naming == (NameOptions{}) {
		opts.Naming = DefaultNameOptions
	}
	if hdr := probe.HeaderLen(opts.Session.Tagged); opts.PacketLength < hdr {
		opts.PacketLength = probe.MaxPayloadLen
	}
	return &Collector{source: source, sink: sink, clock: clock, opts: opts}
}

// Session exposes the running session. It is nil before Run.
func (c *Collector) Session() *Session { return c.session }

// Run captures until the final flush, a fatal error or ctx cancellation.
// The source is closed on every exit path. Cancellation returns an error
// wrapping core.ErrInterrupted.
func (c *Collector) Run(ctx context.Context) error {
	defer c.closeSource()

	logger := log.GetLogger()
	c.session = NewSession(c.opts.Session, c.clock.Now())
	buf := make([]byte, c.opts.PacketLength)
	logger.WithFields(map[string]interface{}{
		"run":    c.opts.Session.RunTime,
		"idle":   c.opts.Session.IdleThreshold,
		"rounds": c.opts.Rounds,
	}).Info("collector started")

	for {
		select {
		case <-ctx.Done():
			return c.interrupt()
		default:
		}

		n, from, err := c.source.Receive(buf)
		now := c.clock.Now()
		switch {
		case err == nil:
			if err := c.record(now, buf[:n], from); err != nil {
				return err
			}
		case errors.Is(err, ErrWouldBlock):
		default:
			return fmt.Errorf("%w: %v", core.ErrReceive, err)
		}

		ev, err := c.session.Tick(now)
		if err != nil {
			return err
		}
		switch ev {
		case EventDelimiter:
			metrics.ReceiverDelimitersTotal.Inc()
			metrics.ReceiverBufferBytes.Set(float64(len(c.session.Buffered())))
			logger.Debugf("idle threshold reached after %v, delimiter written", c.opts.Session.IdleThreshold)
		case EventFlushDue:
			final := c.session.Flushes()+1 >= c.opts.Rounds
			if err := c.flush(); err != nil {
				return err
			}
			c.session.CompleteFlush(now, final)
			metrics.ReceiverBufferBytes.Set(0)
			if final {
				logger.Info("collector finished")
				return nil
			}
			logger.Infof("round %d complete, next deadline %v", c.session.Flushes(), c.session.Deadline())
		}
	}
}

func (c *Collector) record(now timing.Timespec, data []byte, from net.Addr) error {
	first := c.session.State() == StateAwaitingFirstPacket
	rec, err := c.session.Record(now, data, from)
	if err != nil {
		if errors.Is(err, core.ErrPacketTooShort) {
			metrics.ReceiverMalformedTotal.Inc()
			log.GetLogger().WithError(err).Debug("discarding malformed datagram")
			return nil
		}
		return err
	}
	if first && c.session.Source() != nil {
		log.GetLogger().WithField("source", c.session.Source().String()).Info("first probe received")
	}
	metrics.ReceiverPacketsTotal.WithLabelValues(tagLabel(rec.Tag)).Inc()
	metrics.ReceiverBufferBytes.Set(float64(len(c.session.Buffered())))
	return nil
}

func (c *Collector) flush() error {
	data := c.session.Buffered()
	name := FileName(c.session.Source(), c.clock.Wall(), c.opts.Naming)
	if err := c.sink.Write(name, data); err != nil {
		metrics.ReceiverFlushesTotal.WithLabelValues(metrics.FlushFailed).Inc()
		return err
	}
	metrics.ReceiverFlushesTotal.WithLabelValues(metrics.FlushOK).Inc()
	metrics.ReceiverFlushedBytesTotal.Add(float64(len(data)))
	log.GetLogger().WithFields(map[string]interface{}{
		"file":  name,
		"bytes": len(data),
	}).Info("capture flushed")
	return nil
}

func (c *Collector) interrupt() error {
	c.session.Interrupt()
	c.closeSource()
	log.GetLogger().Warn("collector interrupted")
	if c.opts.FlushOnInterrupt && len(c.session.Buffered()) > 0 {
		if err := c.flush(); err != nil {
			return errors.Join(core.ErrInterrupted, err)
		}
	}
	return core.ErrInterrupted
}

func (c *Collector) closeSource() {
	if c.closed {
		return
	}
	c.closed = true
	if err := c.source.Close(); err != nil {
		log.GetLogger().WithError(err).Warn("closing packet source")
	}
}

func tagLabel(tag core.Priority) string {
	if tag == 0 {
		return string(UntaggedMark)
	}
	return string(rune(tag))
}
