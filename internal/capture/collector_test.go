package capture

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/udptrain/internal/core"
)

func tagged(run, idle time.Duration) SessionConfig {
	return SessionConfig{RunTime: run, IdleThreshold: idle, Tagged: true}
}

func TestCollectorFlushesAtDeadline(t *testing.T) {
	clock := newFakeClock()
	src := &scriptSource{clock: clock, tick: 10 * time.Millisecond, steps: []step{
		{advance: 100 * time.Millisecond, data: packet(0, core.PriorityHigh), from: udpAddr("10.0.0.1", 5000)},
		{advance: 100 * time.Millisecond, data: packet(0, core.PriorityLow), from: udpAddr("10.0.0.1", 5000)},
	}}
	fs := afero.NewMemMapFs()
	c := NewCollector(src, NewFileSink(fs, "temp"), clock, Options{Session: tagged(time.Second, 10*time.Second), PacketLength: 64})

	require.NoError(t, c.Run(context.Background()))

	data, err := afero.ReadFile(fs, "temp/10.0.0.1_2024-03-09_14:05:07.raw")
	require.NoError(t, err)
	assert.Equal(t, "0\tH\t0.100000000\n0\tL\t0.200000000\n", string(data))
	assert.Equal(t, StateTerminated, c.Session().State())
	assert.Equal(t, 1, src.closed)
	assert.Equal(t, time.Second, clock.now.Duration())
}

func TestCollectorIdleDelimiter(t *testing.T) {
	clock := newFakeClock()
	src := &scriptSource{clock: clock, tick: 10 * time.Millisecond, steps: []step{
		{advance: 100 * time.Millisecond, data: packet(0, core.PriorityHigh), from: udpAddr("10.0.0.1", 1)},
	}}
	sink := &recordingSink{clock: clock}
	c := NewCollector(src, sink, clock, Options{Session: tagged(time.Second, 300*time.Millisecond)})

	require.NoError(t, c.Run(context.Background()))

	require.Len(t, sink.calls, 1)
	assert.Equal(t, "0\tH\t0.100000000\n*\n", sink.calls[0].data)
}

func TestCollectorRoundsUseHalvedDeadline(t *testing.T) {
	clock := newFakeClock()
	src := &scriptSource{clock: clock, tick: 10 * time.Millisecond, steps: []step{
		{advance: 1200 * time.Millisecond, data: packet(3, core.PriorityLow), from: udpAddr("10.0.0.1", 1)},
	}}
	sink := &recordingSink{clock: clock}
	c := NewCollector(src, sink, clock, Options{Session: tagged(time.Second, time.Hour), Rounds: 3})

	require.NoError(t, c.Run(context.Background()))

	require.Len(t, sink.calls, 3)
	assert.Equal(t, 1200*time.Millisecond, sink.calls[0].at)
	assert.Equal(t, "3\tL\t1.200000000\n", sink.calls[0].data)
	assert.Equal(t, 1700*time.Millisecond, sink.calls[1].at)
	assert.Equal(t, 2200*time.Millisecond, sink.calls[2].at)
	assert.Empty(t, sink.calls[1].data)
	assert.Equal(t, "10.0.0.1_2024-03-09_14:05:07.raw", sink.calls[2].name)
}

func TestCollectorDiscardsMalformed(t *testing.T) {
	clock := newFakeClock()
	src := &scriptSource{clock: clock, tick: 10 * time.Millisecond, steps: []step{
		{advance: time.Millisecond, data: []byte{1, 2, 3}, from: udpAddr("10.0.0.7", 1)},
		{advance: time.Millisecond, data: packet(9, core.PriorityHigh), from: udpAddr("10.0.0.1", 1)},
	}}
	sink := &recordingSink{clock: clock}
	c := NewCollector(src, sink, clock, Options{Session: tagged(100*time.Millisecond, time.Hour)})

	require.NoError(t, c.Run(context.Background()))

	require.Len(t, sink.calls, 1)
	assert.Equal(t, "9\tH\t0.002000000\n", sink.calls[0].data)
	assert.Equal(t, "10.0.0.1_2024-03-09_14:05:07.raw", sink.calls[0].name)
}

func TestCollectorNamesFileAfterFirstSender(t *testing.T) {
	clock := newFakeClock()
	src := &scriptSource{clock: clock, tick: 10 * time.Millisecond, steps: []step{
		{advance: time.Millisecond, data: packet(0, core.PriorityHigh), from: udpAddr("10.0.0.5", 4000)},
		{advance: time.Millisecond, data: packet(0, core.PriorityLow), from: udpAddr("10.0.0.9", 4000)},
		{advance: time.Millisecond, data: packet(1, core.PriorityHigh), from: udpAddr("10.0.0.9", 4001)},
	}}
	sink := &recordingSink{clock: clock}
	c := NewCollector(src, sink, clock, Options{Session: tagged(100*time.Millisecond, time.Hour)})

	require.NoError(t, c.Run(context.Background()))

	require.Len(t, sink.calls, 1)
	assert.Equal(t, "10.0.0.5_2024-03-09_14:05:07.raw", sink.calls[0].name)
	assert.Equal(t, "0\tH\t0.001000000\n0\tL\t0.002000000\n1\tH\t0.003000000\n", sink.calls[0].data)
}

func TestCollectorCaptureParsesBackWithForeignTagBytes(t *testing.T) {
	clock := newFakeClock()
	src := &scriptSource{clock: clock, tick: 10 * time.Millisecond, steps: []step{
		{advance: time.Millisecond, data: withTagByte(packet(7, core.PriorityHigh), '\n'), from: udpAddr("10.0.0.1", 1)},
		{advance: time.Millisecond, data: withTagByte(packet(8, core.PriorityHigh), '\t'), from: udpAddr("10.0.0.1", 1)},
		{advance: time.Millisecond, data: packet(9, core.PriorityLow), from: udpAddr("10.0.0.1", 1)},
	}}
	fs := afero.NewMemMapFs()
	c := NewCollector(src, NewFileSink(fs, "out"), clock, Options{Session: tagged(100*time.Millisecond, time.Hour)})

	require.NoError(t, c.Run(context.Background()))

	data, err := afero.ReadFile(fs, "out/10.0.0.1_2024-03-09_14:05:07.raw")
	require.NoError(t, err)
	entries, err := ReadRecords(bytes.NewReader(data), DefaultDelimiter)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, Record{Sequence: 7, Offset: at(time.Millisecond)}, entries[0].Record)
	assert.Equal(t, Record{Sequence: 8, Offset: at(2 * time.Millisecond)}, entries[1].Record)
	assert.Equal(t, Record{Sequence: 9, Tag: core.PriorityLow, Offset: at(3 * time.Millisecond)}, entries[2].Record)
}

func TestCollectorNoTrafficUsesPlaceholder(t *testing.T) {
	clock := newFakeClock()
	src := &scriptSource{clock: clock, tick: 50 * time.Millisecond}
	sink := &recordingSink{clock: clock}
	c := NewCollector(src, sink, clock, Options{Session: tagged(time.Second, time.Hour)})

	require.NoError(t, c.Run(context.Background()))

	require.Len(t, sink.calls, 1)
	assert.Equal(t, "0.0.0.0_2024-03-09_14:05:07.raw", sink.calls[0].name)
	assert.Empty(t, sink.calls[0].data)
}

func TestCollectorReceiveError(t *testing.T) {
	clock := newFakeClock()
	src := &scriptSource{clock: clock, steps: []step{{err: errBoom}}}
	c := NewCollector(src, &recordingSink{clock: clock}, clock, Options{Session: tagged(time.Second, time.Hour)})

	err := c.Run(context.Background())
	assert.ErrorIs(t, err, core.ErrReceive)
	assert.Equal(t, core.ExitReceive, core.ExitCode(err))
	assert.Equal(t, 1, src.closed)
}

func TestCollectorSinkError(t *testing.T) {
	clock := newFakeClock()
	src := &scriptSource{clock: clock, tick: 100 * time.Millisecond}
	sink := &recordingSink{clock: clock, err: core.ErrFileWrite}
	c := NewCollector(src, sink, clock, Options{Session: tagged(time.Second, time.Hour)})

	err := c.Run(context.Background())
	assert.ErrorIs(t, err, core.ErrFileWrite)
}

func TestCollectorBufferCapacity(t *testing.T) {
	clock := newFakeClock()
	src := &scriptSource{clock: clock, tick: 10 * time.Millisecond, steps: []step{
		{advance: time.Millisecond, data: packet(0, core.PriorityHigh), from: udpAddr("10.0.0.1", 1)},
		{advance: time.Millisecond, data: packet(1, core.PriorityHigh), from: udpAddr("10.0.0.1", 1)},
	}}
	cfg := tagged(time.Second, time.Hour)
	cfg.BufferCapacity = 20
	c := NewCollector(src, &recordingSink{clock: clock}, clock, Options{Session: cfg})

	err := c.Run(context.Background())
	assert.ErrorIs(t, err, core.ErrBufferCapacityExceeded)
}

func TestCollectorInterrupt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clock := newFakeClock()
	src := &scriptSource{clock: clock, tick: time.Millisecond, steps: []step{
		{advance: time.Millisecond, data: packet(0, core.PriorityHigh), from: udpAddr("10.0.0.1", 1), hook: cancel},
	}}
	sink := &recordingSink{clock: clock}
	c := NewCollector(src, sink, clock, Options{Session: tagged(time.Second, time.Hour)})

	err := c.Run(ctx)
	assert.ErrorIs(t, err, core.ErrInterrupted)
	assert.Equal(t, core.ExitInterrupted, core.ExitCode(err))
	assert.Equal(t, StateInterrupted, c.Session().State())
	assert.Empty(t, sink.calls)
	assert.Equal(t, 1, src.closed)
}

func TestCollectorFlushOnInterrupt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clock := newFakeClock()
	src := &scriptSource{clock: clock, tick: time.Millisecond, steps: []step{
		{advance: time.Millisecond, data: packet(0, core.PriorityHigh), from: udpAddr("10.0.0.1", 1), hook: cancel},
	}}
	sink := &recordingSink{clock: clock}
	c := NewCollector(src, sink, clock, Options{Session: tagged(time.Second, time.Hour), FlushOnInterrupt: true})

	err := c.Run(ctx)
	assert.ErrorIs(t, err, core.ErrInterrupted)
	require.Len(t, sink.calls, 1)
	assert.Equal(t, "0\tH\t0.001000000\n", sink.calls[0].data)
}
