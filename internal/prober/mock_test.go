package prober

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"firestige.xyz/udptrain/internal/core"
)

type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) Send(class core.Priority, payload []byte) error {
	args := m.Called(class, payload)
	return args.Error(0)
}

func (m *MockTransport) Close() error {
	return m.Called().Error(0)
}

func TestRunPairOpensAndClosesEachRun(t *testing.T) {
	var mocks []*MockTransport
	open := func(cfg Config) (Transport, error) {
		m := new(MockTransport)
		m.On("Send", cfg.Priority, mock.Anything).Return(nil).Times(2)
		m.On("Close").Return(nil).Once()
		mocks = append(mocks, m)
		return m, nil
	}
	cfg := Config{Policy: core.PolicyVariablePayload, Priority: core.PriorityHigh, Entropy: core.EntropyLow, Count: 2, Length: 8, Extra: 2}

	stats, err := RunPair(context.Background(), cfg, 0, open)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	require.Len(t, mocks, 2)
	for _, m := range mocks {
		m.AssertExpectations(t)
	}
	assert.Equal(t, 2, stats[0].Sent[core.PriorityLow])
	assert.Equal(t, 2, stats[1].Sent[core.PriorityHigh])
}

func TestRunPairOpenFailure(t *testing.T) {
	open := func(cfg Config) (Transport, error) {
		return nil, core.ErrSocketCreation
	}
	cfg := Config{Policy: core.PolicyNone, Entropy: core.EntropyLow, Count: 1, Length: 8}

	_, err := RunPair(context.Background(), cfg, 0, open)
	assert.ErrorIs(t, err, core.ErrSocketCreation)
	assert.Equal(t, core.ExitSocketCreation, core.ExitCode(err))
}
