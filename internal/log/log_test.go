package log

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/udptrain/internal/core"
)

func TestFormatterPattern(t *testing.T) {
	f := &formatter{pattern: "%time [%level] %field %msg%n", time: "15:04:05"}
	entry := &logrus.Entry{
		Time:    time.Date(2024, 3, 25, 17, 53, 47, 0, time.UTC),
		Level:   logrus.WarnLevel,
		Message: "idle gap",
		Data:    logrus.Fields{"port": 9876, "addr": "10.0.0.1"},
	}

	out, err := f.Format(entry)
	require.NoError(t, err)
	assert.Equal(t, "17:53:47 [WARNING] {addr=10.0.0.1,port=9876} idle gap\n", string(out))
}

func TestFormatterNoFields(t *testing.T) {
	f := &formatter{pattern: "[%level]%field %msg", time: DefaultTime}
	out, err := f.Format(&logrus.Entry{Level: logrus.InfoLevel, Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "[INFO] hi", string(out))
}

func TestInitInvalidLevel(t *testing.T) {
	err := Init(Config{Level: "loud"})
	assert.ErrorIs(t, err, core.ErrConfigInvalid)
}

func TestInitFileAppenderRequiresName(t *testing.T) {
	err := Init(Config{Level: "info", File: FileAppenderOpt{Enabled: true}})
	assert.ErrorIs(t, err, core.ErrConfigInvalid)
}

func TestInitWithFileOutput(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "udptrain.log")

	require.NoError(t, Init(Config{
		Level: "debug",
		File:  FileAppenderOpt{Enabled: true, Filename: logPath, MaxSize: 1},
	}))
	t.Cleanup(func() { _ = Init(Config{}) })

	l := GetLogger()
	assert.True(t, l.IsDebugEnabled())
	assert.False(t, l.IsTraceEnabled())
	l.WithField("round", 1).WithError(errors.New("disk full")).Error("flush failed")

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "flush failed")
	assert.Contains(t, string(data), "round=1")
	assert.Contains(t, string(data), "error=disk full")
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("closed") }

func TestTee(t *testing.T) {
	var a, b bytes.Buffer
	n, err := Tee{&a, failingWriter{}, &b}.Write([]byte("line\n"))
	assert.EqualError(t, err, "closed")
	assert.Equal(t, 5, n)
	assert.Equal(t, "line\n", a.String())
	assert.Equal(t, "line\n", b.String())
}
