package log

import (
	"io"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileAppenderOpt configures the rotated log file (log.file.*).
type FileAppenderOpt struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	Filename   string `mapstructure:"filename" yaml:"filename"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"` // megabytes
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"` // days
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// Tee copies every log line to all of its writers. A failing writer does not
// stop the others; the last error is returned with the full length so
// logrus never sees a short write.
type Tee []io.Writer

func (t Tee) Write(p []byte) (int, error) {
	var last error
	for _, w := range t {
		if _, err := w.Write(p); err != nil {
			last = err
		}
	}
	return len(p), last
}

// outputs returns stderr plus the rotated file when enabled.
func outputs(file FileAppenderOpt) Tee {
	tee := Tee{os.Stderr}
	if file.Enabled {
		tee = append(tee, &lumberjack.Logger{
			Filename:   file.Filename,
			MaxSize:    file.MaxSize,
			MaxBackups: file.MaxBackups,
			MaxAge:     file.MaxAge,
			Compress:   file.Compress,
		})
	}
	return tee
}
