package capture

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"firestige.xyz/udptrain/internal/core"
)

// NameOptions controls capture file naming.
type NameOptions struct {
	// Placeholder stands in for the source address when none was learned.
	Placeholder string
	// Layout is the time.Format layout of the local timestamp.
	Layout    string
	Extension string
}

// DefaultNameOptions mirrors "<ip>_%Y-%m-%d_%H:%M:%S.raw".
var DefaultNameOptions = NameOptions{
	Placeholder: "0.0.0.0",
	Layout:      "2006-01-02_15:04:05",
	Extension:   ".raw",
}

// FileName builds "<sourceIP>_<local timestamp><extension>".
func FileName(source net.Addr, wall time.Time, opts NameOptions) string {
	return hostOf(source, opts.Placeholder) + "_" + wall.Local().Format(opts.Layout) + opts.Extension
}

func hostOf(addr net.Addr, placeholder string) string {
	switch a := addr.(type) {
	case nil:
		return placeholder
	case *net.UDPAddr:
		if a == nil || a.IP == nil {
			return placeholder
		}
		return a.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil || host == "" {
		return placeholder
	}
	return host
}

// Sink persists a flushed capture buffer under a file name.
type Sink interface {
	Write(name string, data []byte) error
}

// FileSink appends capture buffers to files under dir.
type FileSink struct {
	fs  afero.Fs
	dir string
}

// NewFileSink creates a sink writing into dir on fs.
func NewFileSink(fs afero.Fs, dir string) *FileSink {
	return &FileSink{fs: fs, dir: dir}
}

// Path returns the full path a name is written to.
func (s *FileSink) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// Write opens the file in append mode and writes data in one call. Any
// failure is final: the data is neither retried nor salvaged.
func (s *FileSink) Write(name string, data []byte) error {
	if s.dir != "" {
		if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
			return fmt.Errorf("%w: create %s: %v", core.ErrFileOpen, s.dir, err)
		}
	}
	path := s.Path(name)
	f, err := s.fs.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", core.ErrFileOpen, path, err)
	}
	n, err := f.Write(data)
	if err == nil && n != len(data) {
		err = fmt.Errorf("short write %d of %d bytes", n, len(data))
	}
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("%w: %s: %v", core.ErrFileWrite, path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: %s: %v", core.ErrFileWrite, path, err)
	}
	return nil
}
