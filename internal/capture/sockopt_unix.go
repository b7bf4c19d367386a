//go:build unix

package capture

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"

	"firestige.xyz/udptrain/internal/core"
)

func reuseAddrControl(network, address string, c syscall.RawConn) error {
	var serr error
	if err := c.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	}); err != nil {
		return fmt.Errorf("%w: %v", core.ErrSocketSetup, err)
	}
	if serr != nil {
		return fmt.Errorf("%w: SO_REUSEADDR: %v", core.ErrSocketSetup, serr)
	}
	return nil
}
