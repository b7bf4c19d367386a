//go:build !unix

package capture

import "syscall"

func reuseAddrControl(network, address string, c syscall.RawConn) error {
	return nil
}
