//go:build !unix

package port

import "syscall"

func SyscallReuseAddr(network string, address string, c syscall.RawConn) error {
	return nil
}
