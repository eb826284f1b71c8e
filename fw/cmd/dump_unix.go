//go:build unix

package cmd

import (
	"os"
	"os/signal"
	"syscall"
)

// notifyDump delivers SIGUSR1, which requests a goroutine dump.
func notifyDump(c chan<- os.Signal) {
	signal.Notify(c, syscall.SIGUSR1)
}
