//go:build linux

package port

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/mctp-go/mctpd/fw/core"
	"golang.org/x/sys/unix"
)

// pollInterval bounds how long TargetReceive waits before rechecking Close.
const pollInterval = 100 // ms

// i2cSlave is the I2C_SLAVE ioctl of linux/i2c-dev.h, selecting the target
// address of following writes.
const i2cSlave = 0x0703

// I2cDevTransport drives a real bus through Linux i2c-dev for controller
// writes and the slave-mqueue backend for target receives.
//
// The controller emits the destination address itself, so the first frame
// byte is dropped on send and restored on receive.
type I2cDevTransport struct {
	transportBase
	own    uint8
	device string
	mqueue string

	mu  sync.Mutex
	dev *os.File
	mq  *os.File
}

// MakeI2cDevTransport opens the controller device and the mqueue file of
// the target backend registered at address own.
func MakeI2cDevTransport(device, mqueue string, own uint8) (*I2cDevTransport, error) {
	dev, err := os.OpenFile(device, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("unable to open %s: %w", device, err)
	}
	mq, err := os.Open(mqueue)
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("unable to open %s: %w", mqueue, err)
	}

	t := &I2cDevTransport{own: own, device: device, mqueue: mqueue, dev: dev, mq: mq}
	t.running.Store(true)
	return t, nil
}

func (t *I2cDevTransport) String() string {
	return fmt.Sprintf("i2c-dev-transport (dev=%s addr=%#02x)", t.device, t.own)
}

func (t *I2cDevTransport) TargetReceive(buf []byte) (int, error) {
	if len(buf) < 2 {
		return 0, ErrFrameTooLarge
	}
	fd := int(t.mq.Fd())

	for t.running.Load() {
		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLPRI}}
		n, err := unix.Poll(fds, pollInterval)
		if errors.Is(err, unix.EINTR) || n == 0 {
			continue
		}
		if err != nil {
			return 0, err
		}

		// Each read at offset 0 pops one message; 0 bytes means empty
		n, err = unix.Pread(fd, buf[1:], 0)
		if err != nil {
			if !t.running.Load() {
				break
			}
			return 0, err
		}
		if n == 0 {
			continue
		}
		buf[0] = t.own << 1
		t.countIn(n + 1)
		return n + 1, nil
	}
	return 0, ErrClosed
}

func (t *I2cDevTransport) ControllerSend(addr uint8, frame []byte) error {
	if !t.running.Load() {
		return ErrClosed
	}
	if len(frame) < 2 {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := unix.IoctlSetInt(int(t.dev.Fd()), i2cSlave, int(addr)); err != nil {
		core.Log.Warn(t, "Unable to select target", "addr", addr, "err", err)
		return err
	}
	if _, err := t.dev.Write(frame[1:]); err != nil {
		return err
	}
	t.countOut(len(frame))
	return nil
}

func (t *I2cDevTransport) Close() error {
	if t.running.Swap(false) {
		t.mu.Lock()
		defer t.mu.Unlock()
		return errors.Join(t.dev.Close(), t.mq.Close())
	}
	return nil
}
