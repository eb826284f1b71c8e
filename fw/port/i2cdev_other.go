//go:build !linux

package port

import "github.com/mctp-go/mctpd/std/mctp"

// I2cDevTransport is only available on Linux.
type I2cDevTransport struct {
	NullTransport
}

func MakeI2cDevTransport(device, mqueue string, own uint8) (*I2cDevTransport, error) {
	return nil, mctp.ErrUnsupported
}
