package port

import (
	"fmt"

	"github.com/mctp-go/mctpd/fw/core"
)

// MakeTransport creates the transport described by a port configuration.
func MakeTransport(cfg *core.PortConfig) (Transport, error) {
	switch cfg.Transport {
	case core.TransportNull:
		return MakeNullTransport(), nil
	case core.TransportUdp:
		return MakeUdpTransport(cfg.Local, cfg.Remote)
	case core.TransportWebSocket:
		if cfg.Url != "" {
			return DialWebSocket(cfg.Url)
		}
		return ListenWebSocket(cfg.Local)
	case core.TransportStream:
		if len(cfg.Remote) != 1 {
			return nil, fmt.Errorf("stream transport needs one remote, got %d", len(cfg.Remote))
		}
		return MakeStreamTransport(cfg.Network, cfg.Remote[0], cfg.Pec)
	case core.TransportI2cDev:
		return MakeI2cDevTransport(cfg.Device, cfg.Mqueue, cfg.Address)
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}
