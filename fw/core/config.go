package core

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mctp-go/mctpd/std/log"
	"github.com/mctp-go/mctpd/std/mctp"
	"github.com/mctp-go/mctpd/std/mctp/stack"
)

// Global configuration of the daemon, set once at startup.
var C = DefaultConfig()

// Transport kinds accepted in PortConfig.Transport.
const (
	TransportNull      = "null"
	TransportUdp       = "udp"
	TransportWebSocket = "websocket"
	TransportStream    = "stream"
	TransportI2cDev    = "i2c-dev"
)

// Config represents the configuration of the daemon.
type Config struct {
	Core struct {
		// Logging level
		LogLevel string `json:"log_level"`
		// Output log to file
		LogFile string `json:"log_file"`
		// Log format, text or json
		LogFormat string `json:"log_format"`

		// Config file base dir
		BaseDir string `json:"-"`
		// Enable CPU profiling
		CpuProfile string `json:"-"`
		// Enable memory profiling
		MemProfile string `json:"-"`
		// Enable block profiling
		BlockProfile string `json:"-"`
	} `json:"core"`

	Endpoint struct {
		// Endpoint ID used at first start; 0 waits for assignment
		Eid uint8 `json:"eid"`
		// The configured EID is static and restored by a reset
		Static bool `json:"static"`
		// Report this endpoint as a bridge
		Bridge bool `json:"bridge"`
		// Directory of the persistent state store; empty keeps state in memory
		StateDir string `json:"state_dir"`
		// Message types served besides control
		MsgTypes []uint8 `json:"msg_types"`
		// Fixed endpoint UUID; empty generates one on first start
		Uuid string `json:"uuid"`
	} `json:"endpoint"`

	Stack struct {
		// Lifetime of a reassembly context (ms)
		ReassemblyTimeout uint64 `json:"reassembly_timeout"`
		// Lifetime of an outstanding request (ms)
		FlowTimeout uint64 `json:"flow_timeout"`
		// Idle time before a busy reassembly context may be evicted (ms)
		EvictGrace uint64 `json:"evict_grace"`
	} `json:"stack"`

	Router struct {
		// Default wait for an outbound slot when the caller sets no deadline (ms)
		QueueTimeout uint64 `json:"queue_timeout"`
		// Mailbox size of each listener
		ListenerQueue int `json:"listener_queue"`
		// Interval between timeout sweeps (ms)
		SweepInterval uint64 `json:"sweep_interval"`
	} `json:"router"`

	Ports  []PortConfig  `json:"ports"`
	Routes []RouteConfig `json:"routes"`

	Metrics struct {
		// Serve Prometheus metrics over HTTP
		Enabled bool `json:"enabled"`
		// Listen address of the metrics server
		Listen string `json:"listen"`
	} `json:"metrics"`
}

// PortConfig describes one transport binding.
type PortConfig struct {
	// Name used by routes and logs
	Name string `json:"name"`
	// One of null, udp, websocket, stream, i2c-dev
	Transport string `json:"transport"`
	// Own 7-bit bus address
	Address uint8 `json:"address"`
	// Maximum MCTP packet size; 0 for the binding maximum
	Mtu int `json:"mtu"`
	// Append PEC to outgoing frames and require it on incoming ones
	Pec bool `json:"pec"`
	// PEC is checked by the controller; accept frames without verifying it
	HwPec bool `json:"hw_pec"`

	// udp: local address; websocket: listen address
	Local string `json:"local"`
	// udp: peer addresses; stream: the one address to dial
	Remote []string `json:"remote"`
	// websocket: server to dial instead of listening
	Url string `json:"url"`
	// stream: unix or tcp
	Network string `json:"network"`
	// i2c-dev: controller device, e.g. /dev/i2c-1
	Device string `json:"device"`
	// i2c-dev: slave-mqueue file of the target backend
	Mqueue string `json:"mqueue"`

	// Statically known neighbors on this bus
	Neighbors []NeighborConfig `json:"neighbors"`
}

// NeighborConfig maps an EID to a bus address.
type NeighborConfig struct {
	Eid     uint8 `json:"eid"`
	Address uint8 `json:"address"`
}

// RouteConfig sends the EID range [First, Last] through a port.
type RouteConfig struct {
	First uint8  `json:"first"`
	Last  uint8  `json:"last"`
	Port  string `json:"port"`

	// EID of the bridge on that port; 0 when the range is attached directly
	Gateway uint8 `json:"gateway"`
}

// DefaultConfig returns the configuration used for unset keys.
func DefaultConfig() *Config {
	c := &Config{}
	c.Core.LogLevel = "INFO"
	c.Core.LogFile = ""
	c.Core.LogFormat = "text"

	c.Endpoint.Eid = 0
	c.Endpoint.StateDir = ""

	c.Stack.ReassemblyTimeout = uint64(mctp.ReassemblyTimeout / time.Millisecond)
	c.Stack.FlowTimeout = uint64(mctp.ReassemblyTimeout / time.Millisecond)
	c.Stack.EvictGrace = uint64(mctp.EvictGrace / time.Millisecond)

	c.Router.QueueTimeout = 1000
	c.Router.ListenerQueue = 4
	c.Router.SweepInterval = 500

	c.Ports = []PortConfig{}
	c.Routes = []RouteConfig{}

	c.Metrics.Enabled = false
	c.Metrics.Listen = "127.0.0.1:9464"

	return c
}

// ResolveRelPath resolves a possibly relative path based on config file path.
func (c *Config) ResolveRelPath(target string) string {
	if filepath.IsAbs(target) {
		return target
	}
	return filepath.Join(c.Core.BaseDir, target)
}

// StackOptions returns the stack timing from the configuration.
func (c *Config) StackOptions() stack.Options {
	return stack.Options{
		ReassemblyTimeout: time.Duration(c.Stack.ReassemblyTimeout) * time.Millisecond,
		FlowTimeout:       time.Duration(c.Stack.FlowTimeout) * time.Millisecond,
		EvictGrace:        time.Duration(c.Stack.EvictGrace) * time.Millisecond,
	}
}

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, v ...any) {
		errs = append(errs, fmt.Errorf(format, v...))
	}

	if _, err := log.ParseLevel(c.Core.LogLevel); err != nil {
		fail("core.log_level: %w", err)
	}
	if c.Core.LogFormat != "text" && c.Core.LogFormat != "json" {
		fail("core.log_format: must be text or json")
	}

	eid := mctp.Eid(c.Endpoint.Eid)
	if eid != mctp.EidNull && !eid.Valid() {
		fail("endpoint.eid: %d is reserved", eid)
	}
	if c.Endpoint.Static && eid == mctp.EidNull {
		fail("endpoint.static: requires an eid")
	}
	if c.Endpoint.Uuid != "" {
		if _, err := uuid.Parse(c.Endpoint.Uuid); err != nil {
			fail("endpoint.uuid: %w", err)
		}
	}
	for _, t := range c.Endpoint.MsgTypes {
		if t > 0x7F {
			fail("endpoint.msg_types: %#x is not a message type", t)
		}
	}

	if c.Stack.ReassemblyTimeout == 0 || c.Stack.FlowTimeout == 0 {
		fail("stack: timeouts must be positive")
	}
	if c.Router.QueueTimeout == 0 || c.Router.SweepInterval == 0 {
		fail("router: queue_timeout and sweep_interval must be positive")
	}
	if c.Router.ListenerQueue < 1 {
		fail("router.listener_queue: must be at least 1")
	}

	if len(c.Ports) == 0 || len(c.Ports) > mctp.MaxPorts {
		fail("ports: between 1 and %d ports are required", mctp.MaxPorts)
	}
	names := map[string]bool{}
	for i := range c.Ports {
		if err := c.Ports[i].validate(); err != nil {
			fail("ports[%d]: %w", i, err)
		}
		if names[c.Ports[i].Name] {
			fail("ports[%d]: duplicate name %q", i, c.Ports[i].Name)
		}
		names[c.Ports[i].Name] = true
	}

	for i, r := range c.Routes {
		if r.First > r.Last {
			fail("routes[%d]: first %d after last %d", i, r.First, r.Last)
		}
		if !names[r.Port] {
			fail("routes[%d]: unknown port %q", i, r.Port)
		}
		if gw := mctp.Eid(r.Gateway); gw != mctp.EidNull && !gw.Valid() {
			fail("routes[%d]: gateway %d is reserved", i, gw)
		}
	}

	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		fail("metrics.listen: required when metrics are enabled")
	}

	return errors.Join(errs...)
}

func (p *PortConfig) validate() error {
	if p.Name == "" {
		return errors.New("name is required")
	}
	if p.Address > 0x7F {
		return fmt.Errorf("address %#x is not a 7-bit address", p.Address)
	}
	if p.Mtu != 0 && (p.Mtu < mctp.MinMtu || p.Mtu > 254) {
		return fmt.Errorf("mtu %d out of range", p.Mtu)
	}
	for _, n := range p.Neighbors {
		if n.Address > 0x7F || !mctp.Eid(n.Eid).Valid() {
			return fmt.Errorf("invalid neighbor %d at %#x", n.Eid, n.Address)
		}
	}

	switch p.Transport {
	case TransportNull:
	case TransportUdp:
		if p.Local == "" || len(p.Remote) == 0 {
			return errors.New("udp needs local and remote")
		}
	case TransportWebSocket:
		if (p.Local == "") == (p.Url == "") {
			return errors.New("websocket needs exactly one of local and url")
		}
	case TransportStream:
		if len(p.Remote) != 1 || (p.Network != "unix" && p.Network != "tcp") {
			return errors.New("stream needs network unix or tcp and one remote")
		}
	case TransportI2cDev:
		if p.Device == "" || p.Mqueue == "" {
			return errors.New("i2c-dev needs device and mqueue")
		}
	default:
		return fmt.Errorf("unknown transport %q", p.Transport)
	}
	return nil
}
