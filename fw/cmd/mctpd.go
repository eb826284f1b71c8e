package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mctp-go/mctpd/fw/core"
	"github.com/mctp-go/mctpd/fw/port"
	"github.com/mctp-go/mctpd/fw/router"
	"github.com/mctp-go/mctpd/fw/store"
	"github.com/mctp-go/mctpd/std/mctp"
	"github.com/mctp-go/mctpd/std/mctp/control"
	"github.com/mctp-go/mctpd/std/mctp/i2c"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Mctpd is the MCTP endpoint daemon.
// Note: only one instance should run in a process, since it owns core.C.
type Mctpd struct {
	config   *core.Config
	profiler *Profiler

	store    store.Store
	state    *store.EndpointState
	registry *prometheus.Registry
	router   *router.Router

	metricsLn  net.Listener
	metricsSrv *http.Server

	cancel context.CancelFunc
	served sync.WaitGroup
}

// NewMctpd creates the daemon and opens the logger.
func NewMctpd(config *core.Config) (*Mctpd, error) {
	core.C = config
	core.StartTimestamp = time.Now()
	if err := core.OpenLogger(config); err != nil {
		return nil, fmt.Errorf("unable to open logger: %w", err)
	}

	return &Mctpd{
		config:   config,
		profiler: NewProfiler(config),
	}, nil
}

func (m *Mctpd) String() string {
	return "mctpd"
}

// Router returns the running router, or nil before Start.
func (m *Mctpd) Router() *router.Router {
	return m.router
}

// MetricsAddr returns the address of the metrics server, if enabled.
func (m *Mctpd) MetricsAddr() string {
	if m.metricsLn == nil {
		return ""
	}
	return m.metricsLn.Addr().String()
}

// Start brings up the ports and serves control requests.
// This function is non-blocking.
func (m *Mctpd) Start() (err error) {
	core.Log.Info(m, "Starting MCTP endpoint daemon")

	if err = m.profiler.Start(); err != nil {
		return err
	}

	if dir := m.config.Endpoint.StateDir; dir != "" {
		m.store, err = store.NewBadgerStore(m.config.ResolveRelPath(dir))
		if err != nil {
			return fmt.Errorf("unable to open state store: %w", err)
		}
	} else {
		m.store = store.NewMemoryStore()
	}
	m.state = store.NewEndpointState(m.store)

	eid, err := m.initialEid()
	if err != nil {
		return err
	}
	if fixed := m.config.Endpoint.Uuid; fixed != "" {
		// Validate checked the format
		if err = m.state.SetUuid(uuid.MustParse(fixed)); err != nil {
			return err
		}
	}
	id, err := m.state.Uuid()
	if err != nil {
		return err
	}

	m.registry = prometheus.NewRegistry()
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := router.DefaultOptions()
	opts.Eid = eid
	opts.Stack = m.config.StackOptions()
	opts.QueueTimeout = time.Duration(m.config.Router.QueueTimeout) * time.Millisecond
	opts.ListenerQueue = m.config.Router.ListenerQueue
	opts.SweepInterval = time.Duration(m.config.Router.SweepInterval) * time.Millisecond
	opts.Registerer = m.registry
	m.router = router.New(opts)

	if err = m.addPorts(); err != nil {
		return err
	}
	if err = m.router.Start(); err != nil {
		return err
	}

	rcfg := control.ResponderConfig{
		Uuid:   [control.UuidLen]byte(id),
		Bridge: m.config.Endpoint.Bridge,
	}
	if m.config.Endpoint.Static {
		rcfg.StaticEid = mctp.Eid(m.config.Endpoint.Eid)
	}
	for _, t := range m.config.Endpoint.MsgTypes {
		rcfg.MsgTypes = append(rcfg.MsgTypes, mctp.MsgType(t))
	}
	responder := control.NewResponder(&persistentEndpoint{r: m.router, state: m.state}, rcfg)

	l, err := m.router.Listen(mctp.MsgTypeControl)
	if err != nil {
		return err
	}
	var ctx context.Context
	ctx, m.cancel = context.WithCancel(context.Background())
	m.served.Add(1)
	go func() {
		defer m.served.Done()
		err := m.router.ServeListener(ctx, l, func(req *router.Message, out []byte) []byte {
			return responder.Handle(req.Source, req.Body, out)
		})
		if err != nil {
			core.Log.Error(m, "Control responder stopped", "err", err)
		}
	}()

	if m.config.Metrics.Enabled {
		if err = m.startMetrics(); err != nil {
			return err
		}
	}

	core.Log.Info(m, "Endpoint ready", "eid", eid, "uuid", id, "ports", len(m.router.Ports()))
	return nil
}

// initialEid picks the EID to start with. A static EID always wins and
// is saved; otherwise the last assigned EID is restored.
func (m *Mctpd) initialEid() (mctp.Eid, error) {
	configured := mctp.Eid(m.config.Endpoint.Eid)
	if m.config.Endpoint.Static {
		return configured, m.state.SetEid(configured)
	}

	saved, ok, err := m.state.Eid()
	if err != nil {
		core.Log.Warn(m, "Ignoring stored endpoint ID", "err", err)
		return configured, nil
	}
	if ok {
		core.Log.Info(m, "Restored endpoint ID", "eid", saved)
		return saved, nil
	}
	return configured, nil
}

func (m *Mctpd) addPorts() error {
	ids := map[string]router.PortId{}
	for i := range m.config.Ports {
		cfg := &m.config.Ports[i]

		t, err := port.MakeTransport(cfg)
		if err != nil {
			return fmt.Errorf("port %s: %w", cfg.Name, err)
		}
		p, err := m.router.AddPort(t, router.PortOptions{
			Name: cfg.Name,
			Addr: cfg.Address,
			HandlerOptions: i2c.HandlerOptions{
				Pec:        cfg.Pec,
				RequirePec: cfg.Pec && !cfg.HwPec,
				Mtu:        cfg.Mtu,
			},
		})
		if err != nil {
			t.Close()
			return fmt.Errorf("port %s: %w", cfg.Name, err)
		}
		for _, n := range cfg.Neighbors {
			p.SetNeighbor(mctp.Eid(n.Eid), n.Address)
		}
		ids[cfg.Name] = p.Id()
	}

	for _, rt := range m.config.Routes {
		err := m.router.Routes().Add(mctp.Eid(rt.First), mctp.Eid(rt.Last), ids[rt.Port], mctp.Eid(rt.Gateway))
		if err != nil {
			return fmt.Errorf("route %d-%d: %w", rt.First, rt.Last, err)
		}
	}
	return nil
}

func (m *Mctpd) startMetrics() (err error) {
	m.metricsLn, err = net.Listen("tcp", m.config.Metrics.Listen)
	if err != nil {
		return fmt.Errorf("unable to listen for metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	m.metricsSrv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		err := m.metricsSrv.Serve(m.metricsLn)
		if !errors.Is(err, http.ErrServerClosed) {
			core.Log.Error(m, "Unable to serve metrics", "err", err)
		}
	}()
	core.Log.Info(m, "Serving metrics", "addr", m.metricsLn.Addr())
	return nil
}

// Stop shuts down the daemon. It is safe after a failed Start.
func (m *Mctpd) Stop() {
	core.Log.Info(m, "Stopping MCTP endpoint daemon")

	if m.cancel != nil {
		m.cancel()
	}
	if m.router != nil {
		m.router.Stop()
	}
	m.served.Wait()

	if m.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		m.metricsSrv.Shutdown(ctx)
		cancel()
	}
	if m.store != nil {
		if err := m.store.Close(); err != nil {
			core.Log.Warn(m, "Unable to close state store", "err", err)
		}
	}

	m.profiler.Stop()
	core.CloseLogger()
}

// persistentEndpoint saves every EID assignment so it survives restarts.
type persistentEndpoint struct {
	r     *router.Router
	state *store.EndpointState
}

func (e *persistentEndpoint) Eid() mctp.Eid {
	return e.r.Eid()
}

func (e *persistentEndpoint) SetEid(eid mctp.Eid) error {
	if err := e.r.SetEid(eid); err != nil {
		return err
	}
	return e.state.SetEid(eid)
}
