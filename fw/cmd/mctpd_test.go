package cmd

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mctp-go/mctpd/fw/core"
	"github.com/mctp-go/mctpd/fw/port"
	"github.com/mctp-go/mctpd/fw/router"
	"github.com/mctp-go/mctpd/std/mctp"
	"github.com/mctp-go/mctpd/std/mctp/control"
	"github.com/mctp-go/mctpd/std/mctp/i2c"
	tu "github.com/mctp-go/mctpd/std/utils/testutils"
	"github.com/mctp-go/mctpd/std/utils/toolutils"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, stateDir string) *core.Config {
	c := core.DefaultConfig()
	c.Core.LogLevel = "WARN"
	c.Endpoint.Eid = 8
	c.Endpoint.StateDir = stateDir
	c.Endpoint.MsgTypes = []uint8{uint8(mctp.MsgTypePldm)}
	c.Ports = []core.PortConfig{{
		Name:      "ws0",
		Transport: core.TransportWebSocket,
		Address:   0x10,
		Pec:       true,
		Local:     "127.0.0.1:0",
	}}
	c.Metrics.Enabled = true
	c.Metrics.Listen = "127.0.0.1:0"
	require.NoError(t, c.Validate())
	return c
}

func startDaemon(t *testing.T, c *core.Config) *Mctpd {
	m := tu.NoErr(NewMctpd(c))
	require.NoError(t, m.Start())
	return m
}

// dialDaemon joins the daemon's bus as endpoint 20 at address 0x20.
func dialDaemon(t *testing.T, m *Mctpd, target mctp.Eid) (*router.Router, *control.Client) {
	url := m.Router().Port(0).Transport().(*port.WebSocketTransport).URL()
	ws := tu.NoErr(port.DialWebSocket(url))

	opts := router.DefaultOptions()
	opts.Eid = 20
	r := router.New(opts)
	t.Cleanup(r.Stop)

	p := tu.NoErr(r.AddPort(ws, router.PortOptions{
		Name:           "client",
		Addr:           0x20,
		HandlerOptions: i2c.HandlerOptions{Pec: true, RequirePec: true},
	}))
	p.SetNeighbor(target, 0x10)
	require.NoError(t, r.Start())
	return r, control.NewClient(r)
}

func ctxTimeout(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestDaemonControl(t *testing.T) {
	tu.SetT(t)
	ctx := ctxTimeout(t)

	m := startDaemon(t, testConfig(t, ""))
	defer m.Stop()
	_, client := dialDaemon(t, m, 8)

	id := tu.NoErr(client.GetEndpointId(ctx, 8))
	require.Equal(t, mctp.Eid(8), id.Eid)
	require.Equal(t, control.EndpointSimple, id.EndpointType)

	types := tu.NoErr(client.GetMessageTypes(ctx, 8))
	require.Equal(t, []mctp.MsgType{mctp.MsgTypeControl, mctp.MsgTypePldm}, types)

	// The UUID is generated once and reported as is
	raw := tu.NoErr(client.GetEndpointUuid(ctx, 8))
	saved := tu.NoErr(m.state.Uuid())
	require.Equal(t, [control.UuidLen]byte(saved), raw)

	var out bytes.Buffer
	require.NoError(t, queryEndpoint(client, 8, time.Second, toolutils.StatusPrinter{File: &out, Padding: 8}))
	require.Contains(t, out.String(), "     eid=8\n")
	require.Contains(t, out.String(), "uuid="+saved.String())

	resp := tu.NoErr(http.Get("http://" + m.MetricsAddr() + "/metrics"))
	defer resp.Body.Close()
	body := string(tu.NoErr(io.ReadAll(resp.Body)))
	require.Contains(t, body, `mctpd_rx_messages_total{port="ws0",type="control"}`)
	require.Contains(t, body, "go_goroutines")
}

func TestDaemonPersistsEid(t *testing.T) {
	tu.SetT(t)
	ctx := ctxTimeout(t)
	dir := t.TempDir()

	m := startDaemon(t, testConfig(t, dir))
	peer, client := dialDaemon(t, m, 8)

	resp := tu.NoErr(client.SetEndpointId(ctx, 8, control.SetEidSet, 30))
	require.Equal(t, control.EidAccepted, resp.Status)
	require.Equal(t, mctp.Eid(30), resp.Eid)
	require.Equal(t, mctp.Eid(30), m.Router().Eid())
	id := tu.NoErr(m.state.Uuid())
	peer.Stop()
	m.Stop()

	// Restart picks up the assigned EID and the same UUID
	m = startDaemon(t, testConfig(t, dir))
	require.Equal(t, mctp.Eid(30), m.Router().Eid())
	require.Equal(t, id, tu.NoErr(m.state.Uuid()))
	m.Stop()

	// A static EID wins over the stored one
	c := testConfig(t, dir)
	c.Endpoint.Static = true
	m = startDaemon(t, c)
	defer m.Stop()
	require.Equal(t, mctp.Eid(8), m.Router().Eid())

	_, client = dialDaemon(t, m, 8)
	id8 := tu.NoErr(client.GetEndpointId(ctx, 8))
	require.Equal(t, control.EidStaticMatching, id8.EidType)
}

func TestDaemonFixedUuid(t *testing.T) {
	tu.SetT(t)
	ctx := ctxTimeout(t)
	dir := t.TempDir()

	// A generated UUID is replaced by the configured one
	m := startDaemon(t, testConfig(t, dir))
	generated := tu.NoErr(m.state.Uuid())
	m.Stop()

	c := testConfig(t, dir)
	c.Endpoint.Uuid = "6ba7b810-9dad-11d1-80b4-00c04fd430c8"
	require.NoError(t, c.Validate())
	m = startDaemon(t, c)
	defer m.Stop()
	peer, client := dialDaemon(t, m, 8)
	defer peer.Stop()

	raw := tu.NoErr(client.GetEndpointUuid(ctx, 8))
	require.Equal(t, uuid.MustParse(c.Endpoint.Uuid), uuid.UUID(raw))
	require.NotEqual(t, generated, uuid.UUID(raw))

	c.Endpoint.Uuid = "not-a-uuid"
	require.Error(t, c.Validate())
}

func TestDaemonBadPort(t *testing.T) {
	c := testConfig(t, "")
	c.Ports[0].Transport = core.TransportStream
	c.Ports[0].Network = "unix"
	c.Ports[0].Remote = []string{filepath.Join(t.TempDir(), "missing.sock")}
	c.Metrics.Enabled = false

	m := tu.NoErr(NewMctpd(c))
	require.Error(t, m.Start())
	m.Stop()
}

func TestLogFile(t *testing.T) {
	c := testConfig(t, "")
	c.Core.BaseDir = t.TempDir()
	c.Core.LogFile = "mctpd.log"
	c.Core.LogLevel = "INFO"
	c.Core.LogFormat = "json"

	m := tu.NoErr(NewMctpd(c))
	require.NoError(t, m.Start())
	m.Stop()

	out := tu.NoErr(os.ReadFile(filepath.Join(c.Core.BaseDir, "mctpd.log")))
	require.Contains(t, string(out), `"msg":"Starting MCTP endpoint daemon"`)
	require.Contains(t, string(out), `"tag":"mctpd"`)

	c.Core.LogFormat = "xml"
	_, err := NewMctpd(c)
	require.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mctpd.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
core:
  log_level: DEBUG
endpoint:
  eid: 9
  state_dir: state
ports:
  - name: bus0
    transport: udp
    address: 29
    pec: true
    local: 127.0.0.1:7000
    remote: [127.0.0.1:7001]
    neighbors:
      - { eid: 10, address: 30 }
routes:
  - { first: 16, last: 31, port: bus0, gateway: 10 }
`), 0o644))

	c := core.DefaultConfig()
	require.NoError(t, LoadConfig(c, path))
	require.Equal(t, "DEBUG", c.Core.LogLevel)
	require.Equal(t, uint8(9), c.Endpoint.Eid)
	require.Equal(t, filepath.Join(dir, "state"), c.ResolveRelPath(c.Endpoint.StateDir))
	require.Len(t, c.Ports, 1)
	require.Equal(t, uint8(0x1d), c.Ports[0].Address)
	require.Equal(t, []core.NeighborConfig{{Eid: 10, Address: 0x1e}}, c.Ports[0].Neighbors)
	require.Equal(t, uint8(10), c.Routes[0].Gateway)
	// unset keys keep their defaults
	require.Equal(t, uint64(1000), c.Router.QueueTimeout)

	require.NoError(t, os.WriteFile(path, []byte("routes:\n  - { first: 16, last: 31, port: nope }\n"), 0o644))
	require.Error(t, LoadConfig(core.DefaultConfig(), path))
}
