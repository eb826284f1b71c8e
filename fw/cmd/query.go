package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/mctp-go/mctpd/fw/port"
	"github.com/mctp-go/mctpd/fw/router"
	"github.com/mctp-go/mctpd/std/mctp"
	"github.com/mctp-go/mctpd/std/mctp/control"
	"github.com/mctp-go/mctpd/std/mctp/i2c"
	"github.com/mctp-go/mctpd/std/utils/toolutils"
	"github.com/spf13/cobra"
)

type queryArgs struct {
	eid     uint8
	addr    uint8
	peer    uint8
	pec     bool
	setEid  uint8
	timeout time.Duration
}

// CmdQuery asks an endpoint on a WebSocket bus for its control state.
func CmdQuery() *cobra.Command {
	args := queryArgs{}

	cmd := &cobra.Command{
		Use:     "query URL EID",
		Short:   "Query an endpoint with MCTP control requests",
		GroupID: "tools",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, argv []string) error {
			target, err := strconv.ParseUint(argv[1], 0, 8)
			if err != nil || !mctp.Eid(target).Valid() {
				return fmt.Errorf("invalid endpoint ID %q", argv[1])
			}
			cmd.SilenceUsage = true
			return args.run(argv[0], mctp.Eid(target), cmd.OutOrStdout())
		},
	}

	cmd.Flags().Uint8Var(&args.eid, "eid", 0xFE, "Own endpoint ID")
	cmd.Flags().Uint8Var(&args.addr, "addr", 0x7E, "Own bus address")
	cmd.Flags().Uint8Var(&args.peer, "peer", 0x10, "Bus address of the endpoint")
	cmd.Flags().BoolVar(&args.pec, "pec", true, "Use PEC on the bus")
	cmd.Flags().Uint8Var(&args.setEid, "set-eid", 0, "Assign this endpoint ID before querying")
	cmd.Flags().DurationVar(&args.timeout, "timeout", 2*time.Second, "Timeout of each request")
	return cmd
}

func (a *queryArgs) run(url string, target mctp.Eid, out io.Writer) error {
	t, err := port.DialWebSocket(url)
	if err != nil {
		return err
	}

	opts := router.DefaultOptions()
	opts.Eid = mctp.Eid(a.eid)
	r := router.New(opts)
	defer r.Stop()

	p, err := r.AddPort(t, router.PortOptions{
		Name:           "query",
		Addr:           a.addr,
		HandlerOptions: i2c.HandlerOptions{Pec: a.pec, RequirePec: a.pec},
	})
	if err != nil {
		t.Close()
		return err
	}
	p.SetNeighbor(target, a.peer)
	if err := r.Start(); err != nil {
		return err
	}

	client := control.NewClient(r)
	if a.setEid != 0 {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		resp, err := client.SetEndpointId(ctx, target, control.SetEidSet, mctp.Eid(a.setEid))
		cancel()
		if err != nil {
			return fmt.Errorf("set endpoint ID: %w", err)
		}
		// The endpoint now answers on its new EID
		target = resp.Eid
		p.SetNeighbor(target, a.peer)
	}

	return queryEndpoint(client, target, a.timeout, toolutils.StatusPrinter{File: out, Padding: 12})
}

func queryEndpoint(client *control.Client, eid mctp.Eid, timeout time.Duration, p toolutils.StatusPrinter) error {
	call := func(f func(ctx context.Context) error) error {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return f(ctx)
	}

	var id control.GetEidResponse
	if err := call(func(ctx context.Context) (err error) {
		id, err = client.GetEndpointId(ctx, eid)
		return
	}); err != nil {
		return fmt.Errorf("get endpoint ID: %w", err)
	}
	p.Print("eid", uint8(id.Eid))
	p.Print("bridge", id.EndpointType == control.EndpointBridge)
	p.Print("static", id.EidType == control.EidStatic || id.EidType == control.EidStaticMatching)

	var raw [control.UuidLen]byte
	if err := call(func(ctx context.Context) (err error) {
		raw, err = client.GetEndpointUuid(ctx, eid)
		return
	}); err != nil {
		fmt.Fprintf(os.Stderr, "get endpoint UUID: %v\n", err)
	} else {
		p.Print("uuid", uuid.UUID(raw))
	}

	var types []mctp.MsgType
	if err := call(func(ctx context.Context) (err error) {
		types, err = client.GetMessageTypes(ctx, eid)
		return
	}); err != nil {
		return fmt.Errorf("get message types: %w", err)
	}
	p.Print("types", types)

	var versions []control.Version
	if err := call(func(ctx context.Context) (err error) {
		versions, err = client.GetVersionSupport(ctx, eid, 0xFF)
		return
	}); err != nil {
		return fmt.Errorf("get version support: %w", err)
	}
	p.Print("versions", versions)
	return nil
}
