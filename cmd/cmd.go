package cmd

import (
	fw "github.com/mctp-go/mctpd/fw/cmd"
	"github.com/mctp-go/mctpd/std/utils"
	"github.com/spf13/cobra"
)

const banner = `
                 _              _
  _ __ ___   ___| |_ _ __   __| |
 | '_ ' _ \ / __| __| '_ \ / _' |
 | | | | | | (__| |_| |_) | (_| |
 |_| |_| |_|\___|\__| .__/ \__,_|
                    |_|

MCTP Endpoint Daemon
`

var CmdMctpd = &cobra.Command{
	Use:     "mctpd",
	Short:   "MCTP Endpoint Daemon",
	Long:    banner[1:],
	Version: utils.Version,
}

func init() {
	cobra.EnableCommandSorting = false
	CmdMctpd.Root().CompletionOptions.HiddenDefaultCmd = true
	CmdMctpd.PersistentFlags().BoolP("help", "h", false, "Print usage")
	CmdMctpd.PersistentFlags().Lookup("help").Hidden = true

	CmdMctpd.AddGroup(&cobra.Group{ID: "run", Title: "Endpoint Daemon"})
	CmdMctpd.AddCommand(fw.CmdMctpd)

	CmdMctpd.AddGroup(&cobra.Group{ID: "tools", Title: "Debug Tools"})
	CmdMctpd.AddCommand(fw.CmdQuery())
}
