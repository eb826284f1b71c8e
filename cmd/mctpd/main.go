package main

import (
	"os"

	"github.com/mctp-go/mctpd/cmd"
)

func main() {
	if err := cmd.CmdMctpd.Execute(); err != nil {
		os.Exit(1)
	}
}
