package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mctp-go/mctpd/fw/core"
	"github.com/mctp-go/mctpd/std/utils"
	"github.com/mctp-go/mctpd/std/utils/toolutils"
	"github.com/spf13/cobra"
)

var config = core.DefaultConfig()

var CmdMctpd = &cobra.Command{
	Use:     "run CONFIG-FILE",
	Short:   "Start the MCTP endpoint daemon",
	GroupID: "run",
	Version: utils.Version,
	Args:    cobra.ExactArgs(1),
	RunE:    run,
}

func init() {
	CmdMctpd.Flags().StringVar(&config.Core.CpuProfile, "cpu-profile", "", "Write CPU profile to file")
	CmdMctpd.Flags().StringVar(&config.Core.MemProfile, "mem-profile", "", "Write memory profile to file")
	CmdMctpd.Flags().StringVar(&config.Core.BlockProfile, "block-profile", "", "Write block profile to file")
}

// LoadConfig reads and validates a configuration file on top of config.
func LoadConfig(config *core.Config, configfile string) error {
	config.Core.BaseDir = filepath.Dir(configfile)
	if err := toolutils.ReadYaml(config, configfile); err != nil {
		return err
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func run(cmd *cobra.Command, args []string) error {
	if err := LoadConfig(config, args[0]); err != nil {
		return err
	}
	cmd.SilenceUsage = true

	// create mctpd instance
	mctpd, err := NewMctpd(config)
	if err != nil {
		return err
	}
	if err := mctpd.Start(); err != nil {
		mctpd.Stop()
		return err
	}

	// set up signal handler channel and wait for interrupt
	sigChannel := make(chan os.Signal, 1)
	signal.Notify(sigChannel, os.Interrupt, syscall.SIGTERM)
	dumpChannel := make(chan os.Signal, 1)
	notifyDump(dumpChannel)

	for {
		select {
		case <-dumpChannel:
			utils.PrintStackTrace(os.Stderr)
		case receivedSig := <-sigChannel:
			core.Log.Info(mctpd, "Received signal - exit", "signal", receivedSig)
			mctpd.Stop()
			return nil
		}
	}
}
