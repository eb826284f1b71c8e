package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/pprof"

	"github.com/mctp-go/mctpd/fw/core"
)

// Profiler writes the CPU, memory and block profiles requested on the
// command line.
type Profiler struct {
	config  *core.Config
	cpuFile *os.File
	block   *pprof.Profile
}

func NewProfiler(config *core.Config) *Profiler {
	return &Profiler{config: config}
}

func (p *Profiler) String() string {
	return "profiler"
}

// Start begins CPU and block profiling if enabled.
func (p *Profiler) Start() error {
	if out := p.config.Core.CpuProfile; out != "" {
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("unable to open CPU profile: %w", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			return fmt.Errorf("unable to start CPU profile: %w", err)
		}
		p.cpuFile = f
		core.Log.Info(p, "Profiling CPU", "out", out)
	}

	if out := p.config.Core.BlockProfile; out != "" {
		core.Log.Info(p, "Profiling blocking operations", "out", out)
		runtime.SetBlockProfileRate(1)
		p.block = pprof.Lookup("block")
	}
	return nil
}

// Stop writes the pending profiles. Failures are logged.
func (p *Profiler) Stop() {
	if p.block != nil {
		if err := writeProfile(p.config.Core.BlockProfile, func(w io.Writer) error {
			return p.block.WriteTo(w, 0)
		}); err != nil {
			core.Log.Error(p, "Unable to write block profile", "err", err)
		}
		runtime.SetBlockProfileRate(0)
		p.block = nil
	}

	if out := p.config.Core.MemProfile; out != "" {
		core.Log.Info(p, "Profiling memory", "out", out)
		runtime.GC()
		if err := writeProfile(out, pprof.WriteHeapProfile); err != nil {
			core.Log.Error(p, "Unable to write memory profile", "err", err)
		}
	}

	if p.cpuFile != nil {
		pprof.StopCPUProfile()
		p.cpuFile.Close()
		p.cpuFile = nil
	}
}

func writeProfile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	return errors.Join(write(f), f.Close())
}
