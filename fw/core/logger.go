package core

import (
	"io"
	"os"

	"github.com/mctp-go/mctpd/std/log"
)

// Log is the daemon logger. It is the std/log default logger, so library
// packages write to the same output. It is never replaced, only
// redirected, since transport goroutines may outlive a daemon instance.
var Log = log.Default()

var logFile io.Closer

// OpenLogger points Log at the output described by the core section of c.
func OpenLogger(c *Config) error {
	level, err := log.ParseLevel(c.Core.LogLevel)
	if err != nil {
		return err
	}

	var w io.Writer = os.Stderr
	var f *os.File
	if c.Core.LogFile != "" {
		f, err = os.OpenFile(c.ResolveRelPath(c.Core.LogFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		w = f
	}

	if err := Log.Redirect(w, c.Core.LogFormat); err != nil {
		if f != nil {
			f.Close()
		}
		return err
	}
	if logFile != nil {
		logFile.Close()
	}
	logFile = nil
	if f != nil {
		logFile = f
	}
	Log.SetLevel(level)
	return nil
}

// CloseLogger closes the log file, if any, and falls back to stderr.
func CloseLogger() {
	if logFile == nil {
		return
	}
	Log.Redirect(os.Stderr, "text")
	logFile.Close()
	logFile = nil
}
