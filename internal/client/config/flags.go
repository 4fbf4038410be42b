package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/gophdrop/internal/flagx"
)

// GlobalFlags are consumed by the loader; whatever remains on the command
// line is the subcommand and its operands.
var GlobalFlags = []string{"-a", "-d", "-t", "-c", "-config"}

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   base URL of the server (default from Config)
//	-d string   path of the local history database
//	-t int      request timeout in seconds
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-t"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerURL, "a", cfg.ServerURL, "base URL of the server")
	fs.StringVar(&cfg.HistoryPath, "d", cfg.HistoryPath, "path of the local history database")
	timeout := fs.Int("t", int(cfg.RequestTimeout.Seconds()), "request timeout (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.RequestTimeout = time.Duration(*timeout) * time.Second
}

// CommandArgs returns os.Args without the program name and global flags.
func CommandArgs() []string {
	return flagx.StripArgs(os.Args[1:], GlobalFlags)
}
