package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"

	"github.com/marmos91/dittohttp/pkg/config"
)

const usage = `Usage:
  dittohttp [-t threads] [-l logfile] [-config file] [-log-level level] <port>
  dittohttp init [-force] [-config file]
  dittohttp audit [-n count] [-config file]
`

// options holds the parsed command line. Zero values mean "not given" so
// the configuration file keeps its say.
type options struct {
	configPath string
	threads    int
	auditLog   string
	logLevel   string
	port       int
	portSet    bool
}

// initOptions holds the command line of the init subcommand.
type initOptions struct {
	configPath string
	force      bool
}

// auditOptions holds the command line of the audit subcommand.
type auditOptions struct {
	configPath string
	limit      int
}

var errUsage = errors.New("invalid arguments")

// parseArgs parses the serve command line (without the program name).
func parseArgs(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("dittohttp", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}

	opts := &options{}
	fs.IntVar(&opts.threads, "t", 0, "Number of worker threads (default 4)")
	fs.StringVar(&opts.auditLog, "l", "", "Audit log file (default stderr)")
	fs.StringVar(&opts.configPath, "config", "", "Configuration file")
	fs.StringVar(&opts.logLevel, "log-level", "", "Log level (DEBUG, INFO, WARN, ERROR)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if isSet(fs, "t") && opts.threads < 1 {
		return nil, fmt.Errorf("%w: -t must be at least 1, got %d", errUsage, opts.threads)
	}

	switch fs.NArg() {
	case 0:
		if opts.configPath == "" {
			fs.Usage()
			return nil, fmt.Errorf("%w: missing port", errUsage)
		}
	case 1:
		// A positional port must name a real port; ephemeral binding is
		// only reachable through the configuration file.
		port, err := strconv.Atoi(fs.Arg(0))
		if err != nil || port <= 0 || port > 65535 {
			return nil, fmt.Errorf("%w: bad port number: %s", errUsage, fs.Arg(0))
		}
		opts.port = port
		opts.portSet = true
	default:
		fs.Usage()
		return nil, fmt.Errorf("%w: unexpected arguments %v", errUsage, fs.Args()[1:])
	}

	return opts, nil
}

// parseInitArgs parses the init subcommand's flags.
func parseInitArgs(args []string, stderr io.Writer) (*initOptions, error) {
	fs := flag.NewFlagSet("dittohttp init", flag.ContinueOnError)
	fs.SetOutput(stderr)

	opts := &initOptions{}
	fs.StringVar(&opts.configPath, "config", "", "Where to write the file (default "+config.GetDefaultConfigPath()+")")
	fs.BoolVar(&opts.force, "force", false, "Overwrite an existing file")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() != 0 {
		return nil, fmt.Errorf("%w: unexpected arguments %v", errUsage, fs.Args())
	}
	return opts, nil
}

// parseAuditArgs parses the audit subcommand's flags.
func parseAuditArgs(args []string, stderr io.Writer) (*auditOptions, error) {
	fs := flag.NewFlagSet("dittohttp audit", flag.ContinueOnError)
	fs.SetOutput(stderr)

	opts := &auditOptions{}
	fs.StringVar(&opts.configPath, "config", "", "Configuration file naming the badger audit trail")
	fs.IntVar(&opts.limit, "n", 20, "Number of most recent entries to print (0 for all)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if opts.limit < 0 {
		return nil, fmt.Errorf("%w: -n must not be negative, got %d", errUsage, opts.limit)
	}
	if fs.NArg() != 0 {
		return nil, fmt.Errorf("%w: unexpected arguments %v", errUsage, fs.Args())
	}
	return opts, nil
}

func isSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

// apply overrides cfg with the values given on the command line.
func (o *options) apply(cfg *config.Config) {
	if o.portSet {
		cfg.Adapters.HTTP.Port = o.port
	}
	if o.threads > 0 {
		cfg.Adapters.HTTP.Threads = o.threads
	}
	if o.auditLog != "" {
		cfg.Audit.Type = "file"
		if cfg.Audit.File == nil {
			cfg.Audit.File = make(map[string]any)
		}
		cfg.Audit.File["path"] = o.auditLog
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	// -log-level may be lowercase; keep the config normalized.
	config.ApplyDefaults(cfg)
}
