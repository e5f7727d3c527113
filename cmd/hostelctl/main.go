// Command hostelctl is the command-line front end of the HostelHub client.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/kimhsiao/hostelhub/client/internal/app"
	"github.com/kimhsiao/hostelhub/client/internal/config"
	"github.com/kimhsiao/hostelhub/client/internal/logging"
)

// Version is set at build time
var Version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// globals are the flags accepted before the command name.
type globals struct {
	configPath string
	apiURL     string
	dataDir    string
	logLevel   string
	offline    bool
}

func parseGlobals(args []string, stderr io.Writer) (*globals, []string, error) {
	g := &globals{}
	fs := flag.NewFlagSet("hostelctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&g.configPath, "config", "", "Path to the YAML config file (default <data dir>/config.yaml)")
	fs.StringVar(&g.apiURL, "api", "", "API base URL, overrides the config file")
	fs.StringVar(&g.dataDir, "data-dir", "", "Directory holding the local database")
	fs.StringVar(&g.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.BoolVar(&g.offline, "offline", false, "Work offline; writes are queued until the next sync")
	fs.Usage = func() { printUsage(stderr, fs) }
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	return g, fs.Args(), nil
}

func (g *globals) load() (*config.Config, error) {
	path := g.configPath
	if path == "" {
		dir := g.dataDir
		if dir == "" {
			dir = config.Default().Storage.DataDir
		}
		path = filepath.Join(dir, "config.yaml")
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if g.apiURL != "" {
		cfg.API.BaseURL = g.apiURL
	}
	if g.dataDir != "" {
		cfg.Storage.DataDir = g.dataDir
	}
	if g.logLevel != "" {
		cfg.Logging.Level = g.logLevel
	}
	return cfg, cfg.Validate()
}

func printUsage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintf(w, "hostelctl v%s\n\n", Version)
	fmt.Fprintln(w, "Usage: hostelctl [flags] <command> [arguments]")
	fmt.Fprintln(w, "\nCommands:")
	fmt.Fprintln(w, "  login        Sign in")
	fmt.Fprintln(w, "  register     Create an account and sign in")
	fmt.Fprintln(w, "  logout       Sign out")
	fmt.Fprintln(w, "  whoami       Show the signed-in user")
	fmt.Fprintln(w, "  hostels      List hostels")
	fmt.Fprintln(w, "  hostel       get|add|update|delete a hostel")
	fmt.Fprintln(w, "  users        List accounts (admin)")
	fmt.Fprintln(w, "  user         role|delete an account (admin)")
	fmt.Fprintln(w, "  dashboard    Show totals (admin)")
	fmt.Fprintln(w, "  queue        Show writes waiting for sync")
	fmt.Fprintln(w, "  sync         Replay queued writes now")
	fmt.Fprintln(w, "  subscribe    Enable push notifications")
	fmt.Fprintln(w, "  unsubscribe  Disable push notifications")
	fmt.Fprintln(w, "  watch        Stay connected: sync on reconnect, print notifications")
	fmt.Fprintln(w, "\nFlags:")
	fs.PrintDefaults()
	fmt.Fprintln(w, "\nUse 'hostelctl <command> -h' for more information on a specific command.")
}

// run executes one command and returns the process exit code.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	g, rest, err := parseGlobals(args, stderr)
	if err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}
	if len(rest) == 0 {
		fs := flag.NewFlagSet("hostelctl", flag.ContinueOnError)
		printUsage(stderr, fs)
		return 2
	}

	cfg, err := g.load()
	if err != nil {
		fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return 1
	}

	logOut, closeLog, err := cfg.LogWriter()
	if err != nil {
		fmt.Fprintf(stderr, "Error opening log: %v\n", err)
		return 1
	}
	defer closeLog()
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(stderr, "Invalid log level %q, using info\n", cfg.Logging.Level)
	}
	logging.Init(logOut, level)
	logging.Get().SetLevel(level)

	out := &lockedWriter{w: stdout}
	c := &cli{in: newPrompter(stdin, out), out: out, errOut: stderr}
	a, err := app.New(cfg, app.Options{
		ForceOffline: g.offline,
		Prompter:     c.in,
		Notice:       func(msg string) { fmt.Fprintln(out, msg) },
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer a.Close()
	c.app = a

	a.Start(ctx)

	if err := c.dispatch(ctx, rest[0], rest[1:]); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		c.report(err)
		return 1
	}
	return 0
}

// lockedWriter serialises writes from the watch goroutines.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
