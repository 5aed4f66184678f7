// tutor runs program trees on the teaching runtime.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/tliron/commonlog"

	"github.com/chazu/tutor/config"
	"github.com/chazu/tutor/server"

	_ "github.com/tliron/commonlog/simple"
)

func main() {
	configDir := flag.String("config", "", "Directory to search for "+config.FileName+" (default: current directory)")
	verbosity := flag.Int("v", 0, "Log verbosity; overrides the config file when non-zero")
	noCache := flag.Bool("no-cache", false, "Compile without reading or writing the compiled unit cache")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: tutor [options] <command> [args]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  run <tree.yaml>      Compile and run the main program\n")
		fmt.Fprintf(os.Stderr, "  step <tree.yaml>     Run the main program one instruction at a time\n")
		fmt.Fprintf(os.Stderr, "  check <tree.yaml>    Report diagnostics without running\n")
		fmt.Fprintf(os.Stderr, "  disasm <tree.yaml>   Print the generated programs\n")
		fmt.Fprintf(os.Stderr, "  prune <age>          Drop cached units older than age (e.g. 720h)\n")
		fmt.Fprintf(os.Stderr, "  lsp                  Start the language server on stdio\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	start := *configDir
	if start == "" {
		start = "."
	}
	cfg, err := config.FindAndLoad(start)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *verbosity != 0 {
		cfg.Log.Verbosity = *verbosity
	}
	commonlog.Configure(cfg.Log.Verbosity, cfg.LogPath())

	a := &app{
		cfg:      cfg,
		out:      os.Stdout,
		errOut:   os.Stderr,
		color:    isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()),
		useCache: cfg.Cache.Enabled && !*noCache,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := a.dispatch(ctx, args); err != nil {
		var cerr *compileError
		if !errors.As(err, &cerr) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		stop()
		os.Exit(1)
	}
}

func (a *app) dispatch(ctx context.Context, args []string) error {
	cmd, rest := args[0], args[1:]
	needFile := func() (string, error) {
		if len(rest) != 1 {
			return "", fmt.Errorf("%s expects one tree file", cmd)
		}
		return rest[0], nil
	}

	switch cmd {
	case "run":
		path, err := needFile()
		if err != nil {
			return err
		}
		return a.run(ctx, path)
	case "step":
		path, err := needFile()
		if err != nil {
			return err
		}
		return a.step(path)
	case "check":
		path, err := needFile()
		if err != nil {
			return err
		}
		return a.check(path)
	case "disasm":
		path, err := needFile()
		if err != nil {
			return err
		}
		return a.disasm(path)
	case "prune":
		if len(rest) != 1 {
			return errors.New("prune expects an age such as 720h")
		}
		age, err := time.ParseDuration(rest[0])
		if err != nil {
			return err
		}
		return a.prune(age)
	case "lsp":
		return server.NewLSP().Run()
	}
	return fmt.Errorf("unknown command %q", cmd)
}
