// hotspotctl is the operator console for the hotspot accounting stack. Every
// command prints its result as JSON on stdout; failures go to stderr and the
// exit status encodes the failure kind.
//
//	hotspotctl [--config file] [--actor name] <command> [flags] [args]
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	flag "github.com/spf13/pflag"

	"github.com/mohit83k/hotspot-console/internal/config"
	"github.com/mohit83k/hotspot-console/internal/errs"
	"github.com/mohit83k/hotspot-console/internal/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(exitCode(err))
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	global := flag.NewFlagSet("hotspotctl", flag.ContinueOnError)
	global.SetOutput(stderr)
	global.SetInterspersed(false)
	configPath := global.String("config", "", "optional YAML config file")
	actor := global.String("actor", os.Getenv("USER"), "operator name recorded in the audit journal")
	global.Usage = func() { printUsage(stderr, global) }
	if err := global.Parse(args); err != nil {
		return err
	}

	cmd, rest, ok := lookup(global.Args())
	if !ok {
		printUsage(stderr, global)
		return errs.E(errs.KindValidation, "hotspotctl", fmt.Sprintf("unknown command %q", joinArgs(global.Args())), nil)
	}

	cfg, err := config.Resolve(*configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(stderr, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	a := newApp(cfg, log, *actor)
	defer a.Close()

	fs := flag.NewFlagSet(cmd.name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	exec := cmd.setup(fs)
	if err := fs.Parse(rest); err != nil {
		return err
	}

	result, err := exec(ctx, a, fs.Args())
	if err != nil {
		return err
	}
	return writeJSON(stdout, result)
}

// exitCode maps a failure to a stable process status.
func exitCode(err error) int {
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	switch errs.KindOf(err) {
	case errs.KindValidation:
		return 2
	case errs.KindNotFound:
		return 3
	case errs.KindDuplicateUsername:
		return 4
	case errs.KindAuth:
		return 5
	case errs.KindDeviceUnavailable, errs.KindUnsupported:
		return 6
	case errs.KindStoreUnavailable:
		return 7
	default:
		return 1
	}
}

func printUsage(w io.Writer, global *flag.FlagSet) {
	fmt.Fprintln(w, "usage: hotspotctl [global flags] <command> [flags] [args]")
	fmt.Fprintln(w, "\nglobal flags:")
	fmt.Fprint(w, global.FlagUsages())
	fmt.Fprintln(w, "\ncommands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-18s %s\n", c.name, c.summary)
	}
}
