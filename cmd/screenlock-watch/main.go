// screenlock-watch reports screen lock changes of the current desktop session.
//
// It listens for the ActiveChanged signal of the GNOME and freedesktop screensavers on the D-Bus
// session bus and logs every change until interrupted.
//
// Modes:
//
//	screenlock-watch            watch until SIGINT or SIGTERM
//	screenlock-watch --probe    exit 0 if a screensaver answers, 1 otherwise
//	screenlock-watch --state    print whether the screensaver is active
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/MatthiasKunnen/screenlock/internal/config"
	"github.com/MatthiasKunnen/screenlock/pkg/lock"
)

// exitError carries a process exit status without an error message.
type exitError int

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

func (e exitError) ExitCode() int { return int(e) }

func main() {
	if err := run(os.Args[1:]); err != nil {
		var coder interface{ ExitCode() int }
		if errors.As(err, &coder) {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var configPath string
	var logLevel string
	var probe bool
	var state bool

	flagSet := pflag.NewFlagSet("screenlock-watch", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to a TOML or YAML config file")
	flagSet.StringVar(&logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")
	flagSet.BoolVar(&probe, "probe", false, "check whether a screensaver is available and exit")
	flagSet.BoolVar(&state, "state", false, "print whether the screensaver is active and exit")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}

	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if probe && state {
		return errors.New("--probe and --state are mutually exclusive")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	logger := cfg.Logger(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch {
	case probe:
		return runProbe(ctx, cfg, logger)
	case state:
		return runState(ctx, cfg)
	default:
		return runWatch(ctx, logger)
	}
}

func runProbe(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.Probe.Timeout.Duration)
	defer cancel()

	if !lock.IsMonitorAvailableContext(ctx) {
		logger.Warn("no screensaver answered on the session bus")
		fmt.Println("unavailable")
		return exitError(1)
	}

	fmt.Println("available")
	return nil
}

func runState(ctx context.Context, cfg *config.Config) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.Probe.Timeout.Duration)
	defer cancel()

	active, err := lock.GetActive(ctx)
	if err != nil {
		return err
	}

	if active {
		fmt.Println("active")
	} else {
		fmt.Println("inactive")
	}
	return nil
}

func runWatch(ctx context.Context, logger *slog.Logger) error {
	watcher, err := lock.Watch(ctx, func(event lock.Event) {
		logger.Info("screensaver state changed",
			"interface", event.ScreenSaver.Interface,
			"path", string(event.ScreenSaver.Path),
			"active", event.Active,
		)
	})
	if err != nil {
		return err
	}

	logger.Info("watching screen lock", "screensavers", len(lock.ScreenSavers()))

	select {
	case <-ctx.Done():
		logger.Debug("interrupted, stopping")
		if err := watcher.Close(); err != nil {
			logger.Warn("closing watcher", "error", err)
		}
		<-watcher.Done()
		return nil
	case <-watcher.Done():
		if ctx.Err() != nil {
			return nil
		}
		return errors.New("session bus connection closed")
	}
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, "Usage: screenlock-watch [flags]\n\n")
	fmt.Fprintf(os.Stderr, "Logs screen lock changes reported by the desktop screensaver.\n\n")
	fmt.Fprintf(os.Stderr, "Flags:\n")
	flagSet.PrintDefaults()
}
