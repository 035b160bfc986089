package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/luki/hydromonitor/internal/config"
	"github.com/luki/hydromonitor/internal/configsync"
	"github.com/luki/hydromonitor/internal/engine"
	"github.com/luki/hydromonitor/internal/metrics"
	"github.com/luki/hydromonitor/internal/monitor"
	"github.com/luki/hydromonitor/internal/server"
)

func main() {
	cmd := "live"
	var args []string
	if len(os.Args) > 1 {
		cmd = strings.ToLower(os.Args[1])
		args = os.Args[2:]
	}

	var err error
	switch cmd {
	case "live":
		err = runLive()
	case "serve":
		err = runServe()
	case "config":
		err = runConfig(args)
	case "help", "-h", "--help":
		printHelp()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printHelp()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Println("Usage: hydromonitor [command]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  live                     terminal dashboard (default)")
	fmt.Println("  serve                    headless JSON API and /metrics")
	fmt.Println("  config get               print the controller settings")
	fmt.Println("  config set <min> <ec>    save cycle minutes and target EC")
	fmt.Println("  help                     show this message")
	fmt.Println()
	fmt.Println("Settings come from .env, the YAML file in HYDRO_CONFIG, and HYDRO_* variables.")
	fmt.Println("HYDRO_BASE_URL is required.")
}

// runLive runs the dashboard. Logs go to HYDRO_LOG_FILE so they do not
// corrupt the terminal.
func runLive() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, closeLog, err := newLogger(cfg.Log, false)
	if err != nil {
		return err
	}
	defer closeLog()

	eng, err := engine.New(cfg,
		engine.WithLogger(log),
		engine.WithMetrics(metrics.New(nil)),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng.Start(ctx)
	defer eng.Stop()

	p := tea.NewProgram(monitor.New(eng), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}

// runServe runs the feeds with the status server until interrupted.
func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, closeLog, err := newLogger(cfg.Log, true)
	if err != nil {
		return err
	}
	defer closeLog()

	reg := prometheus.NewRegistry()
	eng, err := engine.New(cfg,
		engine.WithLogger(log.With().Str("component", "engine").Logger()),
		engine.WithMetrics(metrics.New(reg)),
	)
	if err != nil {
		return err
	}
	srv := server.New(cfg.HTTPAddr, eng, reg, log.With().Str("component", "server").Logger())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eng.Run(ctx) })
	g.Go(func() error { return srv.Run(ctx) })
	g.Go(func() error {
		if _, err := eng.ReadConfig(ctx); err != nil {
			log.Warn().Err(err).Msg("initial config read failed")
		}
		return nil
	})

	log.Info().Str("addr", cfg.HTTPAddr).Str("base_url", cfg.BaseURL).Msg("hydromonitor serving")
	return g.Wait()
}

// runConfig reads or writes the controller settings once.
func runConfig(args []string) error {
	if len(args) == 0 {
		printHelp()
		return nil
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, closeLog, err := newLogger(cfg.Log, true)
	if err != nil {
		return err
	}
	defer closeLog()

	eng, err := engine.New(cfg, engine.WithLogger(log))
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout+5*time.Second)
	defer cancel()

	switch strings.ToLower(args[0]) {
	case "get":
		v, err := eng.ReadConfig(ctx)
		if err != nil {
			return err
		}
		printValues(v)
		return nil
	case "set":
		if len(args) != 3 {
			return fmt.Errorf("usage: hydromonitor config set <cycle-minutes> <target-ec>")
		}
		minutes, err := strconv.ParseFloat(args[1], 64)
		if err != nil || minutes < 0 {
			return fmt.Errorf("invalid cycle minutes %q", args[1])
		}
		target, err := strconv.ParseFloat(args[2], 64)
		if err != nil || target < 0 {
			return fmt.Errorf("invalid target EC %q", args[2])
		}
		v := configsync.Values{CycleMinutes: minutes, TargetConductivity: target}
		if err := eng.WriteConfig(ctx, v); err != nil {
			return err
		}
		printValues(v)
		return nil
	default:
		return fmt.Errorf("unknown config action %q (want get or set)", args[0])
	}
}

func printValues(v configsync.Values) {
	fmt.Printf("cycle:     %g min (%g s)\n", v.CycleMinutes, configsync.MinutesToSeconds(v.CycleMinutes))
	fmt.Printf("target EC: %g mS/cm\n", v.TargetConductivity)
}

// newLogger builds the process logger. Interactive mode discards logs
// unless a file is configured.
func newLogger(c config.LogConfig, toStderr bool) (zerolog.Logger, func(), error) {
	level, err := zerolog.ParseLevel(strings.ToLower(c.Level))
	if err != nil || c.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano

	noop := func() {}
	switch {
	case c.File != "":
		f, err := os.OpenFile(c.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), noop, fmt.Errorf("open log file: %w", err)
		}
		log := zerolog.New(f).Level(level).With().Timestamp().Logger()
		return log, func() { _ = f.Close() }, nil
	case !toStderr:
		return zerolog.Nop(), noop, nil
	case c.Pretty:
		w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
		return zerolog.New(w).Level(level).With().Timestamp().Logger(), noop, nil
	default:
		return zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger(), noop, nil
	}
}
