package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/thereceipt/label-engine/internal/api"
	"github.com/thereceipt/label-engine/internal/driver"
	"github.com/thereceipt/label-engine/internal/driver/ble"
	"github.com/thereceipt/label-engine/internal/driver/rfcomm"
	"github.com/thereceipt/label-engine/internal/printer"
	"github.com/thereceipt/label-engine/internal/registry"
	"github.com/thereceipt/label-engine/internal/tui"
)

// Version is set during build via ldflags
var Version = "dev"

const registryFile = "known_printers.json"

type config struct {
	port            string
	driver          string
	registry        string
	pollInterval    time.Duration
	pollTimeout     time.Duration
	disconnectGrace time.Duration
	linkCheck       time.Duration
	rfcommChannel   int
	noTUI           bool
	logLevel        string
}

func parseConfig() config {
	var cfg config
	flag.StringVar(&cfg.port, "port", envOr("SERVER_PORT", "12212"), "HTTP listen port")
	flag.StringVar(&cfg.driver, "driver", envOr("LABEL_DRIVER", "ble"), "printer back-end: ble or rfcomm")
	flag.StringVar(&cfg.registry, "registry", os.Getenv("LABEL_REGISTRY"), "known printers file")
	flag.DurationVar(&cfg.pollInterval, "poll-interval", printer.DefaultPollInterval, "connect poll interval")
	flag.DurationVar(&cfg.pollTimeout, "poll-timeout", printer.DefaultPollTimeout, "give up on a connect after this long")
	flag.DurationVar(&cfg.disconnectGrace, "disconnect-grace", printer.DefaultDisconnectGrace, "wait before reporting a disconnect")
	flag.DurationVar(&cfg.linkCheck, "link-check", 2*time.Second, "link monitor interval, 0 disables")
	flag.IntVar(&cfg.rfcommChannel, "rfcomm-channel", envInt("RFCOMM_CHANNEL", 1), "RFCOMM channel")
	flag.BoolVar(&cfg.noTUI, "no-tui", false, "log to stderr instead of running the console")
	flag.StringVar(&cfg.logLevel, "log-level", envOr("LOG_LEVEL", "info"), "debug, info, warn or error")
	flag.Parse()

	if cfg.registry == "" {
		cfg.registry = getRegistryPath()
	}
	return cfg
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func newDriver(cfg config) (driver.Driver, error) {
	switch cfg.driver {
	case "ble":
		return ble.New(ble.Options{}), nil
	case "rfcomm":
		return rfcomm.New(rfcomm.Options{Channel: cfg.rfcommChannel}), nil
	default:
		return nil, fmt.Errorf("unknown driver %q, want ble or rfcomm", cfg.driver)
	}
}

func setupLogging(level string, out io.Writer) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: out, NoColor: out != os.Stderr, TimeFormat: "15:04:05"})
}

func main() {
	cfg := parseConfig()
	setupLogging(cfg.logLevel, os.Stderr)

	drv, err := newDriver(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	known, err := registry.New(cfg.registry)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.registry).Msg("failed to load known printers")
	}

	manager := printer.NewManager(drv, printer.Options{
		PollInterval:      cfg.pollInterval,
		PollTimeout:       cfg.pollTimeout,
		DisconnectGrace:   cfg.disconnectGrace,
		LinkCheckInterval: cfg.linkCheck,
		Known:             known,
	})
	defer manager.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var tuiApp *tui.TViewApp
	if !cfg.noTUI {
		tuiApp = tui.NewTViewApp(manager, cfg.port)
		setupLogging(cfg.logLevel, tuiApp.LogWriter())
	}

	server := api.NewServer(manager)
	serverErrChan := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf("0.0.0.0:%s", cfg.port)
		log.Info().Str("addr", addr).Str("version", Version).Msg("🚀 starting API server")
		if err := server.Run(ctx, addr); err != nil {
			serverErrChan <- err
		}
	}()

	tuiDone := make(chan struct{})
	if tuiApp != nil {
		go func() {
			if err := tuiApp.Run(); err != nil {
				log.Error().Err(err).Msg("TUI error")
			}
			close(tuiDone)
		}()
	}

	select {
	case err := <-serverErrChan:
		if tuiApp != nil {
			tuiApp.App.Stop()
		}
		setupLogging(cfg.logLevel, os.Stderr)
		log.Error().Err(err).Msg("server error")
	case <-ctx.Done():
		if tuiApp != nil {
			tuiApp.App.Stop()
		}
		setupLogging(cfg.logLevel, os.Stderr)
		log.Info().Msg("🛑 shutting down")
	case <-tuiDone:
		setupLogging(cfg.logLevel, os.Stderr)
	}
}

// getRegistryPath returns the path to the known printers file.
// It tries to place it next to the executable, or falls back to current directory.
func getRegistryPath() string {
	if exePath, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exePath)
		if info, err := os.Stat(exeDir); err == nil && info.IsDir() {
			// Try to create a test file to check write permissions
			testFile := filepath.Join(exeDir, ".label-engine-write-test")
			if f, err := os.Create(testFile); err == nil {
				f.Close()
				os.Remove(testFile)
				return filepath.Join(exeDir, registryFile)
			}
		}
	}

	if wd, err := os.Getwd(); err == nil {
		return filepath.Join(wd, registryFile)
	}

	var configDir string
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			configDir = filepath.Join(appData, "label-engine")
		} else {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "label-engine")
		}
	} else if home := os.Getenv("HOME"); home != "" {
		configDir = filepath.Join(home, ".config", "label-engine")
	}

	if configDir != "" {
		os.MkdirAll(configDir, 0755)
		return filepath.Join(configDir, registryFile)
	}

	return registryFile
}
