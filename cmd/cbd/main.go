// The cbd daemon receives cell broadcast messages through GSM modems and delivers the public warnings.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ftl/cellbroadcast/api"
	"github.com/ftl/cellbroadcast/config"
	"github.com/ftl/cellbroadcast/handler"
	"github.com/ftl/cellbroadcast/logging"
	"github.com/ftl/cellbroadcast/modem"
	"github.com/ftl/cellbroadcast/notify"
	"github.com/ftl/cellbroadcast/serial"
	"github.com/ftl/cellbroadcast/store"
)

const shutdownTimeout = 5 * time.Second

func main() {
	_ = godotenv.Load(".env.local")

	defaultConfig := os.Getenv("CBD_CONFIG")
	if defaultConfig == "" {
		defaultConfig = "./cbd.yaml"
	}
	var cfgPath string
	flag.StringVar(&cfgPath, "config", defaultConfig, "path to the YAML configuration")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfgPath); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string) error {
	manager, err := config.NewManager(cfgPath, zerolog.Nop())
	if err != nil {
		return err
	}
	cfg := manager.Get()

	log, logFile, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	defer logFile.Close()
	manager.WithLogger(log.With().Str("component", "config").Logger())

	history, err := store.Open(store.Config{Path: cfg.Store.Path, BusyTimeout: cfg.Store.BusyTimeout}, log)
	if err != nil {
		return fmt.Errorf("cannot open message history: %w", err)
	}
	defer history.Close()

	pruner, err := store.NewPruneJob(history, cfg.Store.PruneSchedule, cfg.Store.Retention, log)
	if err != nil {
		return err
	}
	pruner.Run(ctx)
	pruner.Start(ctx)

	modems, closers, err := openModems(cfg, log)
	defer closeAll(closers)
	if err != nil {
		return err
	}

	notifier := notify.NewAreaInfoNotifier(manager, rate.Limit(cfg.AreaInfo.Rate), cfg.AreaInfo.Burst, cfg.Delivery.Timeout, log)
	defer notifier.Close()

	service := handler.NewService(cfg.SlotIndexes(), dependencies(cfg, manager, history, notifier, modems, log))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return service.Run(ctx)
	})

	for _, m := range modems {
		m := m
		if err := m.Start(ctx, service); err != nil {
			cancel()
			_ = group.Wait()
			return err
		}
		group.Go(func() error {
			select {
			case <-ctx.Done():
				return nil
			case <-m.Done():
				return fmt.Errorf("connection to the modem on slot %d lost", m.Slot())
			}
		})
	}
	manager.Subscribe(func(cfg *config.Config) {
		for _, m := range modems {
			slot, ok := cfg.Slot(m.Slot())
			if !ok {
				continue
			}
			if err := m.SelectChannels(ctx, slot.MessageIdentifiers()); err != nil {
				log.Warn().Err(err).Msg("cannot update area info channels")
			}
		}
	})
	group.Go(func() error {
		return manager.Watch(ctx)
	})

	server := &http.Server{
		Addr:              cfg.HTTP.Listen,
		Handler:           api.NewHandler(service, history, log.With().Str("component", "api").Logger()),
		ReadHeaderTimeout: 10 * time.Second,
	}
	group.Go(func() error {
		log.Info().Str("listen", server.Addr).Msg("http server started")
		err := server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Debug().Err(err).Msg("cannot notify systemd")
	}
	log.Info().Ints("slots", service.Slots()).Msg("cell broadcast daemon running")

	err = group.Wait()
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	log.Info().Err(err).Msg("cell broadcast daemon stopped")
	return err
}

func openModems(cfg *config.Config, log zerolog.Logger) ([]*modem.Modem, []io.Closer, error) {
	var modems []*modem.Modem
	var closers []io.Closer
	for _, slot := range cfg.Slots {
		c, port, err := serial.Open(serial.Config{
			PortName: slot.Port,
			BaudRate: slot.BaudRate,
			RTSCTS:   slot.RTSCTS,
		}, log.With().Int("slot", slot.Index).Logger())
		if err != nil {
			return modems, closers, fmt.Errorf("slot %d: %w", slot.Index, err)
		}
		closers = append(closers, port)
		modems = append(modems, modem.New(slot.Index, c, modem.Options{
			AreaInfoChannels: slot.MessageIdentifiers(),
			CellTTL:          slot.CellTTL,
			GPSPollInterval:  cfg.Geofence.GPSPollInterval,
		}, log))
	}
	return modems, closers, nil
}

func dependencies(cfg *config.Config, manager *config.Manager, history *store.SQLite, notifier handler.AreaInfoNotifier, modems []*modem.Modem, log zerolog.Logger) handler.Dependencies {
	result := handler.Dependencies{
		Store:        history,
		Settings:     manager,
		CellLocators: make(map[int]handler.CellLocator, len(modems)),
		Notifier:     notifier,
		Log:          log,
	}
	for _, m := range modems {
		result.CellLocators[m.Slot()] = m.CellLocator()
		slot, _ := cfg.Slot(m.Slot())
		if slot.GPS && result.Locator == nil {
			result.Locator = m.GPSLocator()
		}
	}
	if cfg.Delivery.URL != "" {
		result.Deliverer = notify.NewWebhook(cfg.Delivery.URL, cfg.Delivery.Timeout, log)
	} else {
		result.Deliverer = notify.NewLogDeliverer(log)
	}
	result.Observer = func(slot int, decision handler.Decision) {
		log.Info().Int("slot", slot).Stringer("outcome", decision.Outcome).Stringer("reason", decision.Reason).Msg("geo-fencing decided")
	}
	return result
}

func closeAll(closers []io.Closer) {
	for _, closer := range closers {
		_ = closer.Close()
	}
}
