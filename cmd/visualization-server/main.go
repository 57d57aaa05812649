// Package main runs the visualization service on a NATS bus.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
	"golang.org/x/sync/errgroup"

	"go.viam.com/queryvis/compose"
	"go.viam.com/queryvis/config"
	"go.viam.com/queryvis/logging"
	"go.viam.com/queryvis/metrics"
	"go.viam.com/queryvis/server"
	"go.viam.com/queryvis/transport/natsbus"
	"go.viam.com/queryvis/visualization"
)

// Arguments for the command.
type Arguments struct {
	ConfigFile string `flag:"config,usage=JSON config file"`
	NATSURL    string `flag:"nats,usage=NATS server url, overrides the config"`
	Debug      bool   `flag:"debug"`
	Metrics    string `flag:"metrics,usage=address to serve prometheus metrics on, overrides the config"`
}

func main() {
	logger := logging.NewLogger("visualization-server")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := mainWithArgs(ctx, os.Args, logger)
	stop()
	if err != nil {
		logger.Error(err)
		os.Exit(1)
	}
}

func loadConfig(argsParsed Arguments) (*config.Config, error) {
	cfg := config.Default()
	if argsParsed.ConfigFile != "" {
		var err error
		if cfg, err = config.Read(argsParsed.ConfigFile); err != nil {
			return nil, err
		}
	}
	applyFlags(cfg, argsParsed)
	return cfg, nil
}

// applyFlags overrides config values with those given on the command line.
func applyFlags(cfg *config.Config, argsParsed Arguments) {
	if argsParsed.NATSURL != "" {
		cfg.NATSURL = argsParsed.NATSURL
	}
	if argsParsed.Metrics != "" {
		cfg.MetricsAddress = argsParsed.Metrics
	}
	if argsParsed.Debug {
		cfg.Debug = true
	}
}

func mainWithArgs(ctx context.Context, args []string, logger logging.Logger) (err error) {
	var argsParsed Arguments
	if err := utils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}
	cfg, err := loadConfig(argsParsed)
	if err != nil {
		return err
	}
	logger.SetLevel(cfg.Level())
	if cfg.LogFile != "" {
		appender := logging.NewFileAppender(cfg.LogFile, cfg.LogMaxSizeMB)
		logger.AddAppender(appender)
		defer func() {
			err = multierr.Combine(err, appender.Close())
		}()
	}

	bus, err := natsbus.Connect(cfg.NATSURL, cfg.Names(), logger.Sublogger("nats"))
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	compositor := visualization.NewCompositor(compose.NewPanelComposer(), logger.Sublogger("compositor"))
	svc, err := server.New(compositor, server.Options{
		Publisher:  bus,
		Subscriber: bus,
		Endpoint:   bus,
		Metrics:    metrics.New(registry),
	}, logger)
	if err != nil {
		return multierr.Combine(err, bus.Close())
	}
	defer func() {
		err = multierr.Combine(err, svc.Close())
	}()
	if err := svc.Start(); err != nil {
		return err
	}
	logger.Infow("listening",
		"nats", cfg.NATSURL,
		"topic_input", cfg.TopicInput,
		"image_output", cfg.ImageOutput,
		"service_name", cfg.ServiceName)

	var updates <-chan *config.Config
	if argsParsed.ConfigFile != "" {
		watcher, err := config.NewWatcher(argsParsed.ConfigFile, cfg, logger.Sublogger("config"))
		if err != nil {
			return err
		}
		defer utils.UncheckedErrorFunc(watcher.Close)
		updates = watcher.Config()
	}

	errs, ctx := errgroup.WithContext(ctx)
	if cfg.MetricsAddress != "" {
		errs.Go(func() error {
			return errors.Wrap(metrics.Serve(ctx, cfg.MetricsAddress, registry, logger.Sublogger("metrics")), "metrics server failed")
		})
	}
	if updates != nil {
		errs.Go(func() error {
			watchConfig(ctx, argsParsed, cfg, updates, logger)
			return nil
		})
	}
	errs.Go(func() error {
		<-ctx.Done()
		return nil
	})
	return errs.Wait()
}

// watchConfig applies log level changes as they arrive. Other changes are reported and
// take effect on the next start.
func watchConfig(
	ctx context.Context,
	argsParsed Arguments,
	current *config.Config,
	updates <-chan *config.Config,
	logger logging.Logger,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case next := <-updates:
			applyFlags(next, argsParsed)
			if next.Level() != current.Level() {
				logger.Infow("changing log level", "from", current.Level(), "to", next.Level())
				logger.SetLevel(next.Level())
			}
			if current.NeedsRestart(next) {
				logger.Warn("config changed, restart the service to apply changes beyond the log level")
			}
			current = next
		}
	}
}
