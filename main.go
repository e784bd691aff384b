package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"ledger-monitor/api"
	"ledger-monitor/config"
	"ledger-monitor/discovery"
	"ledger-monitor/logger"
	"ledger-monitor/monitor"
	"ledger-monitor/timesync"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

var log = logger.Logger

func main() {
	app := &cli.App{
		Name:        "ledger-monitor",
		Usage:       "Operator monitor for a cluster of ledger nodes",
		Description: "Polls every configured ledger node, reconciles their reported chains and balances into one coherent view, and serves it over REST and websocket",
		Version:     "1.0.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.yaml",
				Usage:   "Path to the yaml config file",
			},
			&cli.StringFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "API server port (overrides config)",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Log level (debug, info, warn, error; overrides config)",
			},
		},
		Action: runMonitor,
	}

	err := app.Run(os.Args)
	if err != nil {
		log.WithError(err).Fatal("Application failed")
	}
}

func runMonitor(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}

	levelName := cfg.LogLevel
	if c.String("log-level") != "" {
		levelName = c.String("log-level")
	}
	level, err := logrus.ParseLevel(levelName)
	if err != nil {
		log.WithError(err).Warn("Invalid log level, using info")
		level = logrus.InfoLevel
	}
	logger.Setup(cfg.LogFile, cfg.LogDatabase, level)

	port := strconv.Itoa(cfg.APIPort)
	if c.String("port") != "" {
		port = c.String("port")
	}

	nodes := cfg.Nodes
	if cfg.DiscoveryOn {
		discovered, err := discovery.Discover()
		if err != nil {
			log.WithError(err).Warn("Node discovery failed, using configured nodes only")
		} else {
			nodes = discovery.Merge(nodes, discovered)
		}
	}
	if len(nodes) == 0 {
		return fmt.Errorf("no nodes configured or discovered")
	}

	opts := monitor.Options{
		Nodes:           nodes,
		RefreshInterval: cfg.RefreshInterval,
		EventCapacity:   cfg.EventCapacity,
		CanvasWidth:     cfg.CanvasWidth,
		CanvasHeight:    cfg.CanvasHeight,
	}

	var clock *timesync.Source
	if cfg.NTPOn {
		clock = timesync.NewSource()
		clock.Start()
		opts.Now = clock.Now
	}

	log.WithFields(logrus.Fields{
		"nodes":    len(nodes),
		"port":     port,
		"interval": cfg.RefreshInterval,
		"version":  c.App.Version,
	}).Info("Starting ledger monitor")

	mon := monitor.New(opts)
	mon.Start()

	server := api.NewServer(port, mon)

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

		sig := <-sigChan
		log.WithField("signal", sig).Info("Received shutdown signal")

		mon.Stop()
		if clock != nil {
			clock.Stop()
		}
		if err := server.Stop(); err != nil {
			log.WithError(err).Error("Error stopping server")
		}

		log.Info("Monitor stopped gracefully")
		os.Exit(0)
	}()

	err = server.Start()
	if err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}
	return nil
}
