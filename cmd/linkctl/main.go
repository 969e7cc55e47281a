package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/plein/meterlink/config"
	"github.com/plein/meterlink/host"
	"github.com/plein/meterlink/internal/cli"
	"github.com/plein/meterlink/internal/logging"
	"github.com/plein/meterlink/internal/metrics"
	"github.com/plein/meterlink/transport"
	"github.com/sirupsen/logrus"
)

var (
	configPath    string
	transportName string
	addr          string
	timeout       time.Duration
)

func main() {
	root := &cli.Command{
		Usage: "linkctl",
		Long:  `linkctl talks to a meter over its USB serial link`,
	}
	root.Flags().StringVar(&configPath, "config", "", "config file (default ./meterlink.yaml)")
	root.Flags().StringVar(&transportName, "transport", "", "transport: serial, tcp, unix, ws or stdio")
	root.Flags().StringVar(&addr, "addr", "", "transport address")
	root.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "time allowed for a request")

	root.AddCommand(portsCmd)
	root.AddCommand(echoCmd)
	root.AddCommand(sendCmd)
	root.AddCommand(decodeCmd)
	root.AddCommand(monitorCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := cli.Execute(ctx, root, os.Args[1:]); err != nil {
		os.Exit(2)
	}
}

func fatal(err error) {
	if err != nil {
		logrus.Fatal(err)
	}
}

// setup loads the config with command line overrides applied.
func setup() (config.Config, *logrus.Logger) {
	cfg, err := config.Load(configPath)
	fatal(err)
	if transportName != "" {
		cfg.Transport = transportName
	}
	if addr != "" {
		cfg.Addr = addr
	}
	log, err := logging.New("linkctl", cfg.Log)
	fatal(err)
	return cfg, log
}

// connect dials the device and starts a host session on it.
func connect(ctx context.Context, cfg config.Config, log *logrus.Logger) *host.Host {
	conn, err := transport.Dial(cfg.Transport, cfg.Address())
	fatal(err)
	if cfg.Metrics.Listen != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Listen); err != nil {
				log.WithError(err).Warn("metrics endpoint failed")
			}
		}()
	}
	h := host.New(conn, cfg.HostConfig(), log)
	go h.Run(ctx)
	return h
}
