package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"time"

	"github.com/plein/meterlink/config"
	"github.com/plein/meterlink/device"
	"github.com/plein/meterlink/frame"
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
	announce      time.Duration
)

func main() {
	root := &cli.Command{
		Usage: "linksim",
		Long: `linksim is the device end of a meter link. It serves echo topics on a
serial gadget port, or on tcp, unix, ws or stdio to stand in for a meter.`,
		Args: cli.ExactArgs(0),
		Run:  run,
	}
	root.Flags().StringVar(&configPath, "config", "", "config file (default ./meterlink.yaml)")
	root.Flags().StringVar(&transportName, "transport", "", "transport: serial, tcp, unix, ws or stdio")
	root.Flags().StringVar(&addr, "addr", "", "transport address")
	root.Flags().DurationVar(&announce, "announce", 0, "send an uptime echo on topic 0xffff at this interval")

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

func run(ctx context.Context, args []string) {
	cfg, err := config.Load(configPath)
	fatal(err)
	if transportName != "" {
		cfg.Transport = transportName
	}
	if addr != "" {
		cfg.Addr = addr
	}
	log, err := logging.New("linksim", cfg.Log)
	fatal(err)

	port, err := transport.Listen(cfg.Transport, cfg.Address())
	fatal(err)
	defer port.Close()

	if cfg.Metrics.Listen != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Listen); err != nil {
				log.WithError(err).Warn("metrics endpoint failed")
			}
		}()
	}

	dev := device.NewLink(port, cfg.DeviceConfig(), log)
	svc, err := device.NewEchoService(dev.Outbox(), cfg.Device.Capacity, log)
	fatal(err)
	defer svc.Release()
	dev.Handle(svc)

	if announce > 0 {
		go announceUptime(ctx, dev.Outbox(), announce)
	}

	log.WithField("transport", cfg.Transport).Info("waiting for host")
	err = dev.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		fatal(err)
	}
}

// announceUptime pushes device initiated frames, so hosts can exercise
// their fallback handler.
func announceUptime(ctx context.Context, outbox chan<- frame.Frame, every time.Duration) {
	start := time.Now()
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			up := time.Since(start).Round(time.Second).String()
			select {
			case outbox <- frame.New(frame.Echo{Text: "up " + up}).WithTopic(0xffff):
			case <-ctx.Done():
				return
			}
		}
	}
}
