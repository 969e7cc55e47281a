package main

import (
	"context"
	"errors"

	"github.com/plein/meterlink/frame"
	"github.com/plein/meterlink/internal/cli"
	"github.com/sirupsen/logrus"
)

var monitorTrace bool

var monitorCmd = &cli.Command{
	Usage: "monitor",
	Short: "hold a session open and log topics the meter opens",
	Args:  cli.ExactArgs(0),
	Run: func(ctx context.Context, args []string) {
		cfg, log := setup()
		if monitorTrace {
			frame.Debug = log.WriterLevel(logrus.InfoLevel)
		}
		h := connect(ctx, cfg, log)
		err := h.Wait()
		if errors.Is(err, context.Canceled) {
			return
		}
		fatal(err)
	},
}

func init() {
	monitorCmd.Flags().BoolVar(&monitorTrace, "trace", false, "log every frame encoded or decoded")
}
