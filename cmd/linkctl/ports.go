package main

import (
	"context"
	"fmt"

	"github.com/plein/meterlink/internal/cli"
	"github.com/plein/meterlink/transport"
)

var portsCmd = &cli.Command{
	Usage: "ports",
	Short: "list USB serial ports and mark meters",
	Args:  cli.ExactArgs(0),
	Run: func(ctx context.Context, args []string) {
		cfg, _ := setup()
		ports, err := transport.ListUSB()
		fatal(err)
		for _, p := range ports {
			mark := " "
			if p.VID == uint16(cfg.Serial.VID) && p.PID == uint16(cfg.Serial.PID) {
				mark = "*"
			}
			fmt.Println(mark, p)
		}
	},
}
