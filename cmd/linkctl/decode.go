package main

import (
	"context"
	"encoding/hex"
	"os"
	"strings"

	"github.com/plein/meterlink/codec"
	"github.com/plein/meterlink/frame"
	"github.com/plein/meterlink/internal/cli"
)

var decodeCmd = &cli.Command{
	Usage: "decode <hex>",
	Short: "decode a wire frame and print it as JSON",
	Args:  cli.ExactArgs(1),
	Run: func(ctx context.Context, args []string) {
		b, err := hex.DecodeString(strings.ReplaceAll(args[0], " ", ""))
		fatal(err)
		f, err := frame.Decode(b)
		fatal(err)
		fatal(codec.JSONCodec{Indent: "  "}.Encoder(os.Stdout).Encode(printable(f)))
	},
}
