package main

import (
	"context"
	"fmt"
	"os"

	"github.com/plein/meterlink/codec"
	"github.com/plein/meterlink/frame"
	"github.com/plein/meterlink/internal/cli"
	"github.com/plein/meterlink/mux"
)

var echoJSON bool

var echoCmd = &cli.Command{
	Usage: "echo <text>...",
	Short: "send each text on its own topic and print the replies",
	Args:  cli.MinArgs(1),
	Run: func(ctx context.Context, args []string) {
		cfg, log := setup()
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		h := connect(ctx, cfg, log)

		chans := make([]mux.Channel, 0, len(args))
		for _, text := range args {
			ch, err := h.Call(ctx, frame.New(frame.Echo{Text: text}))
			fatal(err)
			chans = append(chans, ch)
		}

		enc := codec.JSONCodec{Indent: "  "}.Encoder(os.Stdout)
		for _, ch := range chans {
			f, err := ch.Receive(ctx)
			fatal(err)
			if echoJSON {
				fatal(enc.Encode(printable(f)))
			} else {
				fmt.Printf("%d: %s\n", f.Topic, f.Verb)
			}
			fatal(h.CloseTopic(ctx, ch.Topic()))
		}
	},
}

func init() {
	echoCmd.Flags().BoolVar(&echoJSON, "json", false, "print replies as JSON")
}

type printableFrame struct {
	Topic *uint32     `json:"topic"`
	Verb  string      `json:"verb"`
	Body  interface{} `json:"body,omitempty"`
}

func printable(f frame.Frame) printableFrame {
	p := printableFrame{Verb: f.Verb.Type().String()}
	if topic, ok := f.TopicID(); ok {
		p.Topic = &topic
	}
	switch v := f.Verb.(type) {
	case frame.Echo:
		p.Body = v.Text
	case frame.Unknown:
		p.Body = v.Body
	}
	return p
}
