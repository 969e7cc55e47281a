package main

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/plein/meterlink/frame"
	"github.com/plein/meterlink/internal/cli"
	"github.com/progrium/clon-go"
)

var (
	sendTopic int64
	sendWait  bool
)

var sendCmd = &cli.Command{
	Usage: "send <verb> [field=value...]",
	Short: "send one frame built from the command line",
	Long: `send builds a frame from a verb name and its fields, for example

  linkctl send echo text=hello
  linkctl send -topic 3 close

Without -topic the frame opens a new topic and the first reply is printed.`,
	Args: cli.MinArgs(1),
	Run: func(ctx context.Context, args []string) {
		var fields interface{}
		if len(args) > 1 {
			var err error
			fields, err = clon.Parse(args[1:])
			fatal(err)
		}
		verb, err := buildVerb(args[0], fields)
		fatal(err)

		cfg, log := setup()
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		h := connect(ctx, cfg, log)

		if sendTopic >= 0 {
			fatal(h.Send(ctx, frame.New(verb).WithTopic(uint32(sendTopic))))
			return
		}
		ch, err := h.Call(ctx, frame.New(verb))
		fatal(err)
		fmt.Println("topic", ch.Topic())
		if !sendWait {
			return
		}
		reply, err := ch.Receive(ctx)
		fatal(err)
		fmt.Println(reply)
	},
}

func init() {
	sendCmd.Flags().Int64Var(&sendTopic, "topic", -1, "send on an existing topic")
	sendCmd.Flags().BoolVar(&sendWait, "wait", true, "wait for the first reply on a new topic")
}

// buildVerb makes the verb called name from fields decoded by clon.
func buildVerb(name string, fields interface{}) (frame.Verb, error) {
	t, err := frame.ParseVerbType(name)
	if err != nil {
		return nil, err
	}
	switch t {
	case frame.VerbEcho:
		var v frame.Echo
		if err := decodeFields(fields, &v); err != nil {
			return nil, err
		}
		return v, nil
	case frame.VerbClose:
		return frame.Close{}, nil
	default:
		return nil, fmt.Errorf("verb %s cannot be sent from the command line", t)
	}
}

func decodeFields(fields interface{}, v interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           v,
	})
	if err != nil {
		return err
	}
	return dec.Decode(fields)
}
