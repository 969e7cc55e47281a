// Package cli is a small command tree over the flag package.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
)

// ErrUsage is returned by Execute when the arguments do not match a
// command. Usage has already been printed.
var ErrUsage = errors.New("usage error")

// PositionalArgs checks the arguments left after flag parsing.
type PositionalArgs func(args []string) error

func MinArgs(n int) PositionalArgs {
	return func(args []string) error {
		if len(args) < n {
			return fmt.Errorf("requires at least %d arg(s), only received %d", n, len(args))
		}
		return nil
	}
}

func ExactArgs(n int) PositionalArgs {
	return func(args []string) error {
		if len(args) != n {
			return fmt.Errorf("accepts %d arg(s), received %d", n, len(args))
		}
		return nil
	}
}

// Command is a node of the command tree. The first word of Usage is its
// name.
type Command struct {
	Usage string
	Short string
	Long  string
	Args  PositionalArgs
	Run   func(ctx context.Context, args []string)

	flags    *flag.FlagSet
	commands []*Command
	parent   *Command
}

func (c *Command) Name() string {
	name, _, _ := strings.Cut(c.Usage, " ")
	return name
}

// Flags returns the flags of c. They are parsed before those of its
// subcommands, so they come first on the command line.
func (c *Command) Flags() *flag.FlagSet {
	if c.flags == nil {
		c.flags = flag.NewFlagSet(c.Name(), flag.ContinueOnError)
		c.flags.SetOutput(io.Discard)
	}
	return c.flags
}

func (c *Command) AddCommand(sub *Command) {
	sub.parent = c
	c.commands = append(c.commands, sub)
}

func (c *Command) path() string {
	if c.parent == nil {
		return c.Name()
	}
	return c.parent.path() + " " + c.Name()
}

// PrintUsage writes help for c to w.
func (c *Command) PrintUsage(w io.Writer) {
	if c.Long != "" {
		fmt.Fprintf(w, "%s\n\n", c.Long)
	} else if c.Short != "" {
		fmt.Fprintf(w, "%s\n\n", c.Short)
	}
	usage := c.Usage
	if c.parent != nil {
		usage = c.parent.path() + " " + c.Usage
	}
	if len(c.commands) > 0 {
		usage += " <command>"
	}
	fmt.Fprintf(w, "Usage:\n  %s\n", usage)

	if len(c.commands) > 0 {
		fmt.Fprintf(w, "\nCommands:\n")
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		for _, sub := range c.commands {
			fmt.Fprintf(tw, "  %s\t%s\n", sub.Name(), sub.Short)
		}
		tw.Flush()
	}

	hasFlags := false
	c.Flags().VisitAll(func(*flag.Flag) { hasFlags = true })
	if hasFlags {
		fmt.Fprintf(w, "\nFlags:\n")
		c.Flags().SetOutput(w)
		c.Flags().PrintDefaults()
		c.Flags().SetOutput(io.Discard)
	}
}

// Execute parses args against the tree under root and runs the selected
// command.
func Execute(ctx context.Context, root *Command, args []string) error {
	return execute(ctx, root, args, os.Stderr)
}

func execute(ctx context.Context, c *Command, args []string, stderr io.Writer) error {
	if err := c.Flags().Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			c.PrintUsage(stderr)
			return nil
		}
		fmt.Fprintf(stderr, "%s: %v\n\n", c.path(), err)
		c.PrintUsage(stderr)
		return ErrUsage
	}
	args = c.Flags().Args()

	if len(args) > 0 {
		for _, sub := range c.commands {
			if sub.Name() == args[0] {
				return execute(ctx, sub, args[1:], stderr)
			}
		}
	}

	if c.Run == nil {
		if len(args) > 0 {
			fmt.Fprintf(stderr, "%s: unknown command %q\n\n", c.path(), args[0])
			c.PrintUsage(stderr)
			return ErrUsage
		}
		c.PrintUsage(stderr)
		return nil
	}
	if c.Args != nil {
		if err := c.Args(args); err != nil {
			fmt.Fprintf(stderr, "%s: %v\n\n", c.path(), err)
			c.PrintUsage(stderr)
			return ErrUsage
		}
	}
	c.Run(ctx, args)
	return nil
}
