package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	flag "github.com/spf13/pflag"
)

// Command is one blobcache subcommand such as put, get or shell.
//
// Each command opens its own store inside Exec, so two commands
// in one process never share a memory tier.
type Command struct {
	// Flags are parsed after the global flags. Token commands register
	// -t/--token and -s/--source here.
	Flags *flag.FlagSet

	// Usage follows "blobcache" in help; its first word is the command name,
	// e.g. "get <key> (-t <token> | -s <file>)".
	Usage string

	// Short is shown next to Usage in the command list.
	Short string

	// Long is shown by "blobcache <cmd> --help", falling back to Short.
	Long string

	// Exec receives the positional args left after flag parsing. A returned
	// error is printed as "error: ..." and exits 1.
	Exec func(ctx context.Context, o *IO, args []string) error
}

// Name is what users type after the global flags.
func (c *Command) Name() string {
	name, _, _ := strings.Cut(c.Usage, " ")

	return name
}

// HelpLine is the command's row under "Commands:" in blobcache --help.
func (c *Command) HelpLine() string {
	return fmt.Sprintf("  %-36s %s", c.Usage, c.Short)
}

// PrintHelp writes usage, description and flag defaults to stdout.
func (c *Command) PrintHelp(o *IO) {
	o.Println("Usage: blobcache", c.Usage)
	o.Println()

	desc := c.Long
	if desc == "" {
		desc = c.Short
	}

	o.Println(desc)

	if c.Flags != nil && c.Flags.HasFlags() {
		o.Println()
		o.Println("Flags:")

		var buf strings.Builder

		c.Flags.SetOutput(&buf)
		c.Flags.PrintDefaults()
		o.Printf("%s", buf.String())
	}
}

// Run parses flags, runs Exec and maps the outcome to an exit code:
// 0 on success, 1 on a flag error, an Exec error, or any warning recorded
// on o (e.g. a save skipped because LOCK is held).
func (c *Command) Run(ctx context.Context, o *IO, args []string) int {
	// pflag's own messages would duplicate ours.
	c.Flags.SetOutput(&strings.Builder{})

	err := c.Flags.Parse(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			c.PrintHelp(o)

			return 0
		}

		o.ErrPrintln("error:", err)
		o.ErrPrintln()
		c.PrintHelp(o)

		return 1
	}

	err = c.Exec(ctx, o, c.Flags.Args())
	if err != nil {
		o.ErrPrintln("error:", err)

		return 1
	}

	return o.Finish()
}
