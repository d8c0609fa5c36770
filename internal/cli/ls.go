package cli

import (
	"context"

	flag "github.com/spf13/pflag"
)

// LsCmd returns the ls command.
func LsCmd(a *app) *Command {
	flags := flag.NewFlagSet("ls", flag.ContinueOnError)
	long := flags.BoolP("long", "l", false, "Append the tier each entry is served from")

	return &Command{
		Flags: flags,
		Usage: "ls [-l]",
		Short: "List cached entries",
		Long:  "Print one line per entry as key, token and payload size separated by tabs.",
		Exec: func(_ context.Context, o *IO, args []string) error {
			if len(args) > 0 {
				return ErrTooManyArgs
			}

			for _, e := range a.openStore(nil).Entries() {
				if *long {
					o.Printf("%s\t%s\t%d\t%s\n", e.Key, e.Token, e.Size, e.Tier)

					continue
				}

				o.Printf("%s\t%s\t%d\n", e.Key, e.Token, e.Size)
			}

			return nil
		},
	}
}
