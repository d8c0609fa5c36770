package cli

import (
	"context"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/blobstore/pkg/blobstore"
)

// FingerprintCmd returns the fingerprint command.
func FingerprintCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("fingerprint", flag.ContinueOnError),
		Usage: "fingerprint <file>...",
		Short: "Print content fingerprints usable as tokens",
		Long:  "Print the fingerprint of each file, the same value -s uses as a token.",
		Exec: func(_ context.Context, o *IO, args []string) error {
			if len(args) == 0 {
				return ErrFileRequired
			}

			for _, name := range args {
				data, err := os.ReadFile(a.path(name))
				if err != nil {
					return fmt.Errorf("reading %s: %w", name, err)
				}

				o.Printf("%s  %s\n", blobstore.Fingerprint(data), name)
			}

			return nil
		},
	}
}
