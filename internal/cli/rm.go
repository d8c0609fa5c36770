package cli

import (
	"context"

	flag "github.com/spf13/pflag"
)

// RmCmd returns the rm command.
func RmCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("rm", flag.ContinueOnError),
		Usage: "rm <key>...",
		Short: "Remove entries and save the cache",
		Long:  "Remove each key from the cache, then save. Unknown keys are ignored.",
		Exec: func(_ context.Context, o *IO, args []string) error {
			return execRm(o, a, args)
		},
	}
}

func execRm(o *IO, a *app, keys []string) error {
	if len(keys) == 0 {
		return ErrKeyRequired
	}

	store := a.openStore(nil)
	before := store.Len()

	for _, key := range keys {
		store.Delete(key)
	}

	saved, err := store.TrySave()
	if err != nil {
		return err
	}

	if !saved {
		warnLocked(o, a, "removal was not saved")
	}

	o.Printf("removed %d of %d\n", before-store.Len(), len(keys))

	return nil
}
