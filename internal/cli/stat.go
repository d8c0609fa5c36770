package cli

import (
	"context"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/blobstore/pkg/blobstore"
)

// StatCmd returns the stat command.
func StatCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("stat", flag.ContinueOnError),
		Usage: "stat",
		Short: "Show snapshot diagnostics",
		Long: `Inspect the snapshot files in the cache directory without loading them
into a store. Unlike other commands, a corrupt snapshot is reported as an
error here instead of being treated as empty.`,
		Exec: func(_ context.Context, o *IO, _ []string) error {
			return execStat(o, a)
		},
	}
}

func execStat(o *IO, a *app) error {
	info, err := blobstore.Inspect(a.cfg.DirAbs, nil)
	if err != nil {
		return err
	}

	if info.Locked {
		o.Warn(blobstore.LockFile+" present",
			"a save is running or a writer died; remove it if no other blobcache is running")
	}

	o.Println("dir=" + info.Dir)
	o.Printf("present=%t\n", info.Present)

	if !info.Present {
		return nil
	}

	o.Printf("entries=%d\n", info.Entries)
	o.Printf("blob_bytes=%d\n", info.BlobBytes)
	o.Printf("referenced_bytes=%d\n", info.ReferencedBytes)

	return nil
}
