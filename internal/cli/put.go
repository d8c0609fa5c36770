package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"unicode/utf8"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/blobstore/pkg/blobstore"
)

// PutCmd returns the put command.
func PutCmd(a *app) *Command {
	flags := flag.NewFlagSet("put", flag.ContinueOnError)
	tf := addTokenFlags(flags)

	return &Command{
		Flags: flags,
		Usage: "put <key> [file] (-t <token> | -s <file>)",
		Short: "Store a payload and save the cache",
		Long: `Store the contents of file (or stdin when no file is given) under key,
then save the cache. If another writer holds the lock the entry is not
persisted and a warning is printed.`,
		Exec: func(_ context.Context, o *IO, args []string) error {
			return execPut(o, a, tf, args)
		},
	}
}

func execPut(o *IO, a *app, tf tokenFlags, args []string) error {
	if len(args) == 0 {
		return ErrKeyRequired
	}

	if len(args) > 2 {
		return fmt.Errorf("%w: %v", ErrTooManyArgs, args[2:])
	}

	key := args[0]

	token, err := tf.resolve(a)
	if err != nil {
		return err
	}

	// The store would keep such an entry in memory only.
	if !utf8.ValidString(key) || !utf8.ValidString(token) {
		return ErrNotUTF8
	}

	payload, err := readPayload(a, args[1:])
	if err != nil {
		return err
	}

	store := a.openStore(nil)
	store.Set(key, token, payload)

	saved, err := store.TrySave()
	if err != nil {
		return err
	}

	if !saved {
		warnLocked(o, a, key+" was not saved")
	}

	o.Printf("stored %s (%d bytes)\n", key, len(payload))

	return nil
}

// readPayload reads the payload from the file in args, or from stdin.
func readPayload(a *app, args []string) ([]byte, error) {
	if len(args) > 0 {
		data, err := os.ReadFile(a.path(args[0]))
		if err != nil {
			return nil, fmt.Errorf("reading payload: %w", err)
		}

		return data, nil
	}

	if a.stdin == nil {
		return nil, ErrNoPayload
	}

	data, err := io.ReadAll(a.stdin)
	if err != nil {
		return nil, fmt.Errorf("reading stdin: %w", err)
	}

	return data, nil
}

func warnLocked(o *IO, a *app, issue string) {
	o.Warn(issue+" (cache locked by another writer)",
		"retry, or remove "+filepath.Join(a.cfg.DirAbs, blobstore.LockFile)+" if no other blobcache is running")
}
