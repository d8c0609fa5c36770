package cli

import (
	"context"
	"fmt"

	flag "github.com/spf13/pflag"
)

// GetCmd returns the get command.
func GetCmd(a *app) *Command {
	flags := flag.NewFlagSet("get", flag.ContinueOnError)
	tf := addTokenFlags(flags)

	return &Command{
		Flags: flags,
		Usage: "get <key> (-t <token> | -s <file>)",
		Short: "Print a cached payload",
		Long:  "Write the payload stored under key to stdout. Fails when the key is missing or its token differs.",
		Exec: func(_ context.Context, o *IO, args []string) error {
			return execGet(o, a, tf, args)
		},
	}
}

func execGet(o *IO, a *app, tf tokenFlags, args []string) error {
	key, token, err := keyAndToken(a, tf, args)
	if err != nil {
		return err
	}

	payload, ok := a.openStore(nil).Get(key, token)
	if !ok {
		return ErrNotFound
	}

	_, err = o.Write(payload)
	if err != nil {
		return fmt.Errorf("writing payload: %w", err)
	}

	return nil
}

// HasCmd returns the has command.
func HasCmd(a *app) *Command {
	flags := flag.NewFlagSet("has", flag.ContinueOnError)
	tf := addTokenFlags(flags)

	return &Command{
		Flags: flags,
		Usage: "has <key> (-t <token> | -s <file>)",
		Short: "Report whether a valid entry exists",
		Long:  "Print true when key is cached with a matching token, false otherwise.",
		Exec: func(_ context.Context, o *IO, args []string) error {
			key, token, err := keyAndToken(a, tf, args)
			if err != nil {
				return err
			}

			o.Println(a.openStore(nil).Has(key, token))

			return nil
		},
	}
}

func keyAndToken(a *app, tf tokenFlags, args []string) (string, string, error) {
	if len(args) == 0 {
		return "", "", ErrKeyRequired
	}

	if len(args) > 1 {
		return "", "", fmt.Errorf("%w: %v", ErrTooManyArgs, args[1:])
	}

	token, err := tf.resolve(a)
	if err != nil {
		return "", "", err
	}

	return args[0], token, nil
}
