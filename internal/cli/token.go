package cli

import (
	"fmt"
	"os"
	"path/filepath"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/blobstore/pkg/blobstore"
)

// tokenFlags are the -t/-s flags shared by commands that look up or store
// a key.
type tokenFlags struct {
	flags  *flag.FlagSet
	token  *string
	source *string
}

func addTokenFlags(flags *flag.FlagSet) tokenFlags {
	return tokenFlags{
		flags:  flags,
		token:  flags.StringP("token", "t", "", "Validation `token`"),
		source: flags.StringP("source", "s", "", "Use the fingerprint of `file` as the token"),
	}
}

// resolve returns the token given with -t, or the fingerprint of the file
// given with -s. Exactly one of them must be set.
func (f tokenFlags) resolve(a *app) (string, error) {
	hasToken, hasSource := f.flags.Changed("token"), f.flags.Changed("source")

	switch {
	case hasToken && hasSource:
		return "", ErrTokenConflict
	case hasToken:
		return *f.token, nil
	case hasSource:
		data, err := os.ReadFile(a.path(*f.source))
		if err != nil {
			return "", fmt.Errorf("reading source: %w", err)
		}

		return blobstore.Fingerprint(data), nil
	default:
		return "", ErrTokenRequired
	}
}

// path resolves p against the effective working directory.
func (a *app) path(p string) string {
	if filepath.IsAbs(p) {
		return p
	}

	return filepath.Join(a.cfg.EffectiveCwd, p)
}
