package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/blobstore/internal/config"
	"github.com/calvinalkan/blobstore/pkg/blobstore"
)

var (
	errNoCommand      = errors.New("no command provided")
	errUnknownCommand = errors.New("unknown command")
)

// app is the state shared by all commands of one invocation.
type app struct {
	cfg   config.Config
	log   *slog.Logger
	stdin io.Reader
	env   map[string]string
}

// openStore opens the configured cache directory.
func (a *app) openStore(metrics *blobstore.Metrics) *blobstore.Store {
	return blobstore.Open(a.cfg.DirAbs, blobstore.Options{
		Logger:  a.log,
		Metrics: metrics,
		SyncDir: a.cfg.SyncDir,
	})
}

// Run is the main entry point. Returns exit code.
func Run(stdin io.Reader, out io.Writer, errOut io.Writer, args []string, env map[string]string) int {
	globals := flag.NewFlagSet("blobcache", flag.ContinueOnError)
	globals.SetInterspersed(false)
	globals.SetOutput(&strings.Builder{})

	workDir := globals.StringP("cwd", "C", "", "Run as if started in `dir`")
	configPath := globals.StringP("config", "c", "", "Use specified config `file`")
	cacheDir := globals.StringP("dir", "d", "", "Cache `dir` (overrides config)")
	verbose := globals.BoolP("verbose", "v", false, "Log debug output to stderr")
	help := globals.BoolP("help", "h", false, "Show help")

	a := &app{stdin: stdin, env: env}
	commands := allCommands(a)

	if len(args) < 2 {
		printUsage(out, globals, commands)

		return 0
	}

	err := globals.Parse(args[1:])
	if err != nil {
		fprintln(errOut, "error:", err)
		fprintln(errOut)
		printUsage(errOut, globals, commands)

		return 1
	}

	if *help {
		printUsage(out, globals, commands)

		return 0
	}

	if globals.Changed("dir") && *cacheDir == "" {
		fprintln(errOut, "error:", config.ErrDirEmpty)
		fprintln(errOut)
		printUsage(errOut, globals, commands)

		return 1
	}

	rest := globals.Args()
	if len(rest) == 0 {
		fprintln(errOut, "error:", errNoCommand)
		fprintln(errOut)
		printUsage(errOut, globals, commands)

		return 1
	}

	cmd := findCommand(commands, rest[0])
	if cmd == nil {
		fprintln(errOut, "error:", fmt.Errorf("%w: %s", errUnknownCommand, rest[0]))
		fprintln(errOut)
		printUsage(errOut, globals, commands)

		return 1
	}

	cfg, err := config.Load(config.Input{
		WorkDirOverride: *workDir,
		ConfigPath:      *configPath,
		DirOverride:     *cacheDir,
		Verbose:         *verbose,
		Env:             env,
	})
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	a.cfg = cfg
	a.log = slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: cfg.LogLevel}))

	return cmd.Run(context.Background(), NewIO(out, errOut), rest[1:])
}

func allCommands(a *app) []*Command {
	return []*Command{
		PutCmd(a),
		GetCmd(a),
		HasCmd(a),
		RmCmd(a),
		LsCmd(a),
		StatCmd(a),
		FingerprintCmd(a),
		PrintConfigCmd(a),
		ShellCmd(a),
	}
}

func findCommand(commands []*Command, name string) *Command {
	for _, cmd := range commands {
		if cmd.Name() == name {
			return cmd
		}
	}

	return nil
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}

func printUsage(w io.Writer, globals *flag.FlagSet, commands []*Command) {
	fprintln(w, `blobcache - two-tier key/value blob cache

Usage: blobcache [flags] <command> [args]

Global flags:`)

	var buf strings.Builder

	globals.SetOutput(&buf)
	globals.PrintDefaults()
	globals.SetOutput(&strings.Builder{})

	_, _ = io.WriteString(w, buf.String())

	fprintln(w)
	fprintln(w, "Commands:")

	for _, cmd := range commands {
		fprintln(w, cmd.HelpLine())
	}

	fprintln(w)
	fprintln(w, `Run "blobcache <command> --help" for command flags.`)
}
