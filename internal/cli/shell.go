package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/peterh/liner"
	"github.com/prometheus/client_golang/prometheus"
	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/blobstore/pkg/blobstore"
)

const shellPrompt = "blobcache> "

var shellCommands = []string{
	"put", "get", "has", "del", "delete",
	"ls", "list", "len", "save", "stats", "fingerprint",
	"help", "exit", "quit", "q",
}

// lineReader is the input side of the shell. *liner.State implements it.
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
}

// ShellCmd returns the shell command.
func ShellCmd(a *app) *Command {
	flags := flag.NewFlagSet("shell", flag.ContinueOnError)
	noHistory := flags.Bool("no-history", false, "Do not read or write ~/.blobcache_history")

	return &Command{
		Flags: flags,
		Usage: "shell [--no-history]",
		Short: "Interactive session on one store",
		Long: `Open the cache once and run commands against it interactively.
Changes stay in memory until "save". Type "help" inside the shell for commands.`,
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			return execShell(ctx, o, a, *noHistory)
		},
	}
}

func execShell(ctx context.Context, o *IO, a *app, noHistory bool) error {
	registry := prometheus.NewRegistry()

	sh := &shell{
		o:        o,
		log:      a.log,
		store:    a.openStore(blobstore.NewMetrics(registry)),
		registry: registry,
	}

	stdin := a.stdin
	if stdin == nil {
		stdin = strings.NewReader("")
	}

	if f, ok := stdin.(*os.File); ok && f == os.Stdin {
		line := liner.NewLiner()
		defer line.Close()

		line.SetCtrlCAborts(true)
		line.SetCompleter(completeShell)

		history := ""
		if home := a.env["HOME"]; home != "" && !noHistory {
			history = filepath.Join(home, ".blobcache_history")
		}

		readHistory(line, history)
		defer writeHistory(line, history)

		return sh.run(ctx, line)
	}

	return sh.run(ctx, &scannerLines{sc: bufio.NewScanner(stdin)})
}

type shell struct {
	o        *IO
	log      *slog.Logger
	store    *blobstore.Store
	registry *prometheus.Registry
	dirty    bool
}

func (sh *shell) run(ctx context.Context, lines lineReader) error {
	sh.o.Printf("blobcache shell on %s (%d entries)\n", sh.store.Dir(), sh.store.Len())
	sh.o.Println("Type 'help' for available commands.")

	for ctx.Err() == nil {
		line, err := lines.Prompt(shellPrompt)
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}

		lines.AppendHistory(strings.TrimSpace(line))

		if !sh.exec(strings.ToLower(parts[0]), parts[1:], line) {
			break
		}
	}

	if sh.dirty {
		sh.o.Warn("shell closed with unsaved changes", "run 'save' before quitting to persist them")
	}

	sh.o.Println("bye")

	return nil
}

// exec runs one shell command. line is the raw input, for commands whose
// last argument is free text. Returns false when the shell should exit.
func (sh *shell) exec(cmd string, args []string, line string) bool {
	switch cmd {
	case "exit", "quit", "q":
		return false
	case "help", "?":
		sh.printHelp()
	case "put":
		sh.cmdPut(args, line)
	case "get":
		sh.cmdGet(args)
	case "has":
		sh.cmdHas(args)
	case "del", "delete":
		sh.cmdDelete(args)
	case "ls", "list":
		sh.cmdList()
	case "len":
		sh.o.Println(sh.store.Len())
	case "save":
		sh.cmdSave()
	case "stats":
		sh.cmdStats()
	case "fingerprint", "fp":
		sh.cmdFingerprint(args, line)
	default:
		sh.o.Printf("unknown command: %s (type 'help' for commands)\n", cmd)
	}

	return true
}

func (sh *shell) printHelp() {
	sh.o.Println("Commands:")
	sh.o.Println("  put <key> <token> <payload...>   Store payload (rest of line) in memory")
	sh.o.Println("  get <key> <token>                Print payload or (miss)")
	sh.o.Println("  has <key> <token>                Print true or false")
	sh.o.Println("  del <key>...                     Delete keys")
	sh.o.Println("  ls                               List entries with their tier")
	sh.o.Println("  len                              Count entries")
	sh.o.Println("  save                             Persist the cache")
	sh.o.Println("  stats                            Show lookup, load and save counters")
	sh.o.Println("  fingerprint <text...>            Print the token for text (rest of line)")
	sh.o.Println("  help                             Show this help")
	sh.o.Println("  exit / quit / q                  Exit")
}

func (sh *shell) cmdPut(args []string, line string) {
	if len(args) < 2 {
		sh.o.Println("usage: put <key> <token> <payload...>")

		return
	}

	payload := restAfterFields(line, 3)
	sh.store.Set(args[0], args[1], []byte(payload))
	sh.dirty = true

	sh.o.Printf("ok (%d bytes)\n", len(payload))
}

func (sh *shell) cmdFingerprint(args []string, line string) {
	if len(args) == 0 {
		sh.o.Println("usage: fingerprint <text...>")

		return
	}

	sh.o.Println(blobstore.FingerprintString(restAfterFields(line, 1)))
}

// restAfterFields returns what follows the first n whitespace separated
// fields of line and the one separator after them. Spacing inside and at
// the end of the rest is kept.
func restAfterFields(line string, n int) string {
	rest := line

	for range n {
		rest = strings.TrimLeftFunc(rest, unicode.IsSpace)

		end := strings.IndexFunc(rest, unicode.IsSpace)
		if end < 0 {
			return ""
		}

		rest = rest[end:]
	}

	_, size := utf8.DecodeRuneInString(rest)

	return rest[size:]
}

func (sh *shell) cmdGet(args []string) {
	if len(args) != 2 {
		sh.o.Println("usage: get <key> <token>")

		return
	}

	payload, ok := sh.store.Get(args[0], args[1])
	if !ok {
		sh.o.Println("(miss)")

		return
	}

	sh.o.Printf("%s\n", payload)
}

func (sh *shell) cmdHas(args []string) {
	if len(args) != 2 {
		sh.o.Println("usage: has <key> <token>")

		return
	}

	sh.o.Println(sh.store.Has(args[0], args[1]))
}

func (sh *shell) cmdDelete(args []string) {
	if len(args) == 0 {
		sh.o.Println("usage: del <key>...")

		return
	}

	for _, key := range args {
		sh.store.Delete(key)
	}

	sh.dirty = true

	sh.o.Println("ok")
}

func (sh *shell) cmdList() {
	entries := sh.store.Entries()
	for _, e := range entries {
		sh.o.Printf("%s\t%s\t%d\t%s\n", e.Key, e.Token, e.Size, e.Tier)
	}

	sh.o.Printf("(%d entries)\n", len(entries))
}

func (sh *shell) cmdSave() {
	saved, err := sh.store.TrySave()
	sh.log.Debug("shell save", slog.Bool("saved", saved), slog.Any("err", err))

	switch {
	case err != nil:
		sh.o.Println("error:", err)
	case !saved:
		sh.o.Println("skipped: cache locked by another writer")
	default:
		sh.dirty = false

		sh.o.Println("saved")
	}
}

func (sh *shell) cmdStats() {
	families, err := sh.registry.Gather()
	if err != nil {
		sh.o.Println("error:", err)

		return
	}

	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			name := mf.GetName()

			labels := make([]string, 0, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}

			if len(labels) > 0 {
				name += "{" + strings.Join(labels, ",") + "}"
			}

			value := m.GetCounter().GetValue()
			if g := m.GetGauge(); g != nil {
				value = g.GetValue()
			}

			sh.o.Printf("%s %g\n", name, value)
		}
	}
}

// completeShell provides tab completion for commands.
func completeShell(line string) []string {
	var completions []string

	lower := strings.ToLower(line)
	for _, cmd := range shellCommands {
		if strings.HasPrefix(cmd, lower) {
			completions = append(completions, cmd)
		}
	}

	return completions
}

func readHistory(line *liner.State, path string) {
	if path == "" {
		return
	}

	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	_, _ = line.ReadHistory(f)
}

func writeHistory(line *liner.State, path string) {
	if path == "" {
		return
	}

	f, err := os.Create(path)
	if err != nil {
		return
	}
	defer f.Close()

	_, _ = line.WriteHistory(f)
}

// scannerLines reads shell input from a non-terminal reader.
type scannerLines struct {
	sc *bufio.Scanner
}

func (s *scannerLines) Prompt(string) (string, error) {
	if s.sc.Scan() {
		return s.sc.Text(), nil
	}

	if err := s.sc.Err(); err != nil {
		return "", err
	}

	return "", io.EOF
}

func (*scannerLines) AppendHistory(string) {}
