package cli

import (
	"fmt"
	"io"
)

// IO is the output side of one blobcache command.
//
// Payloads and listings go to stdout. Warnings are for results that are
// usable but incomplete, like a put whose save was skipped because another
// writer holds LOCK, or a shell closed with unsaved changes.
type IO struct {
	out      io.Writer
	errOut   io.Writer
	warnings []string
	started  bool
}

// NewIO writes command output to out and warnings and errors to errOut.
func NewIO(out, errOut io.Writer) *IO {
	return &IO{out: out, errOut: errOut}
}

// Warn records issue and the action that resolves it.
//
// Pending warnings go to stderr before the first stdout write and again
// from [IO.Finish], so piping "blobcache get" through head or tail keeps
// one copy visible. Any warning turns the exit code into 1.
func (o *IO) Warn(issue string, action string) {
	o.warnings = append(o.warnings, fmt.Sprintf("%s: %s", issue, action))
}

// Println writes a line to stdout.
func (o *IO) Println(a ...any) {
	o.flushWarningsStart()
	_, _ = fmt.Fprintln(o.out, a...)
}

// Printf writes to stdout.
func (o *IO) Printf(format string, a ...any) {
	o.flushWarningsStart()
	_, _ = fmt.Fprintf(o.out, format, a...)
}

// Write copies a payload to stdout unchanged, without a trailing newline.
func (o *IO) Write(p []byte) (int, error) {
	o.flushWarningsStart()

	return o.out.Write(p)
}

// ErrPrintln writes to stderr, bypassing the warning list.
func (o *IO) ErrPrintln(a ...any) {
	_, _ = fmt.Fprintln(o.errOut, a...)
}

// Finish repeats the warnings after the command's output and returns the
// exit code: 1 if anything was warned about, 0 otherwise.
func (o *IO) Finish() int {
	// A command that printed nothing still reports its warnings once up front.
	o.flushWarningsStart()

	if len(o.warnings) == 0 {
		return 0
	}

	o.printWarnings()

	return 1
}

func (o *IO) flushWarningsStart() {
	if o.started || len(o.warnings) == 0 {
		return
	}

	o.printWarnings()
	o.started = true
}

func (o *IO) printWarnings() {
	for _, w := range o.warnings {
		_, _ = fmt.Fprintln(o.errOut, "warning:", w)
	}
}
