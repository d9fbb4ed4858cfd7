package driver

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/term"
)

const continuePrompt = "Collect containers and continue? [Y/n] "

// Prompter asks the operator whether to run another collection.
// Continue returns ctx.Err() once ctx is cancelled, even while waiting for input.
type Prompter interface {
	Continue(ctx context.Context) (bool, error)
}

// decide maps the operator's answer: n or N stops, anything else continues.
func decide(r rune) bool {
	return unicode.ToLower(r) != 'n'
}

// lineResult is one line read from the operator, or the error that ended input.
type lineResult struct {
	line string
	err  error
}

// ReaderPrompter reads one answer per line.
//
// Lines are read by a single background goroutine started on the first call,
// so a prompt abandoned on cancellation does not lose the next answer.
type ReaderPrompter struct {
	in    *bufio.Reader
	out   io.Writer
	once  sync.Once
	lines chan lineResult
	done  error // sticky end of input
}

// NewReaderPrompter prompts on out and reads answers from in.
func NewReaderPrompter(in io.Reader, out io.Writer) *ReaderPrompter {
	return &ReaderPrompter{
		in:    bufio.NewReader(in),
		out:   out,
		lines: make(chan lineResult, 1),
	}
}

func (p *ReaderPrompter) readLines() {
	for {
		line, err := p.in.ReadString('\n')
		p.lines <- lineResult{line: line, err: err}
		if err != nil {
			return
		}
	}
}

// Continue reads a line; its first non-blank character decides.
// An empty line continues. End of input is returned as io.EOF.
func (p *ReaderPrompter) Continue(ctx context.Context) (bool, error) {
	if p.done != nil {
		return false, p.done
	}
	fmt.Fprint(p.out, continuePrompt)
	p.once.Do(func() { go p.readLines() })

	var r lineResult
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case r = <-p.lines:
	}
	if r.err != nil {
		p.done = r.err
		if r.err != io.EOF || r.line == "" {
			return false, r.err
		}
	}
	answer := strings.TrimSpace(r.line)
	if answer == "" {
		return true, nil
	}
	return decide([]rune(answer)[0]), nil
}

// keyResult is one byte read from the terminal.
type keyResult struct {
	key byte
	err error
}

// TerminalPrompter reads a single key press without waiting for Enter.
type TerminalPrompter struct {
	in       *os.File
	out      io.Writer
	fallback *ReaderPrompter // used when raw mode is unavailable
	pending  chan keyResult  // read still in flight from a cancelled prompt
}

// NewPrompter returns a TerminalPrompter when in is a terminal and a
// ReaderPrompter otherwise (pipes, files, CI).
func NewPrompter(in *os.File, out io.Writer) Prompter {
	if term.IsTerminal(int(in.Fd())) {
		return newTerminalPrompter(in, out)
	}
	return NewReaderPrompter(in, out)
}

func newTerminalPrompter(in *os.File, out io.Writer) *TerminalPrompter {
	return &TerminalPrompter{in: in, out: out, fallback: NewReaderPrompter(in, out)}
}

// Continue switches the terminal to raw mode for one key press.
// Ctrl-C stops with context.Canceled since raw mode swallows the signal.
func (p *TerminalPrompter) Continue(ctx context.Context) (bool, error) {
	fd := int(p.in.Fd())
	state, err := term.MakeRaw(fd)
	if err != nil {
		return p.fallback.Continue(ctx)
	}
	defer term.Restore(fd, state)

	fmt.Fprint(p.out, continuePrompt)
	if p.pending == nil {
		p.pending = make(chan keyResult, 1)
		go func(keys chan<- keyResult) {
			var key [1]byte
			_, err := p.in.Read(key[:])
			keys <- keyResult{key: key[0], err: err}
		}(p.pending)
	}

	var r keyResult
	select {
	case <-ctx.Done():
		fmt.Fprint(p.out, "\r\n")
		return false, ctx.Err()
	case r = <-p.pending:
		p.pending = nil
	}
	fmt.Fprint(p.out, "\r\n")
	if r.err != nil {
		return false, r.err
	}
	if r.key == 0x03 {
		return false, context.Canceled
	}
	return decide(rune(r.key)), nil
}
