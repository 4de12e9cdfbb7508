package chat

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"

	"visionchat/internal/logging"
)

// ErrInterrupted is returned by a LineReader when the user presses Ctrl-C.
var ErrInterrupted = errors.New("interrupted")

// LineReader shows a prompt and reads one line without its newline. It
// returns io.EOF at end of input.
type LineReader interface {
	ReadLine(prompt string) (string, error)
	Close() error
}

// ScannerReader reads lines from a plain stream, echoing prompts to out.
type ScannerReader struct {
	sc  *bufio.Scanner
	out io.Writer
}

// NewScannerReader reads from in and writes prompts to out.
func NewScannerReader(in io.Reader, out io.Writer) *ScannerReader {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	return &ScannerReader{sc: sc, out: out}
}

func (r *ScannerReader) ReadLine(prompt string) (string, error) {
	if prompt != "" {
		fmt.Fprint(r.out, prompt)
	}
	if !r.sc.Scan() {
		if err := r.sc.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimRight(r.sc.Text(), "\r"), nil
}

func (r *ScannerReader) Close() error { return nil }

// TerminalReader reads with line editing and history.
type TerminalReader struct {
	rl *readline.Instance
}

// NewTerminalReader opens a readline instance on the process terminal.
func NewTerminalReader(historyFile string) (*TerminalReader, error) {
	rl, err := readline.NewEx(&readline.Config{
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "",
	})
	if err != nil {
		return nil, err
	}
	return &TerminalReader{rl: rl}, nil
}

func (r *TerminalReader) ReadLine(prompt string) (string, error) {
	r.rl.SetPrompt(prompt)
	line, err := r.rl.Readline()
	if errors.Is(err, readline.ErrInterrupt) {
		return "", ErrInterrupted
	}
	return line, err
}

func (r *TerminalReader) Close() error { return r.rl.Close() }

// NewLineReader uses readline when stdin is a terminal and a line scanner
// otherwise, so scripted input works the same as typed input.
func NewLineReader(in *os.File, out io.Writer, historyFile string) (LineReader, error) {
	if logging.IsTerminal(in) && logging.IsTerminal(out) {
		return NewTerminalReader(historyFile)
	}
	return NewScannerReader(in, out), nil
}
