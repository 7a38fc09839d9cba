package mailferry

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Prompter is the human-approval checkpoint consulted once per run,
// before any mutating call.
type Prompter interface {
	Confirm(prompt string) (bool, error)
}

// TerminalPrompter asks on the terminal. Only an exact affirmative
// answer proceeds; everything else, including EOF, means no.
type TerminalPrompter struct {
	In  io.Reader
	Out io.Writer
}

func NewTerminalPrompter() *TerminalPrompter {
	return &TerminalPrompter{In: os.Stdin, Out: os.Stdout}
}

func (p *TerminalPrompter) Confirm(prompt string) (bool, error) {
	fmt.Fprintf(p.Out, "%s [y/N]: ", prompt)
	line, err := bufio.NewReader(p.In).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// AutoApprove answers yes without asking. Installed by --yes.
type AutoApprove struct{}

func (AutoApprove) Confirm(string) (bool, error) { return true, nil }
