package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/kimhsiao/hostelhub/client/internal/push"
)

// prompter asks questions on the terminal. When stdin is not a terminal the
// answers are read line by line, which lets scripts and tests pipe them in.
type prompter struct {
	r   *bufio.Reader
	out io.Writer
	fd  int
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	p := &prompter{r: bufio.NewReader(in), out: out, fd: -1}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.fd = int(f.Fd())
	}
	return p
}

func (p *prompter) line(label string) (string, error) {
	fmt.Fprint(p.out, label)
	s, err := p.r.ReadString('\n')
	if err != nil && (err != io.EOF || s == "") {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(s), nil
}

func (p *prompter) password(label string) (string, error) {
	if p.fd < 0 {
		return p.line(label)
	}
	fmt.Fprint(p.out, label)
	b, err := term.ReadPassword(p.fd)
	fmt.Fprintln(p.out) // Newline after password input
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(b), nil
}

// Prompt implements push.PermissionPrompter.
func (p *prompter) Prompt(ctx context.Context) (push.Permission, error) {
	answer, err := p.line("Allow HostelHub to show notifications? [y/N] ")
	if err != nil {
		return push.PermissionDefault, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return push.PermissionGranted, nil
	default:
		return push.PermissionDenied, nil
	}
}
