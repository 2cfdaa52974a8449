package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	flag "github.com/spf13/pflag"
)

// prompter reads one line of input. *liner.State satisfies it.
type prompter interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
	Close() error
}

// scanPrompter reads lines from a non-terminal input, such as a pipe or a
// test reader. It prints no prompt.
type scanPrompter struct {
	sc *bufio.Scanner
}

func (p *scanPrompter) Prompt(string) (string, error) {
	if p.sc.Scan() {
		return p.sc.Text(), nil
	}

	if err := p.sc.Err(); err != nil {
		return "", err
	}

	return "", io.EOF
}

func (p *scanPrompter) AppendHistory(string) {}

func (p *scanPrompter) Close() error { return nil }

// shellCmd returns the shell command.
func shellCmd(s *session, in io.Reader, out, errOut io.Writer) *Command {
	return &Command{
		Flags: flag.NewFlagSet("shell", flag.ContinueOnError),
		Usage: "shell",
		Short: "Interactive prompt running the commands above",
		Long: `Start an interactive prompt. Each line is a command as it would follow
"spot" on the command line. The store stays locked until the shell exits.

Type "help" for commands and "exit" to leave.`,
		Exec: func(ctx context.Context, _ *IO, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("%w: %s", ErrTooManyArgs, args[0])
			}

			if s.shell {
				return errors.New("already in a shell")
			}

			return execShell(ctx, s, in, out, errOut)
		},
	}
}

func execShell(ctx context.Context, s *session, in io.Reader, out, errOut io.Writer) error {
	s.shell = true

	defer func() { s.shell = false }()

	p, history := newPrompter(s, in)

	defer func() { _ = p.Close() }()

	// Open up front so a locked store fails before the first prompt.
	if _, err := s.open(); err != nil {
		return err
	}

	outer := s.io

	defer func() { s.io = outer }()

	for ctx.Err() == nil {
		line, err := p.Prompt("spot> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		p.AppendHistory(line)

		words, err := splitWords(line)
		if err != nil {
			fprintln(errOut, "error:", err)

			continue
		}

		switch words[0] {
		case "exit", "quit", "q":
			saveHistory(p, history)

			return nil
		case "help", "?":
			for _, c := range commands(s, nil, nil, nil) {
				fprintln(out, c.HelpLine())
			}

			continue
		}

		cmd := findCommand(commands(s, nil, out, errOut), words[0])
		if cmd == nil {
			fprintln(errOut, "error: unknown command:", words[0])

			continue
		}

		runCommand(ctx, s, cmd, NewIO(out, errOut), words[1:])
	}

	saveHistory(p, history)

	return nil
}

// newPrompter uses liner when in is the process's terminal stdin.
func newPrompter(s *session, in io.Reader) (prompter, string) {
	if f, ok := in.(*os.File); !ok || f != os.Stdin || !liner.TerminalSupported() {
		if in == nil {
			in = strings.NewReader("")
		}

		return &scanPrompter{sc: bufio.NewScanner(in)}, ""
	}

	state := liner.NewLiner()
	state.SetCtrlCAborts(true)
	state.SetCompleter(func(line string) []string {
		var out []string

		for _, c := range commands(s, nil, nil, nil) {
			if strings.HasPrefix(c.Name(), line) && c.Name() != "shell" {
				out = append(out, c.Name())
			}
		}

		return out
	})

	history := historyFile(s.env)

	if f, err := os.Open(history); err == nil {
		_, _ = state.ReadHistory(f)
		_ = f.Close()
	}

	return state, history
}

func historyFile(env map[string]string) string {
	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".spot_history")
	}

	return ""
}

func saveHistory(p prompter, path string) {
	state, ok := p.(*liner.State)
	if !ok || path == "" {
		return
	}

	if f, err := os.Create(path); err == nil {
		_, _ = state.WriteHistory(f)
		_ = f.Close()
	}
}

var errUnterminatedQuote = errors.New("unterminated quote")

// splitWords splits a shell line into words. Single and double quotes group
// words; a backslash outside single quotes escapes the next character.
func splitWords(line string) ([]string, error) {
	var (
		words   []string
		cur     strings.Builder
		inWord  bool
		quote   rune
		escaped bool
	)

	for _, r := range line {
		switch {
		case escaped:
			cur.WriteRune(r)

			escaped = false
		case r == '\\' && quote != '\'':
			escaped, inWord = true, true
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote, inWord = r, true
		case r == ' ' || r == '\t':
			if inWord {
				words = append(words, cur.String())
				cur.Reset()

				inWord = false
			}
		default:
			cur.WriteRune(r)

			inWord = true
		}
	}

	if quote != 0 || escaped {
		return nil, errUnterminatedQuote
	}

	if inWord {
		words = append(words, cur.String())
	}

	return words, nil
}
