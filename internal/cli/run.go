package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	flag "github.com/spf13/pflag"
)

// Run is the main entry point. Returns exit code.
//
// env is the process environment; variables from .env in the working
// directory fill in names env does not set. A signal on sigCh cancels the
// running command. sigCh may be nil.
func Run(in io.Reader, out io.Writer, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	globals := flag.NewFlagSet("spot", flag.ContinueOnError)
	globals.SetInterspersed(false)
	globals.SetOutput(io.Discard)

	workDir := globals.StringP("cwd", "C", "", "Run as if started in `dir`")
	configPath := globals.StringP("config", "c", "", "Use specified config `file`")
	storeDir := globals.String("store-dir", "", "Override the store `dir`")
	token := globals.String("token", "", "Admin `token` (default $"+EnvToken+")")
	help := globals.BoolP("help", "h", false, "Show help")

	if len(args) > 0 {
		args = args[1:]
	}

	err := globals.Parse(args)
	if err != nil {
		fprintln(errOut, "error:", err)
		printUsage(errOut, globals)

		return 1
	}

	rest := globals.Args()

	if *help || len(rest) == 0 {
		printUsage(out, globals)

		return 0
	}

	wd, err := resolveWorkDir(*workDir)
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	env, dotEnvPath, err := loadDotEnv(wd, env)
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	cfg, err := LoadConfig(LoadConfigInput{
		WorkDir:          wd,
		ConfigPath:       *configPath,
		StoreDirOverride: *storeDir,
		Env:              env,
	})
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	cfg.Sources.DotEnv = dotEnvPath

	if *token == "" {
		*token = env[EnvToken]
	}

	s, err := newSession(cfg, env, *token)
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if sigCh != nil {
		go func() {
			select {
			case <-sigCh:
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	cmd := findCommand(commands(s, in, out, errOut), rest[0])
	if cmd == nil {
		fprintln(errOut, "error: unknown command:", rest[0])
		printUsage(errOut, globals)

		return 1
	}

	return runCommand(ctx, s, cmd, NewIO(out, errOut), rest[1:])
}

// runCommand runs cmd with o as the session IO and folds warnings and the
// ledger close into the exit code. The ledger is closed only if cmd is not
// part of a longer-lived shell.
func runCommand(ctx context.Context, s *session, cmd *Command, o *IO, args []string) int {
	s.io = o
	defer func() { s.io = nil }()

	code := cmd.Run(ctx, o, args)

	if !s.shell {
		closeErr := s.close()
		if closeErr != nil {
			o.ErrPrintln("error:", closeErr)

			code = 1
		}
	}

	return max(code, o.Finish())
}

func resolveWorkDir(dir string) (string, error) {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("cannot get working directory: %w", err)
		}

		return wd, nil
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", dir, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("working directory: %w", err)
	}

	if !info.IsDir() {
		return "", fmt.Errorf("working directory: %s: %w", abs, errNotDir)
	}

	return abs, nil
}

var errNotDir = errors.New("not a directory")

// commands returns fresh command instances. pflag keeps parsed values in the
// FlagSet, so the shell builds a new set for every line.
func commands(s *session, in io.Reader, out, errOut io.Writer) []*Command {
	return []*Command{
		lsCmd(s),
		showCmd(s),
		bookCmd(s),
		quickCmd(s),
		editCmd(s),
		releaseCmd(s),
		logCmd(s),
		statsCmd(s),
		recoverCmd(s),
		hashTokenCmd(s),
		printConfigCmd(s),
		shellCmd(s, in, out, errOut),
	}
}

func findCommand(cmds []*Command, name string) *Command {
	for _, c := range cmds {
		if c.Name() == name {
			return c
		}
	}

	return nil
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}

func printUsage(w io.Writer, globals *flag.FlagSet) {
	fprintln(w, `spot - parking spot reservation ledger

Usage: spot [options] <command> [args]

Options:`)
	fprintln(w, globals.FlagUsages())
	fprintln(w, "Commands:")

	for _, c := range commands(nil, nil, nil, nil) {
		fprintln(w, c.HelpLine())
	}
}
