package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	flag "github.com/spf13/pflag"
)

// Command is one spot subcommand: its flags, help text and handler.
type Command struct {
	// Flags are parsed before Exec. The FlagSet name is ignored; Usage
	// names the command.
	Flags *flag.FlagSet

	// Usage is the freeform usage string shown after "spot" in help.
	// Examples: "show <spot>", "book <spot> -n <name> [-d <date>]"
	Usage string

	// Short is a one-line description for the global help listing.
	Short string

	// Long is shown by "spot <cmd> --help", falling back to Short.
	Long string

	// Exec receives the positional args left after flag parsing.
	Exec func(ctx context.Context, o *IO, args []string) error
}

// Name returns the command name (first word of Usage).
func (c *Command) Name() string {
	name, _, _ := strings.Cut(c.Usage, " ")

	return name
}

// HelpLine returns the short help line for the main usage display.
func (c *Command) HelpLine() string {
	return fmt.Sprintf("  %-30s %s", c.Usage, c.Short)
}

// PrintHelp prints the full help output for "spot <cmd> --help".
func (c *Command) PrintHelp(o *IO) {
	o.Println("Usage: spot", c.Usage)
	o.Println()

	desc := c.Long
	if desc == "" {
		desc = c.Short
	}

	o.Println(desc)

	if c.Flags != nil && c.Flags.HasFlags() {
		o.Println()
		o.Println("Flags:")

		var buf strings.Builder
		c.Flags.SetOutput(&buf)
		c.Flags.PrintDefaults()
		o.Printf("%s", buf.String())
	}
}

// Run parses args, runs Exec and returns the exit code. Errors are printed
// here so they land after any warnings.
func (c *Command) Run(ctx context.Context, o *IO, args []string) int {
	c.Flags.SetOutput(&strings.Builder{}) // discard pflag output

	err := c.Flags.Parse(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			c.PrintHelp(o)

			return 0
		}

		o.ErrPrintln("error:", err)
		o.ErrPrintln()
		c.PrintHelp(o)

		return 1
	}

	if err := c.Exec(ctx, o, c.Flags.Args()); err != nil {
		o.ErrPrintln("error:", err)

		return 1
	}

	return 0
}
