package cli

import (
	"context"
	"strconv"
	"strings"

	flag "github.com/spf13/pflag"
)

// printConfigCmd returns the print-config command.
func printConfigCmd(s *session) *Command {
	return &Command{
		Flags: flag.NewFlagSet("print-config", flag.ContinueOnError),
		Usage: "print-config",
		Short: "Show resolved configuration",
		Long:  "Display the effective configuration and which files it was loaded from.",
		Exec: func(_ context.Context, io *IO, _ []string) error {
			return execPrintConfig(io, s.cfg)
		},
	}
}

func execPrintConfig(io *IO, cfg Config) error {
	io.Println("effective_cwd=" + cfg.EffectiveCwd)
	io.Println("store_dir=" + cfg.StoreDirAbs)

	switch {
	case cfg.CatalogFileAbs != "":
		io.Println("catalog_file=" + cfg.CatalogFileAbs)
	case len(cfg.Spots) > 0:
		io.Println("spots=" + strings.Join(cfg.Spots, ","))
	default:
		io.Println("spots=(default)")
	}

	if cfg.BackupKeep != 0 {
		io.Println("backup_keep=" + strconv.Itoa(cfg.BackupKeep))
	}

	if cfg.MaxCommitFailures != 0 {
		io.Println("max_commit_failures=" + strconv.Itoa(cfg.MaxCommitFailures))
	}

	if cfg.LockTimeout != "" {
		io.Println("lock_timeout=" + cfg.LockTimeoutDur.String())
	}

	// Never print the hash itself.
	io.Println("admin_token=" + strconv.FormatBool(cfg.AdminTokenHash != ""))

	io.Println("")
	io.Println("# sources")

	if cfg.Sources.Global == "" && cfg.Sources.Project == "" && cfg.Sources.DotEnv == "" && !cfg.StoreDirFromEnv {
		io.Println("(defaults only)")

		return nil
	}

	if cfg.Sources.Global != "" {
		io.Println("global_config=" + cfg.Sources.Global)
	}

	if cfg.Sources.Project != "" {
		io.Println("project_config=" + cfg.Sources.Project)
	}

	if cfg.Sources.DotEnv != "" {
		io.Println("dotenv=" + cfg.Sources.DotEnv)
	}

	if cfg.StoreDirFromEnv {
		io.Println("store_dir_from=$" + EnvStoreDir)
	}

	return nil
}
