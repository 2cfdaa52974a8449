package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tailscale/hujson"

	"github.com/calvinalkan/spotledger/pkg/ledger"
)

// Config holds all configuration options.
type Config struct {
	// From config files (serialized)
	StoreDir          string   `json:"store_dir"`
	Spots             []string `json:"spots,omitempty"`
	CatalogFile       string   `json:"catalog_file,omitempty"`
	BackupKeep        int      `json:"backup_keep,omitempty"`
	MaxCommitFailures int      `json:"max_commit_failures,omitempty"`
	LockTimeout       string   `json:"lock_timeout,omitempty"`
	AdminTokenHash    string   `json:"admin_token_hash,omitempty"`

	// Resolved values (computed, not serialized)
	EffectiveCwd    string        `json:"-"`
	StoreDirAbs     string        `json:"-"`
	CatalogFileAbs  string        `json:"-"`
	LockTimeoutDur  time.Duration `json:"-"`
	StoreDirFromEnv bool          `json:"-"`

	// Sources tracks which config files were loaded (for diagnostics)
	Sources ConfigSources `json:"-"`
}

// ConfigSources tracks which config files were loaded.
type ConfigSources struct {
	Global  string // Path to global config if loaded, empty otherwise
	Project string // Path to project config if loaded, empty otherwise
	DotEnv  string // Path to .env if loaded, empty otherwise
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		StoreDir: ".spots",
	}
}

// ConfigFileName is the default project config file name.
const ConfigFileName = ".spot.json"

// Environment variables read by the CLI.
const (
	EnvToken    = "SPOT_TOKEN"
	EnvStoreDir = "SPOT_STORE_DIR"
)

// getGlobalConfigPath returns the path to the global config file.
// Uses $XDG_CONFIG_HOME/spot/config.json if set, otherwise ~/.config/spot/config.json.
func getGlobalConfigPath(env map[string]string) string {
	if xdgConfig := env["XDG_CONFIG_HOME"]; xdgConfig != "" {
		return filepath.Join(xdgConfig, "spot", "config.json")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "spot", "config.json")
	}

	return ""
}

// LoadConfigInput holds the inputs for LoadConfig.
type LoadConfigInput struct {
	WorkDir          string            // absolute working directory
	ConfigPath       string            // -c/--config flag value
	StoreDirOverride string            // --store-dir flag value; empty means no override
	Env              map[string]string // environment, already merged with .env
}

// LoadConfig loads configuration with the following precedence (highest wins):
// 1. Defaults
// 2. Global user config ($XDG_CONFIG_HOME/spot/config.json)
// 3. Project config (.spot.json) or the explicit -c file
// 4. SPOT_STORE_DIR
// 5. --store-dir.
func LoadConfig(input LoadConfigInput) (Config, error) {
	cfg := DefaultConfig()

	if path := getGlobalConfigPath(input.Env); path != "" {
		globalCfg, loaded, err := loadConfigFile(path, false)
		if err != nil {
			return Config{}, err
		}

		if loaded {
			cfg.Sources.Global = path
			cfg = mergeConfig(cfg, globalCfg)
		}
	}

	projectPath, mustExist := filepath.Join(input.WorkDir, ConfigFileName), false

	if input.ConfigPath != "" {
		projectPath, mustExist = input.ConfigPath, true
		if !filepath.IsAbs(projectPath) {
			projectPath = filepath.Join(input.WorkDir, projectPath)
		}
	}

	projectCfg, loaded, err := loadConfigFile(projectPath, mustExist)
	if err != nil {
		return Config{}, err
	}

	if loaded {
		cfg.Sources.Project = projectPath
		cfg = mergeConfig(cfg, projectCfg)
	}

	if dir := input.Env[EnvStoreDir]; dir != "" {
		cfg.StoreDir = dir
		cfg.StoreDirFromEnv = true
	}

	if input.StoreDirOverride != "" {
		cfg.StoreDir = input.StoreDirOverride
		cfg.StoreDirFromEnv = false
	}

	err = validateConfig(&cfg)
	if err != nil {
		return Config{}, err
	}

	cfg.EffectiveCwd = input.WorkDir
	cfg.StoreDirAbs = absFrom(input.WorkDir, cfg.StoreDir)

	if cfg.CatalogFile != "" {
		cfg.CatalogFileAbs = absFrom(input.WorkDir, cfg.CatalogFile)
	}

	return cfg, nil
}

// loadConfigFile loads a JSONC config file. If mustExist is false, a missing
// file returns loaded=false.
func loadConfigFile(path string, mustExist bool) (Config, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if mustExist {
				return Config{}, false, fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
			}

			return Config{}, false, nil
		}

		return Config{}, false, fmt.Errorf("%w: %s: %w", ErrConfigFileRead, path, err)
	}

	cfg, err := parseConfig(data)
	if err != nil {
		return Config{}, false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
	}

	return cfg, true, nil
}

func parseConfig(data []byte) (Config, error) {
	// Standardize JSONC to JSON
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var cfg Config

	err = json.Unmarshal(standardized, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", err)
	}

	// An explicit "store_dir": "" is an error, not "use the default".
	var raw map[string]json.RawMessage

	_ = json.Unmarshal(standardized, &raw)

	if val, ok := raw["store_dir"]; ok && string(val) == `""` {
		return Config{}, ErrStoreDirEmpty
	}

	if len(cfg.Spots) > 0 && cfg.CatalogFile != "" {
		return Config{}, ErrCatalogConflict
	}

	return cfg, nil
}

func mergeConfig(base, overlay Config) Config {
	if overlay.StoreDir != "" {
		base.StoreDir = overlay.StoreDir
	}

	// A catalog from a closer layer replaces the one from a farther layer,
	// whichever form either uses.
	if len(overlay.Spots) > 0 {
		base.Spots = overlay.Spots
		base.CatalogFile = ""
	}

	if overlay.CatalogFile != "" {
		base.CatalogFile = overlay.CatalogFile
		base.Spots = nil
	}

	if overlay.BackupKeep != 0 {
		base.BackupKeep = overlay.BackupKeep
	}

	if overlay.MaxCommitFailures != 0 {
		base.MaxCommitFailures = overlay.MaxCommitFailures
	}

	if overlay.LockTimeout != "" {
		base.LockTimeout = overlay.LockTimeout
	}

	if overlay.AdminTokenHash != "" {
		base.AdminTokenHash = overlay.AdminTokenHash
	}

	return base
}

func validateConfig(cfg *Config) error {
	if cfg.StoreDir == "" {
		return ErrStoreDirEmpty
	}

	if cfg.MaxCommitFailures < 0 {
		return fmt.Errorf("%w: max_commit_failures must be >= 0, got %d", ErrConfigInvalid, cfg.MaxCommitFailures)
	}

	if cfg.LockTimeout != "" {
		d, err := time.ParseDuration(cfg.LockTimeout)
		if err != nil {
			return fmt.Errorf("%w: lock_timeout: %w", ErrConfigInvalid, err)
		}

		if d <= 0 {
			return fmt.Errorf("%w: lock_timeout must be positive, got %s", ErrConfigInvalid, cfg.LockTimeout)
		}

		cfg.LockTimeoutDur = d
	}

	return nil
}

// Catalog builds the spot catalog the config describes: the YAML catalog
// file, the inline spots list, or the default catalog, in that order.
func (c Config) Catalog() (*ledger.Catalog, error) {
	switch {
	case c.CatalogFileAbs != "":
		f, err := os.Open(c.CatalogFileAbs)
		if err != nil {
			return nil, fmt.Errorf("open catalog: %w", err)
		}
		defer f.Close()

		catalog, err := ledger.LoadCatalogYAML(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.CatalogFileAbs, err)
		}

		return catalog, nil
	case len(c.Spots) > 0:
		return ledger.NewCatalog(c.Spots...)
	default:
		return ledger.DefaultCatalog(), nil
	}
}

func absFrom(workDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}

	return filepath.Join(workDir, path)
}
