package cli

import "errors"

// Errors returned by the CLI layer.
var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrConfigFileRead     = errors.New("cannot read config file")
	ErrConfigInvalid      = errors.New("invalid config file")
	ErrStoreDirEmpty      = errors.New("store_dir cannot be empty")
	ErrCatalogConflict    = errors.New("spots and catalog_file are mutually exclusive")
	ErrEnvFileInvalid     = errors.New("invalid .env file")

	ErrSpotRequired    = errors.New("spot ID is required")
	ErrTokenRequired   = errors.New("token is required")
	ErrTooManyArgs     = errors.New("too many arguments")
	ErrNothingToChange = errors.New("nothing to change: pass --name and/or --date")

	errConflictingFlags = errors.New("conflicting flags")
)
