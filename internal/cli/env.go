package cli

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// DotEnvFileName is read from the working directory if present.
const DotEnvFileName = ".env"

// loadDotEnv returns env overlaid onto the variables in workDir/.env.
// Variables already present in env win. The returned path is empty when no
// .env file exists.
func loadDotEnv(workDir string, env map[string]string) (map[string]string, string, error) {
	path := filepath.Join(workDir, DotEnvFileName)

	fileEnv, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return env, "", nil
		}

		return nil, "", fmt.Errorf("%w %s: %w", ErrEnvFileInvalid, path, err)
	}

	merged := make(map[string]string, len(env)+len(fileEnv))
	maps.Copy(merged, fileEnv)
	maps.Copy(merged, env)

	return merged, path, nil
}
