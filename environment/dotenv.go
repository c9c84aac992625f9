package environment

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/joho/godotenv"
)

// DotenvFiles returns the dotenv files consulted for appEnv, highest
// precedence first, following the dotenv-rails hierarchy. .env.local is
// skipped in the test environment so test runs stay reproducible.
func DotenvFiles(appEnv string) []string {
	var files []string
	if appEnv != "" {
		files = append(files, ".env."+appEnv+".local")
	}
	if appEnv != "test" {
		files = append(files, ".env.local")
	}
	if appEnv != "" {
		files = append(files, ".env."+appEnv)
	}
	return append(files, ".env")
}

// LoadDotenv loads the dotenv hierarchy from dir into the process
// environment. Variables that are already set are never overridden, and
// earlier files win over later ones. Missing files are skipped.
func LoadDotenv(dir, appEnv string) error {
	for _, name := range DotenvFiles(appEnv) {
		path := filepath.Join(dir, name)
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}
