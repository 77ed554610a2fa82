package migrations

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
)

const initialSchemaFile = "001_initial_schema.sql"

//go:embed sql
var embedded embed.FS

var (
	// MigrationsDir can be overridden in tests or by the application.
	// Files found on disk take precedence over the embedded copies.
	MigrationsDir = getDefaultMigrationsDir()
)

func getDefaultMigrationsDir() string {
	if dir := os.Getenv("COLLABCHAT_MIGRATIONS_DIR"); dir != "" {
		return dir
	}
	return "scripts/migrations"
}

// GetInitialSchema returns the initial schema for the given SQL dialect
// ("sqlite3" or "postgres")
func GetInitialSchema(dialect string) (string, error) {
	sub, err := dialectDir(dialect)
	if err != nil {
		return "", err
	}

	searchPaths := []string{
		filepath.Join(MigrationsDir, sub, initialSchemaFile),
		filepath.Join("..", "..", MigrationsDir, sub, initialSchemaFile),
		filepath.Join("..", MigrationsDir, sub, initialSchemaFile),
	}

	for _, path := range searchPaths {
		content, err := os.ReadFile(path) // #nosec G304 - fixed file name under a configured directory
		if err == nil {
			return string(content), nil
		}
	}

	content, err := embedded.ReadFile("sql/" + sub + "/" + initialSchemaFile)
	if err != nil {
		return "", fmt.Errorf("could not find schema file for dialect %s: %w", dialect, err)
	}
	return string(content), nil
}

func dialectDir(dialect string) (string, error) {
	switch dialect {
	case "sqlite3", "sqlite":
		return "sqlite", nil
	case "postgres", "pgx":
		return "postgres", nil
	}
	return "", fmt.Errorf("unsupported database dialect: %q", dialect)
}
