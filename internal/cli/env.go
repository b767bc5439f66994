package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
)

const (
	envFileVar     = "CONSOLE_ENV_FILE"
	defaultEnvFile = ".env"
)

// loadEnvFile sets KEY=VALUE pairs from a dotenv file without overriding
// variables that are already set. A missing file is not an error.
func loadEnvFile(path string) (string, int, error) {
	if strings.TrimSpace(path) == "" {
		path = strings.TrimSpace(os.Getenv(envFileVar))
	}
	if path == "" {
		path = defaultEnvFile
	}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return path, 0, nil
		}
		return path, 0, err
	}
	defer file.Close()

	loaded := 0
	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		key, value, ok, err := parseEnvLine(scanner.Text())
		if err != nil {
			return path, loaded, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if !ok {
			continue
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return path, loaded, err
		}
		loaded++
	}
	return path, loaded, scanner.Err()
}

func parseEnvLine(line string) (string, string, bool, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false, nil
	}
	line = strings.TrimPrefix(line, "export ")
	key, value, found := strings.Cut(line, "=")
	if !found {
		return "", "", false, fmt.Errorf("missing '=' in %q", line)
	}
	key = strings.TrimSpace(key)
	if key == "" || strings.ContainsAny(key, " \t") {
		return "", "", false, fmt.Errorf("invalid key %q", key)
	}
	value = strings.TrimSpace(value)
	if len(value) >= 2 {
		quote := value[0]
		if (quote == '"' || quote == '\'') && value[len(value)-1] == quote {
			return key, value[1 : len(value)-1], true, nil
		}
	}
	if idx := strings.Index(value, " #"); idx >= 0 {
		value = strings.TrimSpace(value[:idx])
	}
	return key, value, true, nil
}
