package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// LoadDotEnv copies KEY=VALUE lines from path into the process environment
// so viper's TMR_ bindings see them. Variables already set win. A missing
// file is not an error.
func LoadDotEnv(path string) (int, error) {
	if strings.TrimSpace(path) == "" {
		return 0, nil
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open env file: %w", err)
	}
	defer f.Close()

	loaded := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))

		key, val, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		val = unquote(strings.TrimSpace(val))

		if _, set := os.LookupEnv(key); set {
			continue
		}
		if err := os.Setenv(key, val); err != nil {
			return loaded, fmt.Errorf("set %s: %w", key, err)
		}
		loaded++
	}
	if err := scanner.Err(); err != nil {
		return loaded, fmt.Errorf("scan env file: %w", err)
	}
	return loaded, nil
}

func unquote(v string) string {
	if len(v) < 2 {
		return v
	}
	first, last := v[0], v[len(v)-1]
	if (first == '"' || first == '\'') && first == last {
		return v[1 : len(v)-1]
	}
	return v
}
