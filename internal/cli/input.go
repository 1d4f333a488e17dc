package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// readKeys reads one candidate key per line. Blank lines and lines starting
// with # are skipped.
func readKeys(r io.Reader) ([]string, error) {
	var keys []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		keys = append(keys, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read candidates: %w", err)
	}
	return keys, nil
}

// collectKeys merges positional keys with keys read from path ("-" is stdin).
func collectKeys(args []string, path string) ([]string, error) {
	keys := append([]string(nil), args...)
	if path == "" {
		return keys, nil
	}

	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open candidates file: %w", err)
		}
		defer f.Close()
		r = f
	}

	fromFile, err := readKeys(r)
	if err != nil {
		return nil, err
	}
	return append(keys, fromFile...), nil
}
