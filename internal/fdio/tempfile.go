package fdio

import (
	"fmt"
	"os"
)

// createNamedTemp creates a temp file in dir and unlinks it at once, leaving
// an open descriptor with no name.
func createNamedTemp(dir string) (*os.File, error) {
	f, err := os.CreateTemp(dir, ".staging-*")
	if err != nil {
		return nil, fmt.Errorf("create staging file: %w", err)
	}
	if err := os.Remove(f.Name()); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("unlink staging file: %w", err)
	}
	return f, nil
}
