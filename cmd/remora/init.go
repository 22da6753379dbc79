package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/nugget/remora/internal/defaults"
)

// runInit initializes a Remora working directory with default files.
// It writes the bundled starter config. Existing files are never
// overwritten, so rerunning init is always safe.
func runInit(w io.Writer, dir string) error {
	fmt.Fprintf(w, "Initializing Remora workspace in %s\n", dir)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	// Config may hold MQTT credentials, so keep it owner-only.
	configPath := filepath.Join(dir, "config.yaml")
	created, err := writeIfMissing(configPath, defaults.ConfigYAML, 0o600)
	if err != nil {
		return err
	}
	if created {
		fmt.Fprintf(w, "  ✓ %s\n", configPath)
	} else {
		fmt.Fprintf(w, "  - %s exists, skipping\n", configPath)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Edit config.yaml to define your contexts and templates,")
	fmt.Fprintln(w, "then start the engine with: remora serve")
	return nil
}

// writeIfMissing writes content to path only if the file does not
// already exist. Returns whether the file was created. This ensures
// init never overwrites user customizations.
func writeIfMissing(path string, content []byte, perm os.FileMode) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.WriteFile(path, content, perm); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}
