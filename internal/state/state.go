// Package state persists the three process-wide documents: mint state,
// inscription index, and upload manifest. Each is an independent JSON file
// loaded fully on open, mutated in memory, and rewritten after every
// state-changing call so a crash loses at most the in-flight operation.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// loadJSON reads path into v. A missing or unparseable file leaves v
// untouched so the caller starts from the empty document, mirroring the
// first-boot case.
func loadJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		// Corrupt document: treat as empty rather than refusing to start.
		return nil
	}
	return nil
}

// saveJSON writes v to path atomically: marshal, write to a temp file in
// the same directory, rename over the target.
func saveJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".state-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
