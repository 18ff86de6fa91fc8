package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nao1215/originlink/internal/model"
)

// mappingIndent is the indentation of the mapping file.
const mappingIndent = "  "

// MarshalMapping renders the provenance mapping as indented JSON.
func MarshalMapping(prov *model.Provenance) ([]byte, error) {
	if prov == nil {
		prov = model.NewProvenance()
	}
	data, err := json.MarshalIndent(prov, "", mappingIndent)
	if err != nil {
		return nil, fmt.Errorf("marshal mapping: %w", err)
	}
	return append(data, '\n'), nil
}

// WriteMappingFile writes the provenance mapping to path, creating parent
// directories as needed. The file is written to a temporary sibling first
// and renamed into place.
func WriteMappingFile(path string, prov *model.Provenance) error {
	data, err := MarshalMapping(prov)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create mapping directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write mapping file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp) //nolint:errcheck // best effort
		return fmt.Errorf("write mapping file: %w", err)
	}
	return nil
}
