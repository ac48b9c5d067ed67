package dtb

import (
	"fmt"

	"github.com/ghodss/yaml"
	"github.com/spf13/afero"
)

// readIdentities decodes an info file. An empty file decodes to no records;
// any other shape (a legacy single mapping, garbage) is returned as an error
// so callers can decide whether to reset it.
func readIdentities(fs afero.Fs, path string) ([]IdentityRecord, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var records []IdentityRecord
	if err := yaml.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return records, nil
}

func writeIdentities(fs afero.Fs, path string, records []IdentityRecord) error {
	if records == nil {
		records = []IdentityRecord{}
	}
	return writeRecord(fs, path, records)
}

// writeRecord encodes v as YAML into path.
func writeRecord(fs afero.Fs, path string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := afero.WriteFile(fs, path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// upsertIdentity replaces the record for rec's identity or appends it.
func upsertIdentity(records []IdentityRecord, rec IdentityRecord) []IdentityRecord {
	for i := range records {
		if records[i].Identity() == rec.Identity() {
			records[i] = rec
			return records
		}
	}
	return append(records, rec)
}
