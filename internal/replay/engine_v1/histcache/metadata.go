package histcache

import (
	"os"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/rxtech-lab/argo-replay/pkg/errors"
	"gopkg.in/yaml.v3"
)

// SchemaVersion is written into every day's provenance sidecar. A cached day
// whose major version differs from the current one is unusable and treated
// as missing.
const SchemaVersion = "1.0.0"

// DayMetadata is the provenance sidecar persisted next to each day payload.
// A payload without this sidecar is not usable even if the parquet file
// exists; that is how legacy and partially-written days are fenced off.
type DayMetadata struct {
	CachedAt        time.Time `yaml:"cached_at"`
	FirstSampleTime time.Time `yaml:"first_sample_time"`
	LastSampleTime  time.Time `yaml:"last_sample_time"`
	RowCount        int       `yaml:"row_count"`
	SchemaVersion   string    `yaml:"schema_version"`
	// Source names the provider the day was fetched from.
	Source string `yaml:"source"`
}

// CheckSchema verifies the sidecar's schema version is usable by this build.
func (m *DayMetadata) CheckSchema() error {
	current := semver.MustParse(SchemaVersion)

	written, err := semver.NewVersion(m.SchemaVersion)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeSchemaMismatch, err, "unparseable schema version: %s", m.SchemaVersion)
	}

	if written.Major() != current.Major() {
		return errors.Newf(errors.ErrCodeSchemaMismatch,
			"cache schema %s incompatible with current %s", m.SchemaVersion, SchemaVersion)
	}

	return nil
}

// writeMetadata persists the sidecar atomically (temp file + rename).
func writeMetadata(path string, meta DayMetadata) error {
	data, err := yaml.Marshal(&meta)
	if err != nil {
		return errors.Wrap(errors.ErrCodeManifestWriteFailed, "failed to marshal day metadata", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errors.Wrap(errors.ErrCodeManifestWriteFailed, "failed to write day metadata", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrap(errors.ErrCodeManifestWriteFailed, "failed to publish day metadata", err)
	}

	return nil
}

// readMetadata loads a sidecar. A missing file maps to ErrCodeMetadataMissing
// so callers can distinguish legacy payloads from corrupt ones.
func readMetadata(path string) (DayMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DayMetadata{}, errors.Newf(errors.ErrCodeMetadataMissing, "no provenance metadata at %s", path)
		}

		return DayMetadata{}, errors.Wrap(errors.ErrCodeMetadataCorrupt, "failed to read day metadata", err)
	}

	var meta DayMetadata
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return DayMetadata{}, errors.Wrap(errors.ErrCodeMetadataCorrupt, "malformed day metadata", err)
	}

	return meta, nil
}
