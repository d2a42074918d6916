package histcache

import (
	"os"

	"github.com/rxtech-lab/argo-replay/internal/types"
	"github.com/rxtech-lab/argo-replay/pkg/errors"
	"gopkg.in/yaml.v3"
)

// writeInstrument persists an instrument snapshot atomically.
func writeInstrument(path string, info types.InstrumentInfo) error {
	data, err := yaml.Marshal(&info)
	if err != nil {
		return errors.Wrap(errors.ErrCodeManifestWriteFailed, "failed to marshal instrument metadata", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errors.Wrap(errors.ErrCodeManifestWriteFailed, "failed to write instrument metadata", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrap(errors.ErrCodeManifestWriteFailed, "failed to publish instrument metadata", err)
	}

	return nil
}

func readInstrument(path string) (types.InstrumentInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.InstrumentInfo{}, errors.Wrap(errors.ErrCodeMetadataCorrupt, "failed to read instrument metadata", err)
	}

	var info types.InstrumentInfo
	if err := yaml.Unmarshal(data, &info); err != nil {
		return types.InstrumentInfo{}, errors.Wrap(errors.ErrCodeMetadataCorrupt, "malformed instrument metadata", err)
	}

	return info, nil
}
