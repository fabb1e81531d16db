package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ohub/outage-aggregator/internal/models"
)

// sideFile is the on-disk snapshot shape consumed by external tooling
// and used to warm the cache after a restart.
type sideFile struct {
	Data        []models.CanonicalOutageRecord `json:"data"`
	LastUpdated int64                          `json:"last_updated"` // epoch seconds
}

// WriteSideFile persists the snapshot next to the service. The write
// goes through a temp file and a rename so readers never observe a
// partial file.
func WriteSideFile(path string, snap *models.Snapshot) error {
	payload, err := json.Marshal(sideFile{
		Data:        snap.Data,
		LastUpdated: snap.LastUpdated.Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal side file: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp side file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write side file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close side file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename side file: %w", err)
	}
	return nil
}

// LoadSideFile reads a previously written side file, used to warm the
// in-memory cache at startup. A missing file is not an error.
func LoadSideFile(path string) (*models.Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read side file: %w", err)
	}

	var sf sideFile
	if err := json.Unmarshal(raw, &sf); err != nil {
		return nil, fmt.Errorf("decode side file: %w", err)
	}
	if sf.Data == nil {
		sf.Data = []models.CanonicalOutageRecord{}
	}

	return &models.Snapshot{
		Data:        sf.Data,
		LastUpdated: time.Unix(sf.LastUpdated, 0).UTC(),
	}, nil
}
