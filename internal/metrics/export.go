package metrics

import (
	"encoding/json"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"faultctl/internal/model"
)

// SaveToFile writes nodeName's snapshots to path as an indented JSON array.
// Having no data is a logged no-op, not an error.
func (c *Collector) SaveToFile(nodeName, path string) error {
	snaps := c.Snapshots(nodeName)
	if len(snaps) == 0 {
		c.log.Warn("no metrics data to save", zap.String("node", nodeName))
		return nil
	}
	if err := WriteSnapshots(path, snaps); err != nil {
		return err
	}
	c.log.Info("saved metrics snapshots",
		zap.String("node", nodeName),
		zap.Int("snapshots", len(snaps)),
		zap.String("path", path))
	return nil
}

// WriteSnapshots persists snapshots to a JSON file, creating parent
// directories as needed.
func WriteSnapshots(path string, snaps []model.Snapshot) error {
	data, err := json.MarshalIndent(snaps, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadSnapshots loads a snapshot file written by WriteSnapshots.
func ReadSnapshots(path string) ([]model.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var snaps []model.Snapshot
	if err := json.Unmarshal(data, &snaps); err != nil {
		return nil, err
	}
	return snaps, nil
}
