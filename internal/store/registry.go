package store

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Registry persists the nodes a campaign has started, so later CLI
// invocations can find and stop them.
type Registry struct {
	UpdatedAt time.Time  `yaml:"updated_at"`
	Nodes     []NodeInfo `yaml:"nodes"`
}

// NodeInfo records one managed node. DataDir is the identity key.
type NodeInfo struct {
	Name             string    `yaml:"name"`
	DataDir          string    `yaml:"data_dir"`
	Port             int       `yaml:"port"`
	RPCPort          int       `yaml:"rpc_port,omitempty"`
	Connect          string    `yaml:"connect,omitempty"`
	FaultProbability float64   `yaml:"fault_probability,omitempty"`
	StartedAt        time.Time `yaml:"started_at"`
}

// Load loads the registry from disk. A missing file yields an empty registry.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Registry{}, nil
		}
		return nil, err
	}

	var reg Registry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, err
	}

	return &reg, nil
}

// Save writes the registry to disk.
func Save(path string, reg *Registry) error {
	if reg == nil {
		return nil
	}
	reg.UpdatedAt = time.Now().UTC()
	data, err := yaml.Marshal(reg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o644)
}

// Add records a node, replacing any previous entry for the same data dir.
func (r *Registry) Add(info NodeInfo) {
	r.Remove(info.DataDir)
	r.Nodes = append(r.Nodes, info)
}

// Remove drops the entry for dataDir. Returns whether one existed.
func (r *Registry) Remove(dataDir string) bool {
	for i, n := range r.Nodes {
		if n.DataDir == dataDir {
			r.Nodes = append(r.Nodes[:i], r.Nodes[i+1:]...)
			return true
		}
	}
	return false
}

// Find looks a node up by name.
func (r *Registry) Find(name string) (NodeInfo, bool) {
	for _, n := range r.Nodes {
		if n.Name == name {
			return n, true
		}
	}
	return NodeInfo{}, false
}
