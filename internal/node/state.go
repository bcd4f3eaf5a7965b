package node

// State tracks where a managed node is in its lifecycle.
type State string

const (
	StateUnstarted State = "unstarted"
	StateStarting  State = "starting"
	StateRunning   State = "running"
	StateStopping  State = "stopping"
	StateStopped   State = "stopped"
	StateFailed    State = "failed"
)

func (m *Manager) setState(dataDir string, s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[dataDir] = s
}

// State returns the last observed lifecycle state for dataDir. Nodes the
// manager has never touched are Unstarted.
func (m *Manager) State(dataDir string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.states[dataDir]; ok {
		return s
	}
	return StateUnstarted
}
