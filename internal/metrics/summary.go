package metrics

import "faultctl/internal/model"

// Summarize computes aggregate statistics over a session's snapshots.
// Snapshots arrive in timestamp order, so first/last positions are the
// session boundaries.
func Summarize(snaps []model.Snapshot) model.Summary {
	if len(snaps) == 0 {
		return model.Summary{}
	}

	first := snaps[0]
	last := snaps[len(snaps)-1]

	var sumPeers, maxPeers int
	for _, s := range snaps {
		n := len(s.Peers)
		sumPeers += n
		if n > maxPeers {
			maxPeers = n
		}
	}

	return model.Summary{
		TotalSnapshots:    len(snaps),
		FirstSnapshot:     first.Timestamp,
		LastSnapshot:      last.Timestamp,
		InitialBlockCount: first.Chain.Blocks,
		FinalBlockCount:   last.Chain.Blocks,
		BlocksSynced:      last.Chain.Blocks - first.Chain.Blocks,
		AvgPeerCount:      float64(sumPeers) / float64(len(snaps)),
		MaxPeerCount:      maxPeers,
	}
}
