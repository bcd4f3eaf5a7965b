package model

import "time"

// ChainInfo is the subset of getblockchaininfo the harness cares about.
// Unknown fields are dropped on decode; block height is the one field every
// consumer relies on.
type ChainInfo struct {
	Chain                string  `json:"chain"`
	Blocks               int     `json:"blocks"`
	Headers              int     `json:"headers"`
	BestBlockHash        string  `json:"bestblockhash"`
	VerificationProgress float64 `json:"verificationprogress"`
	InitialBlockDownload bool    `json:"initialblockdownload"`
}

// Peer is one entry from getpeerinfo.
type Peer struct {
	ID      int    `json:"id"`
	Addr    string `json:"addr"`
	SubVer  string `json:"subver"`
	Inbound bool   `json:"inbound"`
}

// Snapshot is one timestamped sample of a node's observable state.
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`
	NodeName  string    `json:"node_name"`
	Chain     ChainInfo `json:"blockchain_info"`
	Peers     []Peer    `json:"peer_info"`
}

// Summary aggregates the snapshots collected for one node over a session.
type Summary struct {
	TotalSnapshots    int       `json:"total_snapshots"`
	FirstSnapshot     time.Time `json:"first_snapshot"`
	LastSnapshot      time.Time `json:"last_snapshot"`
	InitialBlockCount int       `json:"initial_block_count"`
	FinalBlockCount   int       `json:"final_block_count"`
	BlocksSynced      int       `json:"blocks_synced"`
	AvgPeerCount      float64   `json:"avg_peer_count"`
	MaxPeerCount      int       `json:"max_peer_count"`
}
