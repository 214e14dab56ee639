package transcript

// Snapshot is the single current transcript record for a session. Each
// write overwrites the prior one; there is no append-only log of
// snapshots, only the additive time index kept by the store.
type Snapshot struct {
	SnapshotID   string   `json:"snapshotId"`
	SessionID    string   `json:"sessionId"`
	CallID       string   `json:"callId"`
	Text         string   `json:"text"`
	Timestamp    int64    `json:"timestamp"`
	Backend      string   `json:"backend"`
	Participants []string `json:"participants,omitempty"`
}

// Summary is the parallel per-session record updated on every snapshot
// write for cheap inspection without loading the full transcript.
type Summary struct {
	SessionID     string `json:"sessionId"`
	UpdatedAt     int64  `json:"updatedAt"`
	TranscriptLen int    `json:"transcriptLen"`
	Status        string `json:"status"`
}

// Session status values recorded in summaries.
const (
	StatusActive   = "active"
	StatusFailed   = "failed"
	StatusFinished = "finished"
)
