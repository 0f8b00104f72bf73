package domain

// LinkState is the lifecycle state of a source link supervisor.
type LinkState string

const (
	LinkDisconnected       LinkState = "disconnected"
	LinkConnecting         LinkState = "connecting"
	LinkConnected          LinkState = "connected"
	LinkPermanentlyStopped LinkState = "permanently_stopped"
	LinkStopped            LinkState = "stopped"
)

// SourceHealth is a point-in-time view of one supervisor.
type SourceHealth struct {
	Slot     Slot      `json:"slot"`
	Address  string    `json:"address"`
	State    LinkState `json:"state"`
	Attempts int       `json:"attempts"`
}

// SlotWriter is the write side of the snapshot used by a supervisor for its own slot.
type SlotWriter interface {
	Set(slot Slot, r Reading) error
	SetStatus(slot Slot, status Status) error
}

// SnapshotReader is the read side of the snapshot.
type SnapshotReader interface {
	Get(slot Slot) (Reading, error)
	Len() int
	Encode() ([]byte, error)
}

// SourceDirectory resolves a configured address to its slot.
type SourceDirectory interface {
	Lookup(address string) (Slot, bool)
}

// HealthReporter reports per-source health.
type HealthReporter interface {
	SourceHealth() []SourceHealth
}
