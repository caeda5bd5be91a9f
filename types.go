package notehive

import (
	"encoding/json"
	"time"
)

// Note is a single note owned by one user. A note lives in exactly one of
// three lifecycle buckets: active, archived, or in the bin. The Archived and
// InBin flags are never both true; HasReminder is orthogonal to the bucket.
type Note struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	Title        string     `json:"title"`
	Content      string     `json:"content"`
	Timestamp    time.Time  `json:"timestamp"`
	Archived     bool       `json:"archived"`
	Deleted      bool       `json:"deleted"`
	InBin        bool       `json:"in_bin"`
	HasReminder  bool       `json:"has_reminder"`
	ReminderTime *time.Time `json:"reminder_time,omitempty"`
	Labels       []string   `json:"labels,omitempty"`
}

// HasLabel reports whether the note carries the given label name.
func (n *Note) HasLabel(name string) bool {
	for _, l := range n.Labels {
		if l == name {
			return true
		}
	}
	return false
}

// Label is a user-defined tag. Membership is denormalized onto Note.Labels by
// name, so renaming or deleting a label rewrites every referencing note.
type Label struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

// User is the profile of the account owning the local store.
type User struct {
	UserID   string `json:"user_id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	PhotoURL string `json:"photo_url,omitempty"`
}

// OpKind identifies the kind of a queued offline mutation.
type OpKind string

const (
	OpAdd         OpKind = "ADD"
	OpUpdate      OpKind = "UPDATE"
	OpDelete      OpKind = "DELETE"
	OpArchive     OpKind = "ARCHIVE"
	OpUnarchive   OpKind = "UNARCHIVE"
	OpRestore     OpKind = "RESTORE"
	OpSetReminder OpKind = "SET_REMINDER"
	OpToggleLabel OpKind = "TOGGLE_LABEL"
)

// EntityKind identifies which entity a queued offline mutation targets.
type EntityKind string

const (
	EntityNote      EntityKind = "NOTE"
	EntityLabel     EntityKind = "LABEL"
	EntityLabelNote EntityKind = "LABEL_NOTE"
)

// OfflineOperation is a durable record of a mutation applied to the local
// store while the remote service was unreachable. Operations replay against
// the remote service in enqueue order and are removed after one replay
// attempt, successful or not (see ReplayPolicy).
type OfflineOperation struct {
	ID       int64      `json:"id"`
	Kind     OpKind     `json:"kind"`
	Entity   EntityKind `json:"entity"`
	EntityID string     `json:"entity_id"`
	QueuedAt time.Time  `json:"queued_at"`
	Payload  []byte     `json:"payload,omitempty"`
}

// DeadLetter is an offline operation that exhausted its replay attempts under
// the ReplayRetry policy.
type DeadLetter struct {
	ID        int64      `json:"id"`
	Kind      OpKind     `json:"kind"`
	Entity    EntityKind `json:"entity"`
	EntityID  string     `json:"entity_id"`
	Payload   []byte     `json:"payload,omitempty"`
	Attempts  int        `json:"attempts"`
	LastError string     `json:"last_error"`
	FailedAt  time.Time  `json:"failed_at"`
}

// ReplayPolicy selects how the drain handles a failed replay attempt.
type ReplayPolicy string

const (
	// ReplayDiscard removes a failed operation from the queue immediately.
	// Best-effort, at-most-once: a rejected operation never blocks the queue
	// behind it, at the cost of losing that one mutation.
	ReplayDiscard ReplayPolicy = "discard"

	// ReplayRetry re-attempts a failed operation up to MaxReplayAttempts
	// times within the drain, then moves it to the dead_letters table.
	ReplayRetry ReplayPolicy = "retry"
)

// ToggleLabelParams carries the parameters of a bulk label toggle: apply or
// remove one label name across a set of notes.
type ToggleLabelParams struct {
	LabelName string   `json:"label_name"`
	Checked   bool     `json:"checked"`
	NoteIDs   []string `json:"note_ids"`
}

// decodeToggleLabelParams parses a TOGGLE_LABEL operation payload.
func decodeToggleLabelParams(payload []byte) (*ToggleLabelParams, error) {
	var p ToggleLabelParams
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// StoreStats summarizes the local store.
type StoreStats struct {
	NoteCount     int       `json:"note_count"`
	LabelCount    int       `json:"label_count"`
	PendingOps    int       `json:"pending_ops"`
	DeadLetters   int       `json:"dead_letters"`
	LastReconcile time.Time `json:"last_reconcile"`
	SchemaVersion string    `json:"schema_version"`
}

// HealthStatus reports the health of the client and its two stores.
type HealthStatus struct {
	Healthy         bool   `json:"healthy"`
	StoreOK         bool   `json:"store_ok"`
	RemoteReachable bool   `json:"remote_reachable"`
	Error           string `json:"error,omitempty"`
}

// ChangeEvent is a single change pushed by the remote service's live
// subscription stream.
type ChangeEvent struct {
	Entity EntityKind `json:"entity"` // NOTE or LABEL
	Op     string     `json:"op"`     // "put" or "delete"
	Note   *Note      `json:"note,omitempty"`
	Label  *Label     `json:"label,omitempty"`
}
