package notehive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Syncer reconciles the local store with the Nimbus service in two
// directions: Drain replays queued offline operations forward (local →
// remote), Reconcile pulls a full snapshot backward (remote → local).
//
// A single mutex serializes any sync operation, so a connectivity-triggered
// drain can never race a user-triggered reconcile on the same tables.
type Syncer struct {
	store       *Store
	remote      Remote
	policy      ReplayPolicy
	maxAttempts int
	debug       *DebugLogger

	mu sync.Mutex
}

// NewSyncer creates a sync coordinator over an opened store and remote.
func NewSyncer(store *Store, remote Remote, policy ReplayPolicy, maxAttempts int, debug *DebugLogger) *Syncer {
	if policy == "" {
		policy = ReplayDiscard
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Syncer{
		store:       store,
		remote:      remote,
		policy:      policy,
		maxAttempts: maxAttempts,
		debug:       debug,
	}
}

// replayKey selects the remote call for a queued operation.
type replayKey struct {
	entity EntityKind
	kind   OpKind
}

// replayFunc replays one queued operation against the remote service.
type replayFunc func(ctx context.Context, remote Remote, userID string, op *OfflineOperation) error

// reminderPayload is the SET_REMINDER operation payload.
type reminderPayload struct {
	ReminderTime *time.Time `json:"reminder_time"`
}

// replayHandlers is the closed dispatch table mapping (entity, kind) to the
// matching remote call. Pairs absent from the table are discarded by the
// drain without replay.
var replayHandlers = map[replayKey]replayFunc{
	{EntityNote, OpAdd}: func(ctx context.Context, remote Remote, _ string, op *OfflineOperation) error {
		n, err := decodeNotePayload(op.Payload)
		if err != nil {
			return err
		}
		return remote.AddNote(ctx, n)
	},
	{EntityNote, OpUpdate}: func(ctx context.Context, remote Remote, _ string, op *OfflineOperation) error {
		n, err := decodeNotePayload(op.Payload)
		if err != nil {
			return err
		}
		return remote.UpdateNote(ctx, n)
	},
	{EntityNote, OpArchive}: func(ctx context.Context, remote Remote, _ string, op *OfflineOperation) error {
		return remote.ArchiveNote(ctx, op.EntityID, true)
	},
	{EntityNote, OpUnarchive}: func(ctx context.Context, remote Remote, _ string, op *OfflineOperation) error {
		return remote.ArchiveNote(ctx, op.EntityID, false)
	},
	{EntityNote, OpRestore}: func(ctx context.Context, remote Remote, _ string, op *OfflineOperation) error {
		return remote.RestoreNote(ctx, op.EntityID)
	},
	{EntityNote, OpDelete}: func(ctx context.Context, remote Remote, _ string, op *OfflineOperation) error {
		return remote.DeleteNote(ctx, op.EntityID)
	},
	{EntityNote, OpSetReminder}: func(ctx context.Context, remote Remote, _ string, op *OfflineOperation) error {
		var p reminderPayload
		if err := json.Unmarshal(op.Payload, &p); err != nil {
			return fmt.Errorf("sync: decode reminder payload: %w", err)
		}
		return remote.SetReminder(ctx, op.EntityID, p.ReminderTime)
	},
	{EntityLabel, OpAdd}: func(ctx context.Context, remote Remote, _ string, op *OfflineOperation) error {
		l, err := decodeLabelPayload(op.Payload)
		if err != nil {
			return err
		}
		return remote.AddLabel(ctx, l)
	},
	{EntityLabel, OpUpdate}: func(ctx context.Context, remote Remote, _ string, op *OfflineOperation) error {
		l, err := decodeLabelPayload(op.Payload)
		if err != nil {
			return err
		}
		return remote.RenameLabel(ctx, l.ID, l.Name)
	},
	{EntityLabel, OpDelete}: func(ctx context.Context, remote Remote, _ string, op *OfflineOperation) error {
		return remote.DeleteLabel(ctx, op.EntityID)
	},
	{EntityLabelNote, OpToggleLabel}: func(ctx context.Context, remote Remote, userID string, op *OfflineOperation) error {
		p, err := decodeToggleLabelParams(op.Payload)
		if err != nil {
			return fmt.Errorf("sync: decode toggle payload: %w", err)
		}
		return remote.ToggleLabel(ctx, userID, *p)
	},
}

func decodeNotePayload(payload []byte) (*Note, error) {
	var n Note
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, fmt.Errorf("sync: decode note payload: %w", err)
	}
	return &n, nil
}

func decodeLabelPayload(payload []byte) (*Label, error) {
	var l Label
	if err := json.Unmarshal(payload, &l); err != nil {
		return nil, fmt.Errorf("sync: decode label payload: %w", err)
	}
	return &l, nil
}

// Drain replays every queued offline operation against the remote service in
// enqueue order, strictly one at a time. Each operation is removed from the
// queue after its replay attempt completes, whether it succeeded or not: under
// ReplayDiscard a failure loses that one mutation but never blocks the queue,
// under ReplayRetry it is re-attempted and then dead-lettered. Operations
// with no handler in the dispatch table are removed without replay.
//
// Drain returns an error only when the queue itself cannot be read or
// updated; replay failures are policy-handled, not surfaced.
func (s *Syncer) Drain(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ops, err := s.store.PendingOperations()
	if err != nil {
		return &SyncError{Operation: "drain", Err: err}
	}
	if len(ops) == 0 {
		return nil
	}

	s.debug.Log("drain: replaying %d operations", len(ops))

	for i := range ops {
		op := &ops[i]

		handler, ok := replayHandlers[replayKey{op.Entity, op.Kind}]
		if !ok {
			s.debug.Log("drain: discarding unknown operation %d (%s %s)", op.ID, op.Entity, op.Kind)
			if err := s.store.RemoveOperation(op.ID); err != nil {
				return &SyncError{Operation: "drain", Err: err}
			}
			continue
		}

		replayErr := handler(ctx, s.remote, userID, op)
		if replayErr == nil {
			if err := s.store.RemoveOperation(op.ID); err != nil {
				return &SyncError{Operation: "drain", Err: err}
			}
			continue
		}

		if err := s.handleReplayFailure(ctx, userID, op, handler, replayErr); err != nil {
			return err
		}
	}

	return nil
}

// handleReplayFailure applies the configured policy to a failed replay.
func (s *Syncer) handleReplayFailure(ctx context.Context, userID string, op *OfflineOperation, handler replayFunc, replayErr error) error {
	if s.policy == ReplayDiscard {
		s.debug.Log("drain: discarding failed operation %d (%s %s): %v", op.ID, op.Entity, op.Kind, replayErr)
		if err := s.store.RemoveOperation(op.ID); err != nil {
			return &SyncError{Operation: "drain", Err: err}
		}
		return nil
	}

	attempts := 1
	for attempts < s.maxAttempts {
		attempts++
		replayErr = handler(ctx, s.remote, userID, op)
		if replayErr == nil {
			if err := s.store.RemoveOperation(op.ID); err != nil {
				return &SyncError{Operation: "drain", Err: err}
			}
			return nil
		}
	}

	s.debug.Log("drain: dead-lettering operation %d (%s %s) after %d attempts: %v",
		op.ID, op.Entity, op.Kind, attempts, replayErr)
	if err := s.store.DeadLetterOperation(op, attempts, replayErr.Error()); err != nil {
		return &SyncError{Operation: "drain", Err: err}
	}
	return nil
}

// Reconcile pulls the user's complete note and label sets from the remote
// service and replaces the matching local tables wholesale. The two
// replacements are independent: a failure in one is surfaced as its own
// *SyncError and does not roll back the other.
func (s *Syncer) Reconcile(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error

	notes, err := s.remote.FetchNotes(ctx, userID)
	if err != nil {
		errs = append(errs, syncErrorFrom("notes", err))
	} else if err := s.store.ReplaceNotes(userID, notes); err != nil {
		errs = append(errs, syncErrorFrom("notes", err))
	}

	labels, err := s.remote.FetchLabels(ctx, userID)
	if err != nil {
		errs = append(errs, syncErrorFrom("labels", err))
	} else if err := s.store.ReplaceLabels(userID, labels); err != nil {
		errs = append(errs, syncErrorFrom("labels", err))
	}

	if len(errs) == 0 {
		if err := s.store.SetMetadata("last_reconcile", formatTime(time.Now().UTC())); err != nil {
			return &SyncError{Operation: "reconcile", Err: err}
		}
		return nil
	}

	return errors.Join(errs...)
}

// syncErrorFrom wraps an error as a *SyncError, carrying the remote status
// code when one is available.
func syncErrorFrom(operation string, err error) *SyncError {
	se := &SyncError{Operation: operation, Err: err}
	var re *RemoteError
	if errors.As(err, &re) {
		se.StatusCode = re.StatusCode
	}
	return se
}
