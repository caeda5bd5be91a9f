package notehive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeRemote implements Remote in memory, recording every call in order.
// failWith, when set, is returned by every mutation and fetch.
type fakeRemote struct {
	mu       sync.Mutex
	calls    []string
	failWith error

	healthErr error

	notes  []Note
	labels []Label

	watchEvents chan ChangeEvent
}

func (f *fakeRemote) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.failWith
}

func (f *fakeRemote) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeRemote) Health(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.healthErr
}

func (f *fakeRemote) AddNote(ctx context.Context, n *Note) error {
	return f.record("AddNote:" + n.ID)
}

func (f *fakeRemote) UpdateNote(ctx context.Context, n *Note) error {
	return f.record("UpdateNote:" + n.ID)
}

func (f *fakeRemote) ArchiveNote(ctx context.Context, id string, archived bool) error {
	return f.record(fmt.Sprintf("ArchiveNote:%s:%v", id, archived))
}

func (f *fakeRemote) MoveNoteToBin(ctx context.Context, id string) error {
	return f.record("MoveNoteToBin:" + id)
}

func (f *fakeRemote) RestoreNote(ctx context.Context, id string) error {
	return f.record("RestoreNote:" + id)
}

func (f *fakeRemote) DeleteNote(ctx context.Context, id string) error {
	return f.record("DeleteNote:" + id)
}

func (f *fakeRemote) SetReminder(ctx context.Context, id string, at *time.Time) error {
	return f.record(fmt.Sprintf("SetReminder:%s:%v", id, at != nil))
}

func (f *fakeRemote) AddLabel(ctx context.Context, l *Label) error {
	return f.record("AddLabel:" + l.ID)
}

func (f *fakeRemote) RenameLabel(ctx context.Context, id, name string) error {
	return f.record("RenameLabel:" + id + ":" + name)
}

func (f *fakeRemote) DeleteLabel(ctx context.Context, id string) error {
	return f.record("DeleteLabel:" + id)
}

func (f *fakeRemote) ToggleLabel(ctx context.Context, userID string, params ToggleLabelParams) error {
	return f.record("ToggleLabel:" + params.LabelName)
}

func (f *fakeRemote) FetchNotes(ctx context.Context, userID string) ([]Note, error) {
	if err := f.record("FetchNotes:" + userID); err != nil {
		return nil, err
	}
	return f.notes, nil
}

func (f *fakeRemote) FetchLabels(ctx context.Context, userID string) ([]Label, error) {
	if err := f.record("FetchLabels:" + userID); err != nil {
		return nil, err
	}
	return f.labels, nil
}

func (f *fakeRemote) Watch(ctx context.Context, userID string) (<-chan ChangeEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.watchEvents == nil {
		f.watchEvents = make(chan ChangeEvent)
	}
	out := make(chan ChangeEvent)
	events := f.watchEvents
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				out <- ev
			}
		}
	}()
	return out, nil
}

func newTestSyncer(t *testing.T, store *Store, remote Remote, policy ReplayPolicy, maxAttempts int) *Syncer {
	t.Helper()
	return NewSyncer(store, remote, policy, maxAttempts, nil)
}

func enqueueNoteOp(t *testing.T, store *Store, kind OpKind, noteID string) {
	t.Helper()
	payload, err := json.Marshal(Note{ID: noteID, UserID: "u1", Title: "queued"})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	op := &OfflineOperation{Kind: kind, Entity: EntityNote, EntityID: noteID, Payload: payload}
	if err := store.EnqueueOperation(op); err != nil {
		t.Fatalf("EnqueueOperation failed: %v", err)
	}
}

func pendingCount(t *testing.T, store *Store) int {
	t.Helper()
	ops, err := store.PendingOperations()
	if err != nil {
		t.Fatalf("PendingOperations failed: %v", err)
	}
	return len(ops)
}

func TestDrain_EmptyQueue(t *testing.T) {
	store := newTestStore(t)
	remote := &fakeRemote{}
	syncer := newTestSyncer(t, store, remote, ReplayDiscard, 1)

	if err := syncer.Drain(context.Background(), "u1"); err != nil {
		t.Fatalf("Drain on empty queue = %v, want nil", err)
	}
	if len(remote.recorded()) != 0 {
		t.Errorf("Drain on empty queue made remote calls: %v", remote.recorded())
	}
}

func TestDrain_ReplaysInEnqueueOrder(t *testing.T) {
	store := newTestStore(t)
	remote := &fakeRemote{}
	syncer := newTestSyncer(t, store, remote, ReplayDiscard, 1)

	enqueueNoteOp(t, store, OpAdd, "n1")
	enqueueNoteOp(t, store, OpUpdate, "n1")
	op := &OfflineOperation{Kind: OpArchive, Entity: EntityNote, EntityID: "n1"}
	if err := store.EnqueueOperation(op); err != nil {
		t.Fatalf("EnqueueOperation failed: %v", err)
	}

	if err := syncer.Drain(context.Background(), "u1"); err != nil {
		t.Fatalf("Drain failed: %v", err)
	}

	want := []string{"AddNote:n1", "UpdateNote:n1", "ArchiveNote:n1:true"}
	got := remote.recorded()
	if len(got) != len(want) {
		t.Fatalf("remote calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if n := pendingCount(t, store); n != 0 {
		t.Errorf("queue has %d operations after drain, want 0", n)
	}
}

func TestDrain_DispatchTable(t *testing.T) {
	store := newTestStore(t)
	remote := &fakeRemote{}
	syncer := newTestSyncer(t, store, remote, ReplayDiscard, 1)

	labelPayload, _ := json.Marshal(Label{ID: "l1", UserID: "u1", Name: "Work"})
	togglePayload, _ := json.Marshal(ToggleLabelParams{LabelName: "Work", Checked: true, NoteIDs: []string{"n1"}})
	reminder, _ := json.Marshal(reminderPayload{})

	ops := []*OfflineOperation{
		{Kind: OpUnarchive, Entity: EntityNote, EntityID: "n1"},
		{Kind: OpRestore, Entity: EntityNote, EntityID: "n1"},
		{Kind: OpDelete, Entity: EntityNote, EntityID: "n1"},
		{Kind: OpSetReminder, Entity: EntityNote, EntityID: "n1", Payload: reminder},
		{Kind: OpAdd, Entity: EntityLabel, EntityID: "l1", Payload: labelPayload},
		{Kind: OpUpdate, Entity: EntityLabel, EntityID: "l1", Payload: labelPayload},
		{Kind: OpDelete, Entity: EntityLabel, EntityID: "l1"},
		{Kind: OpToggleLabel, Entity: EntityLabelNote, EntityID: "Work", Payload: togglePayload},
	}
	for _, op := range ops {
		if err := store.EnqueueOperation(op); err != nil {
			t.Fatalf("EnqueueOperation failed: %v", err)
		}
	}

	if err := syncer.Drain(context.Background(), "u1"); err != nil {
		t.Fatalf("Drain failed: %v", err)
	}

	want := []string{
		"ArchiveNote:n1:false",
		"RestoreNote:n1",
		"DeleteNote:n1",
		"SetReminder:n1:false",
		"AddLabel:l1",
		"RenameLabel:l1:Work",
		"DeleteLabel:l1",
		"ToggleLabel:Work",
	}
	got := remote.recorded()
	if len(got) != len(want) {
		t.Fatalf("remote calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDrain_DiscardPolicy_RemovesFailedOperation(t *testing.T) {
	store := newTestStore(t)
	remote := &fakeRemote{failWith: &RemoteError{StatusCode: 500}}
	syncer := newTestSyncer(t, store, remote, ReplayDiscard, 1)

	enqueueNoteOp(t, store, OpAdd, "n1")
	enqueueNoteOp(t, store, OpAdd, "n2")

	if err := syncer.Drain(context.Background(), "u1"); err != nil {
		t.Fatalf("Drain = %v, replay failures must not surface", err)
	}

	// Both attempted exactly once, both removed: a rejected operation never
	// blocks the queue behind it.
	if got := remote.recorded(); len(got) != 2 {
		t.Errorf("remote calls = %v, want one attempt per operation", got)
	}
	if n := pendingCount(t, store); n != 0 {
		t.Errorf("queue has %d operations after drain, want 0", n)
	}

	letters, err := store.DeadLetters()
	if err != nil {
		t.Fatalf("DeadLetters failed: %v", err)
	}
	if len(letters) != 0 {
		t.Errorf("discard policy produced %d dead letters, want 0", len(letters))
	}
}

func TestDrain_DiscardPolicy_FailureDoesNotBlockQueue(t *testing.T) {
	store := newTestStore(t)
	remote := &fakeRemote{}
	syncer := newTestSyncer(t, store, remote, ReplayDiscard, 1)

	enqueueNoteOp(t, store, OpAdd, "n1")
	enqueueNoteOp(t, store, OpAdd, "n2")

	// The first replay fails, then the remote recovers.
	firstDone := false
	flaky := &flakyRemote{inner: remote, failFirst: &firstDone}
	syncer = newTestSyncer(t, store, flaky, ReplayDiscard, 1)

	if err := syncer.Drain(context.Background(), "u1"); err != nil {
		t.Fatalf("Drain failed: %v", err)
	}

	// n1 was discarded, n2 replayed successfully.
	got := remote.recorded()
	if len(got) != 1 || got[0] != "AddNote:n2" {
		t.Errorf("remote calls = %v, want just AddNote:n2", got)
	}
	if n := pendingCount(t, store); n != 0 {
		t.Errorf("queue has %d operations after drain, want 0", n)
	}
}

// flakyRemote fails the first AddNote, then delegates.
type flakyRemote struct {
	Remote
	inner     *fakeRemote
	failFirst *bool
}

func (f *flakyRemote) AddNote(ctx context.Context, n *Note) error {
	if !*f.failFirst {
		*f.failFirst = true
		return &RemoteError{StatusCode: 503}
	}
	return f.inner.AddNote(ctx, n)
}

func TestDrain_RetryPolicy_DeadLettersAfterMaxAttempts(t *testing.T) {
	store := newTestStore(t)
	remote := &fakeRemote{failWith: &RemoteError{StatusCode: 500}}
	syncer := newTestSyncer(t, store, remote, ReplayRetry, 3)

	enqueueNoteOp(t, store, OpAdd, "n1")

	if err := syncer.Drain(context.Background(), "u1"); err != nil {
		t.Fatalf("Drain = %v, replay failures must not surface", err)
	}

	if got := remote.recorded(); len(got) != 3 {
		t.Errorf("remote attempts = %d, want 3", len(got))
	}
	if n := pendingCount(t, store); n != 0 {
		t.Errorf("queue has %d operations, want 0", n)
	}

	letters, err := store.DeadLetters()
	if err != nil {
		t.Fatalf("DeadLetters failed: %v", err)
	}
	if len(letters) != 1 {
		t.Fatalf("got %d dead letters, want 1", len(letters))
	}
	if letters[0].Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", letters[0].Attempts)
	}
	if letters[0].LastError == "" {
		t.Error("LastError should record the final failure")
	}
}

func TestDrain_RetryPolicy_SucceedsWithinBudget(t *testing.T) {
	store := newTestStore(t)
	remote := &fakeRemote{}
	firstDone := false
	flaky := &flakyRemote{inner: remote, failFirst: &firstDone}
	syncer := newTestSyncer(t, store, flaky, ReplayRetry, 3)

	enqueueNoteOp(t, store, OpAdd, "n1")

	if err := syncer.Drain(context.Background(), "u1"); err != nil {
		t.Fatalf("Drain failed: %v", err)
	}

	if n := pendingCount(t, store); n != 0 {
		t.Errorf("queue has %d operations, want 0", n)
	}
	letters, err := store.DeadLetters()
	if err != nil {
		t.Fatalf("DeadLetters failed: %v", err)
	}
	if len(letters) != 0 {
		t.Errorf("got %d dead letters, want 0", len(letters))
	}
}

func TestDrain_UnknownOperationDiscarded(t *testing.T) {
	store := newTestStore(t)
	remote := &fakeRemote{}
	syncer := newTestSyncer(t, store, remote, ReplayDiscard, 1)

	op := &OfflineOperation{Kind: OpKind("LEGACY_KIND"), Entity: EntityNote, EntityID: "n1"}
	if err := store.EnqueueOperation(op); err != nil {
		t.Fatalf("EnqueueOperation failed: %v", err)
	}
	enqueueNoteOp(t, store, OpAdd, "n2")

	if err := syncer.Drain(context.Background(), "u1"); err != nil {
		t.Fatalf("Drain failed: %v", err)
	}

	got := remote.recorded()
	if len(got) != 1 || got[0] != "AddNote:n2" {
		t.Errorf("remote calls = %v, unknown operation must be skipped", got)
	}
	if n := pendingCount(t, store); n != 0 {
		t.Errorf("queue has %d operations, want 0", n)
	}
}

func TestReconcile_ReplacesLocalTables(t *testing.T) {
	store := newTestStore(t)
	if err := store.SaveNote(makeNote("n-stale", "u1", "Stale"), nil); err != nil {
		t.Fatalf("SaveNote failed: %v", err)
	}
	addTestLabel(t, store, "l-stale", "u1", "Stale")

	remote := &fakeRemote{
		notes:  []Note{*makeNote("n-remote", "u1", "Fresh")},
		labels: []Label{{ID: "l-remote", UserID: "u1", Name: "Fresh"}},
	}
	syncer := newTestSyncer(t, store, remote, ReplayDiscard, 1)

	if err := syncer.Reconcile(context.Background(), "u1"); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	notes, err := store.ActiveNotes("u1")
	if err != nil {
		t.Fatalf("ActiveNotes failed: %v", err)
	}
	if len(notes) != 1 || notes[0].ID != "n-remote" {
		t.Errorf("notes after reconcile = %v, want just n-remote", notes)
	}

	labels, err := store.Labels("u1")
	if err != nil {
		t.Fatalf("Labels failed: %v", err)
	}
	if len(labels) != 1 || labels[0].ID != "l-remote" {
		t.Errorf("labels after reconcile = %v, want just l-remote", labels)
	}

	last, err := store.Metadata("last_reconcile")
	if err != nil {
		t.Fatalf("Metadata failed: %v", err)
	}
	if last == "" {
		t.Error("last_reconcile should be recorded after a clean reconcile")
	}
}

func TestReconcile_EmptyRemoteClearsLocal(t *testing.T) {
	store := newTestStore(t)
	if err := store.SaveNote(makeNote("n1", "u1", "Stale"), nil); err != nil {
		t.Fatalf("SaveNote failed: %v", err)
	}

	remote := &fakeRemote{} // zero notes, zero labels
	syncer := newTestSyncer(t, store, remote, ReplayDiscard, 1)

	if err := syncer.Reconcile(context.Background(), "u1"); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	notes, err := store.ActiveNotes("u1")
	if err != nil {
		t.Fatalf("ActiveNotes failed: %v", err)
	}
	if len(notes) != 0 {
		t.Errorf("got %d notes after empty reconcile, want 0", len(notes))
	}
}

func TestReconcile_DistinctNoteAndLabelErrors(t *testing.T) {
	store := newTestStore(t)
	remote := &fakeRemote{failWith: &RemoteError{StatusCode: 502}}
	syncer := newTestSyncer(t, store, remote, ReplayDiscard, 1)

	err := syncer.Reconcile(context.Background(), "u1")
	if err == nil {
		t.Fatal("Reconcile with failing remote should return an error")
	}

	// Both phases attempted despite the first failing.
	got := remote.recorded()
	if len(got) != 2 {
		t.Fatalf("remote calls = %v, want FetchNotes and FetchLabels", got)
	}

	var se *SyncError
	if !errors.As(err, &se) {
		t.Fatalf("error %v should unwrap to *SyncError", err)
	}
	if se.StatusCode != 502 {
		t.Errorf("StatusCode = %d, want 502", se.StatusCode)
	}

	msg := err.Error()
	for _, phase := range []string{"notes", "labels"} {
		if !strings.Contains(msg, phase) {
			t.Errorf("error %q should name the %s phase", msg, phase)
		}
	}
}

func TestReconcile_NoteFailureDoesNotBlockLabels(t *testing.T) {
	store := newTestStore(t)
	addTestLabel(t, store, "l-stale", "u1", "Stale")

	remote := &fakeRemote{labels: []Label{{ID: "l-remote", UserID: "u1", Name: "Fresh"}}}
	failNotes := &notesFailRemote{inner: remote}
	syncer := newTestSyncer(t, store, failNotes, ReplayDiscard, 1)

	err := syncer.Reconcile(context.Background(), "u1")
	if err == nil {
		t.Fatal("Reconcile should surface the notes failure")
	}

	// The label replacement still went through.
	labels, lerr := store.Labels("u1")
	if lerr != nil {
		t.Fatalf("Labels failed: %v", lerr)
	}
	if len(labels) != 1 || labels[0].ID != "l-remote" {
		t.Errorf("labels = %v, want l-remote despite notes failure", labels)
	}
}

// notesFailRemote fails FetchNotes, delegating everything else.
type notesFailRemote struct {
	Remote
	inner *fakeRemote
}

func (r *notesFailRemote) FetchNotes(ctx context.Context, userID string) ([]Note, error) {
	return nil, &RemoteError{StatusCode: 500}
}

func (r *notesFailRemote) FetchLabels(ctx context.Context, userID string) ([]Label, error) {
	return r.inner.FetchLabels(ctx, userID)
}

func TestSyncer_SerializesDrainAndReconcile(t *testing.T) {
	store := newTestStore(t)

	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	remote := &fakeRemote{}
	blocking := &blockingRemote{inner: remote, entered: entered, release: release}
	syncer := newTestSyncer(t, store, blocking, ReplayDiscard, 1)

	enqueueNoteOp(t, store, OpAdd, "n1")

	drainDone := make(chan struct{})
	go func() {
		defer close(drainDone)
		if err := syncer.Drain(context.Background(), "u1"); err != nil {
			t.Errorf("Drain failed: %v", err)
		}
	}()

	<-entered // drain is inside the remote call, holding the sync lock

	reconcileDone := make(chan struct{})
	go func() {
		defer close(reconcileDone)
		if err := syncer.Reconcile(context.Background(), "u1"); err != nil {
			t.Errorf("Reconcile failed: %v", err)
		}
	}()

	select {
	case <-reconcileDone:
		t.Fatal("Reconcile completed while a drain held the sync lock")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-drainDone
	<-reconcileDone
}

// blockingRemote blocks AddNote until released, signalling entry.
type blockingRemote struct {
	Remote
	inner   *fakeRemote
	entered chan struct{}
	release chan struct{}
}

func (r *blockingRemote) AddNote(ctx context.Context, n *Note) error {
	r.entered <- struct{}{}
	<-r.release
	return r.inner.AddNote(ctx, n)
}

func (r *blockingRemote) FetchNotes(ctx context.Context, userID string) ([]Note, error) {
	return r.inner.FetchNotes(ctx, userID)
}

func (r *blockingRemote) FetchLabels(ctx context.Context, userID string) ([]Label, error) {
	return r.inner.FetchLabels(ctx, userID)
}
