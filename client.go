package notehive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Client is the bridge between the UI and the two stores. It is the single
// entry point for every read and mutation, routing each call to the remote
// service or the local store based on the connectivity oracle, and queueing
// an offline operation whenever a mutation lands locally while offline.
//
// Routing contract: while online a mutation writes to the remote service
// first and mirrors into the local store only on remote success, so the local
// store is never observably ahead of the remote one. A remote failure leaves
// the local store untouched and is returned to the caller. While offline the
// mutation writes to the local store and its offline operation commits in the
// same transaction.
type Client struct {
	store   *Store
	remote  Remote
	syncer  *Syncer
	monitor *Monitor
	cols    *collections
	config  Config
	debug   *DebugLogger

	watchMu     sync.Mutex
	watchCancel context.CancelFunc
	watchDone   chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// New creates a client, opening the local store and constructing the remote
// client from the configuration.
func New(cfg Config) (*Client, error) {
	cfg = cfg.WithDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	debug, err := NewDebugLogger(cfg.Debug, cfg.DebugLogPath)
	if err != nil {
		return nil, err
	}

	store, err := NewStore(cfg.LocalPath)
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}

	var remote Remote
	if !cfg.IsOffline() {
		remote = NewHTTPRemote(cfg.NimbusURL, cfg.APIKey, debug)
	}

	return NewWithStores(cfg, store, remote, debug)
}

// NewWithStores creates a client over explicitly constructed store handles.
// remote may be nil for offline-only operation. The client owns both handles
// and closes the store on Close.
func NewWithStores(cfg Config, store *Store, remote Remote, debug *DebugLogger) (*Client, error) {
	cfg = cfg.WithDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		store:  store,
		remote: remote,
		cols:   newCollections(),
		config: cfg,
		debug:  debug,
	}

	if remote != nil {
		c.syncer = NewSyncer(store, remote, cfg.Replay, cfg.MaxReplayAttempts, debug)
		c.monitor = NewMonitor(remote, cfg.ProbeInterval, c.handleOnline, debug)

		if !cfg.DisableAutoSync {
			c.monitor.Start()
			go c.monitor.Probe(context.Background())
		}
	}

	c.publish()
	return c, nil
}

// IsOnline answers the connectivity oracle's current state.
func (c *Client) IsOnline() bool {
	return c.monitor.Online()
}

// newID generates a globally unique, client-side entity id, valid in both
// stores and safe to reference from a not-yet-synced offline operation.
func newID() string {
	return ulid.Make().String()
}

// --- Note mutations ---

// AddNote creates a note. A missing id is generated client-side before the
// write is routed to either store.
func (c *Client) AddNote(ctx context.Context, n Note) (*Note, error) {
	if strings.TrimSpace(n.Title) == "" && strings.TrimSpace(n.Content) == "" {
		return nil, ErrEmptyNote
	}

	if n.ID == "" {
		n.ID = newID()
	}
	if n.UserID == "" {
		n.UserID = c.config.UserID
	}
	n.Timestamp = time.Now().UTC()
	n.Archived = false
	n.InBin = false
	n.Deleted = false

	if err := c.routeNote(ctx, &n, OpAdd, func(ctx context.Context) error {
		return c.remote.AddNote(ctx, &n)
	}); err != nil {
		return nil, err
	}
	return &n, nil
}

// UpdateNote rewrites a note's user-editable fields and bumps its timestamp.
func (c *Client) UpdateNote(ctx context.Context, n Note) (*Note, error) {
	existing, err := c.store.GetNote(n.ID)
	if err != nil {
		return nil, err
	}

	existing.Title = n.Title
	existing.Content = n.Content
	existing.Labels = n.Labels
	existing.Timestamp = time.Now().UTC()

	if err := c.routeNote(ctx, existing, OpUpdate, func(ctx context.Context) error {
		return c.remote.UpdateNote(ctx, existing)
	}); err != nil {
		return nil, err
	}
	return existing, nil
}

// ArchiveNote moves a note to the archived bucket.
func (c *Client) ArchiveNote(ctx context.Context, id string) error {
	return c.moveNote(ctx, id, OpArchive, func(n *Note) {
		n.Archived = true
		n.InBin = false
	}, func(ctx context.Context) error {
		return c.remote.ArchiveNote(ctx, id, true)
	})
}

// UnarchiveNote returns a note to the active bucket.
func (c *Client) UnarchiveNote(ctx context.Context, id string) error {
	return c.moveNote(ctx, id, OpUnarchive, func(n *Note) {
		n.Archived = false
		n.InBin = false
	}, func(ctx context.Context) error {
		return c.remote.ArchiveNote(ctx, id, false)
	})
}

// DeleteNote moves a note to the bin. Offline it queues as an UPDATE carrying
// the full moved snapshot, which replays as one remote write.
func (c *Client) DeleteNote(ctx context.Context, id string) error {
	n, err := c.store.GetNote(id)
	if err != nil {
		return err
	}
	n.InBin = true
	n.Archived = false

	return c.routeNote(ctx, n, OpUpdate, func(ctx context.Context) error {
		return c.remote.MoveNoteToBin(ctx, id)
	})
}

// RestoreNote returns a note from the bin to the active bucket.
func (c *Client) RestoreNote(ctx context.Context, id string) error {
	return c.moveNote(ctx, id, OpRestore, func(n *Note) {
		n.InBin = false
		n.Archived = false
	}, func(ctx context.Context) error {
		return c.remote.RestoreNote(ctx, id)
	})
}

// PermanentlyDeleteNote removes a note from both stores for good.
func (c *Client) PermanentlyDeleteNote(ctx context.Context, id string) error {
	if _, err := c.store.GetNote(id); err != nil {
		return err
	}

	if c.IsOnline() {
		if err := c.remote.DeleteNote(ctx, id); err != nil {
			return err
		}
		if err := c.store.DeleteNotePermanently(id, nil); err != nil {
			return err
		}
	} else {
		op := &OfflineOperation{Kind: OpDelete, Entity: EntityNote, EntityID: id}
		if err := c.store.DeleteNotePermanently(id, op); err != nil {
			return err
		}
	}

	c.publish()
	return nil
}

// SetReminder sets or clears a note's reminder. A nil at clears it.
func (c *Client) SetReminder(ctx context.Context, id string, at *time.Time) error {
	n, err := c.store.GetNote(id)
	if err != nil {
		return err
	}

	n.HasReminder = at != nil
	n.ReminderTime = at

	if c.IsOnline() {
		if err := c.remote.SetReminder(ctx, id, at); err != nil {
			return err
		}
		if err := c.store.SaveNote(n, nil); err != nil {
			return err
		}
	} else {
		payload, err := json.Marshal(reminderPayload{ReminderTime: at})
		if err != nil {
			return err
		}
		op := &OfflineOperation{Kind: OpSetReminder, Entity: EntityNote, EntityID: id, Payload: payload}
		if err := c.store.SaveNote(n, op); err != nil {
			return err
		}
	}

	c.publish()
	return nil
}

// routeNote applies the online-first/offline-queue routing for a full-note
// write. remoteCall runs only while online; offline the note payload is
// queued under kind.
func (c *Client) routeNote(ctx context.Context, n *Note, kind OpKind, remoteCall func(context.Context) error) error {
	if c.IsOnline() {
		if err := remoteCall(ctx); err != nil {
			return err
		}
		if err := c.store.SaveNote(n, nil); err != nil {
			return err
		}
	} else {
		payload, err := json.Marshal(n)
		if err != nil {
			return err
		}
		op := &OfflineOperation{Kind: kind, Entity: EntityNote, EntityID: n.ID, Payload: payload}
		if err := c.store.SaveNote(n, op); err != nil {
			return err
		}
	}

	c.publish()
	return nil
}

// moveNote applies a bucket transition. Offline the transition queues by kind
// alone; the entity id is enough to replay it.
func (c *Client) moveNote(ctx context.Context, id string, kind OpKind, transition func(*Note), remoteCall func(context.Context) error) error {
	n, err := c.store.GetNote(id)
	if err != nil {
		return err
	}
	transition(n)

	if c.IsOnline() {
		if err := remoteCall(ctx); err != nil {
			return err
		}
		if err := c.store.SaveNote(n, nil); err != nil {
			return err
		}
	} else {
		op := &OfflineOperation{Kind: kind, Entity: EntityNote, EntityID: id}
		if err := c.store.SaveNote(n, op); err != nil {
			return err
		}
	}

	c.publish()
	return nil
}

// --- Label mutations ---

// AddLabel creates a label. Names are unique per user, case-insensitive, and
// must not contain the delimiter used by the local labels column.
func (c *Client) AddLabel(ctx context.Context, name string) (*Label, error) {
	if err := validateLabelName(name); err != nil {
		return nil, err
	}

	l := &Label{ID: newID(), UserID: c.config.UserID, Name: name}

	if c.IsOnline() {
		if taken, err := c.labelNameTaken(name); err != nil {
			return nil, err
		} else if taken {
			return nil, ErrDuplicateLabel
		}
		if err := c.remote.AddLabel(ctx, l); err != nil {
			return nil, err
		}
		if err := c.store.AddLabel(l, nil); err != nil {
			return nil, err
		}
	} else {
		payload, err := json.Marshal(l)
		if err != nil {
			return nil, err
		}
		op := &OfflineOperation{Kind: OpAdd, Entity: EntityLabel, EntityID: l.ID, Payload: payload}
		if err := c.store.AddLabel(l, op); err != nil {
			return nil, err
		}
	}

	c.publish()
	return l, nil
}

// UpdateLabel renames a label. The local store fans the rename out to every
// referencing note; online, the server performs the same fan-out.
func (c *Client) UpdateLabel(ctx context.Context, id, newName string) error {
	if err := validateLabelName(newName); err != nil {
		return err
	}

	l, err := c.store.GetLabel(id)
	if err != nil {
		return err
	}

	if c.IsOnline() {
		if err := c.remote.RenameLabel(ctx, id, newName); err != nil {
			return err
		}
		if err := c.store.RenameLabel(id, newName, nil); err != nil {
			return err
		}
	} else {
		payload, err := json.Marshal(Label{ID: id, UserID: l.UserID, Name: newName})
		if err != nil {
			return err
		}
		op := &OfflineOperation{Kind: OpUpdate, Entity: EntityLabel, EntityID: id, Payload: payload}
		if err := c.store.RenameLabel(id, newName, op); err != nil {
			return err
		}
	}

	c.publish()
	return nil
}

// DeleteLabel removes a label, stripping it from every referencing note.
// Offline this queues exactly one operation for the whole cascade.
func (c *Client) DeleteLabel(ctx context.Context, id string) error {
	if c.IsOnline() {
		if err := c.remote.DeleteLabel(ctx, id); err != nil {
			return err
		}
		if err := c.store.DeleteLabel(id, nil); err != nil {
			return err
		}
	} else {
		op := &OfflineOperation{Kind: OpDelete, Entity: EntityLabel, EntityID: id}
		if err := c.store.DeleteLabel(id, op); err != nil {
			return err
		}
	}

	c.publish()
	return nil
}

// ToggleLabelForNotes applies or removes one label across a set of notes, as
// a single routed mutation with a single queued operation offline.
func (c *Client) ToggleLabelForNotes(ctx context.Context, labelName string, checked bool, noteIDs []string) error {
	params := ToggleLabelParams{LabelName: labelName, Checked: checked, NoteIDs: noteIDs}

	if c.IsOnline() {
		if err := c.remote.ToggleLabel(ctx, c.config.UserID, params); err != nil {
			return err
		}
		if err := c.store.ToggleLabel(params, nil); err != nil {
			return err
		}
	} else {
		payload, err := json.Marshal(params)
		if err != nil {
			return err
		}
		op := &OfflineOperation{Kind: OpToggleLabel, Entity: EntityLabelNote, EntityID: labelName, Payload: payload}
		if err := c.store.ToggleLabel(params, op); err != nil {
			return err
		}
	}

	c.publish()
	return nil
}

func (c *Client) labelNameTaken(name string) (bool, error) {
	labels, err := c.store.Labels(c.config.UserID)
	if err != nil {
		return false, err
	}
	for _, l := range labels {
		if strings.EqualFold(l.Name, name) {
			return true, nil
		}
	}
	return false, nil
}

// --- Read surface ---

// Notes subscribes to the live active-notes collection.
func (c *Client) Notes() (<-chan []Note, func()) { return c.cols.active.subscribe() }

// ArchivedNotes subscribes to the live archived-notes collection.
func (c *Client) ArchivedNotes() (<-chan []Note, func()) { return c.cols.archived.subscribe() }

// BinNotes subscribes to the live bin collection.
func (c *Client) BinNotes() (<-chan []Note, func()) { return c.cols.bin.subscribe() }

// ReminderNotes subscribes to the live reminder-notes collection.
func (c *Client) ReminderNotes() (<-chan []Note, func()) { return c.cols.reminder.subscribe() }

// Labels subscribes to the live labels collection.
func (c *Client) Labels() (<-chan []Label, func()) { return c.cols.labels.subscribe() }

// ListNotes returns the current snapshot of one lifecycle bucket.
func (c *Client) ListNotes(bucket string) ([]Note, error) {
	switch bucket {
	case "archived":
		return c.store.ArchivedNotes(c.config.UserID)
	case "bin":
		return c.store.BinNotes(c.config.UserID)
	case "reminders":
		return c.store.ReminderNotes(c.config.UserID)
	default:
		return c.store.ActiveNotes(c.config.UserID)
	}
}

// ListLabels returns the current label snapshot.
func (c *Client) ListLabels() ([]Label, error) {
	return c.store.Labels(c.config.UserID)
}

// GetNote returns one note from the local store.
func (c *Client) GetNote(id string) (*Note, error) {
	return c.store.GetNote(id)
}

// publish requeries every collection from the local store and pushes the
// fresh snapshots to subscribers. The local store always reflects the latest
// successful write (it mirrors remote writes while online), so one source
// serves both connectivity states.
func (c *Client) publish() {
	userID := c.config.UserID

	if notes, err := c.store.ActiveNotes(userID); err == nil {
		c.cols.active.publish(notes)
	}
	if notes, err := c.store.ArchivedNotes(userID); err == nil {
		c.cols.archived.publish(notes)
	}
	if notes, err := c.store.BinNotes(userID); err == nil {
		c.cols.bin.publish(notes)
	}
	if notes, err := c.store.ReminderNotes(userID); err == nil {
		c.cols.reminder.publish(notes)
	}
	if labels, err := c.store.Labels(userID); err == nil {
		c.cols.labels.publish(labels)
	}
}

// --- Sync control surface ---

// SyncOfflineChanges triggers a forward drain of the offline operation queue,
// fire-and-forget.
func (c *Client) SyncOfflineChanges() {
	if c.syncer == nil {
		return
	}
	go func() {
		if err := c.syncer.Drain(context.Background(), c.config.UserID); err != nil {
			c.debug.LogError("drain", err)
		}
		c.publish()
	}()
}

// DrainNow replays the offline queue like SyncOfflineChanges but waits for
// the drain to finish.
func (c *Client) DrainNow(ctx context.Context) error {
	if c.syncer == nil {
		return ErrOffline
	}
	err := c.syncer.Drain(ctx, c.config.UserID)
	c.publish()
	return err
}

// SyncOnlineChanges pulls the full remote snapshot for the user and replaces
// the local note and label tables. Note and label failures surface as
// distinct errors.
func (c *Client) SyncOnlineChanges(ctx context.Context, userID string) error {
	if c.syncer == nil {
		return ErrOffline
	}
	if userID == "" {
		userID = c.config.UserID
	}

	err := c.syncer.Reconcile(ctx, userID)
	c.publish()
	return err
}

// --- Supporting surface ---

// SetCurrentUser stores the profile of the account owning this store.
func (c *Client) SetCurrentUser(u User) error {
	if u.UserID == "" {
		u.UserID = c.config.UserID
	}
	return c.store.SetCurrentUser(u)
}

// CurrentUser returns the stored profile for the configured account.
func (c *Client) CurrentUser() (*User, error) {
	return c.store.CurrentUser(c.config.UserID)
}

// Stats returns local store statistics.
func (c *Client) Stats() (*StoreStats, error) {
	return c.store.Stats()
}

// DeadLetters returns operations abandoned under the retry replay policy.
func (c *Client) DeadLetters() ([]DeadLetter, error) {
	return c.store.DeadLetters()
}

// HealthCheck returns the health status of the client.
func (c *Client) HealthCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{Healthy: true, StoreOK: true}

	if _, err := c.store.Stats(); err != nil {
		status.StoreOK = false
		status.Healthy = false
		status.Error = err.Error()
		return status
	}

	if c.remote != nil {
		err := c.remote.Health(ctx)
		status.RemoteReachable = err == nil
		if err != nil && status.Error == "" {
			status.Error = err.Error()
		}
	}

	return status
}

// handleOnline runs on every offline-to-online transition: drain the queue,
// refresh subscribers, and (re)establish the live remote watch.
func (c *Client) handleOnline() {
	go func() {
		if err := c.syncer.Drain(context.Background(), c.config.UserID); err != nil {
			c.debug.LogError("drain", err)
		}
		c.publish()
		c.startWatch()
	}()
}

// startWatch opens the remote live change stream, mirroring each pushed
// change into the local store and republishing the collections. While the
// watch runs, the exposed streams are sourced from remote pushes; when it
// drops, they fall back to local requeries until the next transition.
func (c *Client) startWatch() {
	c.watchMu.Lock()
	defer c.watchMu.Unlock()

	if c.watchCancel != nil {
		return // already watching
	}

	ctx, cancel := context.WithCancel(context.Background())
	events, err := c.remote.Watch(ctx, c.config.UserID)
	if err != nil {
		cancel()
		c.debug.LogError("watch", err)
		return
	}

	c.watchCancel = cancel
	c.watchDone = make(chan struct{})

	go func() {
		defer close(c.watchDone)
		for ev := range events {
			c.applyChange(ev)
			c.publish()
		}

		c.watchMu.Lock()
		c.watchCancel = nil
		c.watchMu.Unlock()
	}()
}

// stopWatch cancels the live stream and waits for its goroutine.
func (c *Client) stopWatch() {
	c.watchMu.Lock()
	cancel := c.watchCancel
	done := c.watchDone
	c.watchCancel = nil
	c.watchMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
		}
	}
}

// applyChange mirrors one pushed remote change into the local store. Remote
// state is authoritative, so conflicts resolve in its favor.
func (c *Client) applyChange(ev ChangeEvent) {
	switch {
	case ev.Entity == EntityNote && ev.Op == "put" && ev.Note != nil:
		if err := c.store.SaveNote(ev.Note, nil); err != nil {
			c.debug.LogError("watch mirror", err)
		}
	case ev.Entity == EntityNote && ev.Op == "delete" && ev.Note != nil:
		if err := c.store.DeleteNotePermanently(ev.Note.ID, nil); err != nil {
			c.debug.LogError("watch mirror", err)
		}
	case ev.Entity == EntityLabel && ev.Op == "put" && ev.Label != nil:
		if err := c.store.UpsertLabel(ev.Label); err != nil {
			c.debug.LogError("watch mirror", err)
		}
	case ev.Entity == EntityLabel && ev.Op == "delete" && ev.Label != nil:
		if err := c.store.DeleteLabel(ev.Label.ID, nil); err != nil && !errors.Is(err, ErrNotFound) {
			c.debug.LogError("watch mirror", err)
		}
	default:
		c.debug.Log("watch: ignoring malformed event (%s %s)", ev.Entity, ev.Op)
	}
}

// Close stops the monitor and watch, runs a final best-effort drain while
// online, and closes the store.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		if c.monitor != nil {
			c.monitor.Stop()
		}
		c.stopWatch()

		if c.syncer != nil && c.IsOnline() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := c.syncer.Drain(ctx, c.config.UserID); err != nil {
				c.debug.LogError("final drain", err)
			}
			cancel()
		}

		c.debug.Close()
		c.closeErr = c.store.Close()
	})
	return c.closeErr
}
