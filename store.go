package notehive

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/notehive/notehive/internal/store/migrations"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

const schemaVersion = "1"

// labelDelimiter joins label names into the notes.labels column. Label names
// are validated against it at creation time.
const labelDelimiter = ","

// Store manages the local SQLite note database: the durable cache of notes,
// labels, the current user, and the offline operation queue.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	path   string
}

// NewStore opens or creates a local note store.
func NewStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for better concurrent access
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	store := &Store{db: db, path: path}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return store, nil
}

func (s *Store) migrate() error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("store: set goose dialect: %w", err)
	}
	if err := goose.Up(s.db, "."); err != nil {
		return fmt.Errorf("store: run migrations: %w", err)
	}

	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO metadata (key, value) VALUES ('schema_version', ?)
	`, schemaVersion)
	return err
}

// SetCurrentUser upserts the profile of the account owning this store.
func (s *Store) SetCurrentUser(u User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	_, err := s.db.Exec(`
		INSERT INTO users (user_id, name, email, photo_url)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET name=excluded.name, email=excluded.email, photo_url=excluded.photo_url
	`, u.UserID, u.Name, u.Email, u.PhotoURL)
	if err != nil {
		return fmt.Errorf("store: upsert user: %w", err)
	}
	return nil
}

// CurrentUser returns the stored profile for the given user ID.
func (s *Store) CurrentUser(userID string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	var u User
	err := s.db.QueryRow(`
		SELECT user_id, name, email, photo_url FROM users WHERE user_id = ?
	`, userID).Scan(&u.UserID, &u.Name, &u.Email, &u.PhotoURL)
	if err == sql.ErrNoRows {
		return nil, ErrNoUser
	}
	if err != nil {
		return nil, fmt.Errorf("store: query user: %w", err)
	}
	return &u, nil
}

// SetMetadata stores a key/value pair in the metadata table.
func (s *Store) SetMetadata(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	_, err := s.db.Exec(`
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value
	`, key, value)
	return err
}

// Metadata reads a value from the metadata table; empty string if unset.
func (s *Store) Metadata(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", ErrStoreClosed
	}

	var value string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// Stats returns store statistics.
func (s *Store) Stats() (*StoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	stats := &StoreStats{SchemaVersion: schemaVersion}

	if err := s.db.QueryRow("SELECT COUNT(*) FROM notes").Scan(&stats.NoteCount); err != nil {
		return nil, err
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM labels").Scan(&stats.LabelCount); err != nil {
		return nil, err
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM offline_operations").Scan(&stats.PendingOps); err != nil {
		return nil, err
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM dead_letters").Scan(&stats.DeadLetters); err != nil {
		return nil, err
	}

	var lastReconcile string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = 'last_reconcile'").Scan(&lastReconcile)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	if err == nil {
		stats.LastReconcile, _ = time.Parse(time.RFC3339, lastReconcile)
	}

	return stats, nil
}

// Close closes the store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}

// encodeLabels joins label names for the notes.labels column.
func encodeLabels(labels []string) *string {
	if len(labels) == 0 {
		return nil
	}
	joined := strings.Join(labels, labelDelimiter)
	return &joined
}

// decodeLabels splits the notes.labels column back into label names.
func decodeLabels(s sql.NullString) []string {
	if !s.Valid || s.String == "" {
		return nil
	}
	return strings.Split(s.String, labelDelimiter)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
