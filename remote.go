package notehive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Remote abstracts communication with the Nimbus cloud notes service.
// Implementations must be safe for concurrent use.
//
// Every write except AddNote and AddLabel is a per-field partial update on
// the server; AddNote and AddLabel write the full entity.
type Remote interface {
	// Health validates connectivity. It is the connectivity oracle's probe.
	Health(ctx context.Context) error

	AddNote(ctx context.Context, n *Note) error
	UpdateNote(ctx context.Context, n *Note) error
	ArchiveNote(ctx context.Context, id string, archived bool) error
	MoveNoteToBin(ctx context.Context, id string) error
	RestoreNote(ctx context.Context, id string) error
	DeleteNote(ctx context.Context, id string) error
	SetReminder(ctx context.Context, id string, at *time.Time) error

	AddLabel(ctx context.Context, l *Label) error
	RenameLabel(ctx context.Context, id, name string) error
	DeleteLabel(ctx context.Context, id string) error
	ToggleLabel(ctx context.Context, userID string, params ToggleLabelParams) error

	// FetchNotes and FetchLabels return the complete current entity sets for
	// the user (snapshot, not incremental). Used by reverse reconciliation.
	FetchNotes(ctx context.Context, userID string) ([]Note, error)
	FetchLabels(ctx context.Context, userID string) ([]Label, error)

	// Watch opens the live change subscription for the user. Events arrive
	// on the returned channel until ctx is cancelled or the connection
	// drops; the channel is closed on either.
	Watch(ctx context.Context, userID string) (<-chan ChangeEvent, error)
}

// HTTPRemote implements Remote against the Nimbus HTTP API.
type HTTPRemote struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	debug      *DebugLogger
}

// NewHTTPRemote creates a Nimbus client.
func NewHTTPRemote(nimbusURL, apiKey string, debug *DebugLogger) *HTTPRemote {
	return &HTTPRemote{
		baseURL: strings.TrimSuffix(nimbusURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		debug: debug,
	}
}

// WithHTTPClient sets a custom http.Client (for testing or custom timeouts).
func (r *HTTPRemote) WithHTTPClient(client *http.Client) *HTTPRemote {
	r.httpClient = client
	return r
}

// Health probes the service health endpoint.
func (r *HTTPRemote) Health(ctx context.Context) error {
	return r.do(ctx, http.MethodGet, "/api/v1/health", nil, nil)
}

// AddNote creates a note, writing the full entity.
func (r *HTTPRemote) AddNote(ctx context.Context, n *Note) error {
	return r.do(ctx, http.MethodPost, "/api/v1/notes", n, nil)
}

// UpdateNote rewrites the note's user-editable fields.
func (r *HTTPRemote) UpdateNote(ctx context.Context, n *Note) error {
	return r.do(ctx, http.MethodPut, "/api/v1/notes/"+url.PathEscape(n.ID), n, nil)
}

// ArchiveNote flips the archived flag, clearing the bin flag.
func (r *HTTPRemote) ArchiveNote(ctx context.Context, id string, archived bool) error {
	return r.patchNote(ctx, id, map[string]any{"archived": archived, "in_bin": false})
}

// MoveNoteToBin moves the note to the bin.
func (r *HTTPRemote) MoveNoteToBin(ctx context.Context, id string) error {
	return r.patchNote(ctx, id, map[string]any{"in_bin": true, "archived": false})
}

// RestoreNote returns the note from the bin to the active bucket.
func (r *HTTPRemote) RestoreNote(ctx context.Context, id string) error {
	return r.patchNote(ctx, id, map[string]any{"in_bin": false, "archived": false})
}

// DeleteNote permanently deletes the note.
func (r *HTTPRemote) DeleteNote(ctx context.Context, id string) error {
	return r.do(ctx, http.MethodDelete, "/api/v1/notes/"+url.PathEscape(id), nil, nil)
}

// SetReminder sets or clears the note's reminder.
func (r *HTTPRemote) SetReminder(ctx context.Context, id string, at *time.Time) error {
	fields := map[string]any{"has_reminder": at != nil}
	if at != nil {
		fields["reminder_time"] = at.UTC().Format(time.RFC3339)
	} else {
		fields["reminder_time"] = nil
	}
	return r.patchNote(ctx, id, fields)
}

func (r *HTTPRemote) patchNote(ctx context.Context, id string, fields map[string]any) error {
	return r.do(ctx, http.MethodPatch, "/api/v1/notes/"+url.PathEscape(id), fields, nil)
}

// AddLabel creates a label, writing the full entity.
func (r *HTTPRemote) AddLabel(ctx context.Context, l *Label) error {
	return r.do(ctx, http.MethodPost, "/api/v1/labels", l, nil)
}

// RenameLabel renames a label; the server fans the rename out to notes.
func (r *HTTPRemote) RenameLabel(ctx context.Context, id, name string) error {
	return r.do(ctx, http.MethodPatch, "/api/v1/labels/"+url.PathEscape(id), map[string]any{"name": name}, nil)
}

// DeleteLabel deletes a label; the server strips it from notes.
func (r *HTTPRemote) DeleteLabel(ctx context.Context, id string) error {
	return r.do(ctx, http.MethodDelete, "/api/v1/labels/"+url.PathEscape(id), nil, nil)
}

// ToggleLabel applies or removes one label across a set of notes.
func (r *HTTPRemote) ToggleLabel(ctx context.Context, userID string, params ToggleLabelParams) error {
	body := struct {
		UserID string `json:"user_id"`
		ToggleLabelParams
	}{UserID: userID, ToggleLabelParams: params}
	return r.do(ctx, http.MethodPost, "/api/v1/labels/toggle", body, nil)
}

// FetchNotes downloads the user's complete note set.
func (r *HTTPRemote) FetchNotes(ctx context.Context, userID string) ([]Note, error) {
	var out struct {
		Notes []Note `json:"notes"`
	}
	path := "/api/v1/notes?user_id=" + url.QueryEscape(userID)
	if err := r.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Notes, nil
}

// FetchLabels downloads the user's complete label set.
func (r *HTTPRemote) FetchLabels(ctx context.Context, userID string) ([]Label, error) {
	var out struct {
		Labels []Label `json:"labels"`
	}
	path := "/api/v1/labels?user_id=" + url.QueryEscape(userID)
	if err := r.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Labels, nil
}

// do performs one HTTP round trip. A nil out discards the response body; a
// non-2xx status becomes a *RemoteError.
func (r *HTTPRemote) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	var encoded []byte
	if body != nil {
		var err error
		encoded, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("remote: encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
	if err != nil {
		return err
	}
	r.setHeaders(req)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	r.debug.LogRequest(method, r.baseURL+path, encoded)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		r.debug.LogResponse(resp.StatusCode, resp.Status, respBody)
		return &RemoteError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	r.debug.LogResponse(resp.StatusCode, resp.Status, nil)

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("remote: decode response: %w", err)
		}
	}
	return nil
}

func (r *HTTPRemote) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("User-Agent", "notehive-client/1.0")
}
