package notehive

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestValidationError_Message(t *testing.T) {
	err := &ValidationError{Field: "UserID", Message: "required"}
	if got := err.Error(); got != "config: UserID: required" {
		t.Errorf("Error() = %q", got)
	}
}

func TestSyncError_UnwrapsToCause(t *testing.T) {
	cause := &RemoteError{StatusCode: 500, Body: "boom"}
	err := &SyncError{Operation: "notes", StatusCode: 500, Err: cause}

	var re *RemoteError
	if !errors.As(err, &re) {
		t.Fatal("SyncError should unwrap to the RemoteError cause")
	}
	if re.StatusCode != 500 {
		t.Errorf("StatusCode = %d", re.StatusCode)
	}

	if !strings.Contains(err.Error(), "notes") || !strings.Contains(err.Error(), "500") {
		t.Errorf("Error() = %q, want operation and status", err.Error())
	}
}

func TestSyncError_WithoutStatus(t *testing.T) {
	err := &SyncError{Operation: "drain", Err: errors.New("db locked")}
	if strings.Contains(err.Error(), "status") {
		t.Errorf("Error() = %q, should omit status when unset", err.Error())
	}
}

func TestRemoteError_Message(t *testing.T) {
	if got := (&RemoteError{StatusCode: 404}).Error(); got != "remote: status 404" {
		t.Errorf("Error() = %q", got)
	}
	if got := (&RemoteError{StatusCode: 409, Body: "dup"}).Error(); got != "remote: status 409: dup" {
		t.Errorf("Error() = %q", got)
	}
}

func TestJoinedSyncErrors_BothExtractable(t *testing.T) {
	notesErr := &SyncError{Operation: "notes", Err: errors.New("pull failed")}
	labelsErr := &SyncError{Operation: "labels", Err: errors.New("pull failed")}
	joined := errors.Join(notesErr, labelsErr)

	var se *SyncError
	if !errors.As(joined, &se) {
		t.Fatal("joined error should expose a *SyncError")
	}

	msg := joined.Error()
	if !strings.Contains(msg, "notes") || !strings.Contains(msg, "labels") {
		t.Errorf("joined message %q should name both phases", msg)
	}
}

func TestSentinelsAreDistinct(t *testing.T) {
	sentinels := []error{
		ErrNotFound, ErrStoreClosed, ErrOffline, ErrEmptyNote,
		ErrEmptyLabelName, ErrInvalidLabelName, ErrDuplicateLabel, ErrNoUser,
	}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i != j && errors.Is(a, b) {
				t.Errorf("sentinel %v and %v should be distinct", a, b)
			}
		}
	}
}

func TestSentinels_SurviveWrapping(t *testing.T) {
	wrapped := fmt.Errorf("client: %w", ErrNotFound)
	if !errors.Is(wrapped, ErrNotFound) {
		t.Error("wrapped sentinel should satisfy errors.Is")
	}
}
