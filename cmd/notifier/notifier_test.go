package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/example/commute-rides/internal/models"
)

// fakeInbox implements Inbox for tests
type fakeInbox struct {
	fail   int // number of pushes to fail before succeeding
	calls  int
	lastTo string
	last   []byte
}

func (f *fakeInbox) Push(ctx context.Context, empID string, payload []byte) error {
	f.calls++
	if f.calls <= f.fail {
		return errors.New("push fail")
	}
	f.lastTo = empID
	f.last = payload
	return nil
}

func TestStoreWithRetry_SucceedsAfterRetries(t *testing.T) {
	f := &fakeInbox{fail: 2}
	n := models.Notification{RecipientID: "e1", Message: "Employee Bala joined your ride."}
	start := time.Now()
	if err := storeWithRetry(context.Background(), f, n, 3, 10*time.Millisecond); err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if f.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", f.calls)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatalf("expected at least one backoff")
	}
	if f.lastTo != "e1" {
		t.Fatalf("wrong inbox: %s", f.lastTo)
	}
	var entry inboxEntry
	if err := json.Unmarshal(f.last, &entry); err != nil {
		t.Fatalf("payload not json: %v", err)
	}
	if entry.Message != n.Message {
		t.Fatalf("message = %q, want %q", entry.Message, n.Message)
	}
	if entry.ReceivedAt.IsZero() {
		t.Fatal("receivedAt not stamped")
	}
}

func TestStoreWithRetry_FailsWhenExhausted(t *testing.T) {
	f := &fakeInbox{fail: 5}
	n := models.Notification{RecipientID: "e1", Message: "hi"}
	if err := storeWithRetry(context.Background(), f, n, 3, 5*time.Millisecond); err == nil {
		t.Fatalf("expected error after retries")
	}
}
