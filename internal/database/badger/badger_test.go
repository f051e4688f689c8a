package badger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kozaktomas/face-recall/internal/database"
	"github.com/kozaktomas/face-recall/internal/facematch"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Options{InMemory: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_Identities(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	bob := facematch.KnownIdentity{ID: "bob", OwnerID: "p2", DisplayName: "Bob", Embedding: []float32{0.4, 0.5}, CreatedAt: base.Add(time.Minute)}
	alice := facematch.KnownIdentity{ID: "alice", OwnerID: "p1", DisplayName: "Alice", Embedding: []float32{0.1, 0.2}, ImagePath: "alice.jpg", CreatedAt: base}

	for _, ident := range []facematch.KnownIdentity{bob, alice} {
		if err := s.InsertIdentity(ctx, ident); err != nil {
			t.Fatalf("InsertIdentity(%s): %v", ident.ID, err)
		}
	}

	if err := s.InsertIdentity(ctx, alice); !errors.Is(err, database.ErrIdentityExists) {
		t.Errorf("expected ErrIdentityExists, got %v", err)
	}

	got, err := s.GetIdentity(ctx, "alice")
	if err != nil {
		t.Fatalf("GetIdentity: %v", err)
	}
	if got == nil || got.DisplayName != "Alice" || got.ImagePath != "alice.jpg" || len(got.Embedding) != 2 {
		t.Errorf("unexpected identity: %+v", got)
	}

	missing, err := s.GetIdentity(ctx, "nobody")
	if err != nil || missing != nil {
		t.Errorf("expected nil, nil for missing identity; got %+v, %v", missing, err)
	}

	all, err := s.ListIdentities(ctx)
	if err != nil {
		t.Fatalf("ListIdentities: %v", err)
	}
	if len(all) != 2 || all[0].ID != "alice" || all[1].ID != "bob" {
		t.Errorf("expected creation order [alice bob], got %+v", all)
	}

	changed, err := s.AssignOwner(ctx, "p1")
	if err != nil {
		t.Fatalf("AssignOwner: %v", err)
	}
	if changed != 1 {
		t.Errorf("expected 1 changed identity, got %d", changed)
	}
	owned, err := s.ListIdentitiesByOwner(ctx, "p1")
	if err != nil {
		t.Fatalf("ListIdentitiesByOwner: %v", err)
	}
	if len(owned) != 2 {
		t.Errorf("expected 2 identities owned by p1, got %d", len(owned))
	}

	count, err := s.CountIdentities(ctx)
	if err != nil || count != 2 {
		t.Errorf("CountIdentities = %d, %v; want 2", count, err)
	}
}

func TestStore_AppendEntry(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	conv, err := s.GetConversation(ctx, "p1", "alice")
	if err != nil || conv != nil {
		t.Fatalf("expected no conversation yet, got %+v, %v", conv, err)
	}

	for i, text := range []string{"hello", "nice weather"} {
		entry := database.TranscriptEntry{Text: text, Timestamp: ts.Add(time.Duration(i) * time.Second)}
		if err := s.AppendEntry(ctx, "p1", "alice", entry); err != nil {
			t.Fatalf("AppendEntry: %v", err)
		}
	}

	conv, err = s.GetConversation(ctx, "p1", "alice")
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if conv == nil || len(conv.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %+v", conv)
	}
	if conv.Entries[0].Text != "hello" || conv.Entries[1].Text != "nice weather" {
		t.Errorf("entries out of order: %+v", conv.Entries)
	}
	if !conv.Entries[1].Timestamp.Equal(ts.Add(time.Second)) {
		t.Errorf("timestamp not preserved: %v", conv.Entries[1].Timestamp)
	}
}

func TestStore_ConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	const writers = 8
	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entry := database.TranscriptEntry{Text: fmt.Sprintf("line %d", i), Timestamp: time.Now()}
			if err := s.AppendEntry(ctx, "p1", "bob", entry); err != nil {
				t.Errorf("AppendEntry %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	conv, err := s.GetConversation(ctx, "p1", "bob")
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if conv == nil || len(conv.Entries) != writers {
		t.Fatalf("expected %d entries, got %+v", writers, conv)
	}
}

func TestStore_ListConversationsAndStats(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	entry := database.TranscriptEntry{Text: "hi", Timestamp: time.Now()}

	pairs := [][2]string{{"p1", "alice"}, {"p1", "bob"}, {"p1/x", "carol"}, {"p2", "alice"}}
	for _, p := range pairs {
		if err := s.AppendEntry(ctx, p[0], p[1], entry); err != nil {
			t.Fatalf("AppendEntry: %v", err)
		}
	}

	convs, err := s.ListConversations(ctx, "p1")
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(convs) != 2 {
		t.Errorf("expected 2 conversations for p1, got %d", len(convs))
	}
	for _, c := range convs {
		if c.PatientID != "p1" {
			t.Errorf("foreign conversation leaked: %+v", c)
		}
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Conversations != 4 || stats.Entries != 4 || stats.Identities != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestStore_SlashInIDsKeepsPairsApart(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.AppendEntry(ctx, "a/b", "c", database.TranscriptEntry{Text: "first", Timestamp: time.Now()}); err != nil {
		t.Fatalf("AppendEntry: %v", err)
	}
	if err := s.AppendEntry(ctx, "a", "b/c", database.TranscriptEntry{Text: "second", Timestamp: time.Now()}); err != nil {
		t.Fatalf("AppendEntry: %v", err)
	}

	tests := []struct {
		patient, person, text string
	}{
		{"a/b", "c", "first"},
		{"a", "b/c", "second"},
	}
	for _, tt := range tests {
		t.Run(tt.patient+"|"+tt.person, func(t *testing.T) {
			conv, err := s.GetConversation(ctx, tt.patient, tt.person)
			if err != nil {
				t.Fatalf("GetConversation: %v", err)
			}
			if conv == nil || conv.PatientID != tt.patient || conv.KnownPersonID != tt.person {
				t.Fatalf("wrong conversation: %+v", conv)
			}
			if len(conv.Entries) != 1 || conv.Entries[0].Text != tt.text {
				t.Errorf("expected single entry %q, got %+v", tt.text, conv.Entries)
			}
		})
	}

	convs, err := s.ListConversations(ctx, "a")
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(convs) != 1 || convs[0].KnownPersonID != "b/c" {
		t.Errorf("expected only a|b/c, got %+v", convs)
	}
}
