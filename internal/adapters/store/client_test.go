package store

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/collabquest/relay/internal/core"
	"github.com/collabquest/relay/internal/domain"
)

func TestGroupLookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/groups/g-1" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		json.NewEncoder(w).Encode(domain.Group{
			ID:      "g-1",
			Name:    "team",
			AdminID: "alice",
			Members: []domain.UserID{"alice", "bob"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	g, err := c.Group(context.Background(), "g-1")
	if err != nil {
		t.Fatalf("Group: %v", err)
	}
	if g.Name != "team" || len(g.Members) != 2 {
		t.Errorf("unexpected group: %+v", g)
	}
}

func TestNotFoundMapsToSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	if _, err := c.Group(context.Background(), "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := c.User(context.Background(), "ghost"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestContactsUnwrapsUsers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/alice/contacts" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode([]domain.User{{ID: "bob"}, {ID: "carol"}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	got, err := c.Contacts(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Contacts: %v", err)
	}
	if len(got) != 2 || got[0] != "bob" || got[1] != "carol" {
		t.Errorf("unexpected contacts: %v", got)
	}
}

func TestSaveMessagePostsJSON(t *testing.T) {
	var received domain.Message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/messages" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	msg, err := domain.NewMessage("alice", "bob", "hi", nil)
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	if err := c.SaveMessage(context.Background(), msg); err != nil {
		t.Fatalf("SaveMessage: %v", err)
	}
	if received.Content != "hi" || received.SenderID != "alice" {
		t.Errorf("unexpected stored message: %+v", received)
	}
}

func TestPostErrorStatusSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	if err := c.SaveNotification(context.Background(), &domain.Notification{RecipientID: "bob", Kind: "invitation"}); err == nil {
		t.Error("non-2xx responses must surface as errors")
	}
}
