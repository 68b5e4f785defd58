package progress

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestClientPostsEntry(t *testing.T) {
	var got Entry
	var auth, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		path = r.URL.Path
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL+"/api/", "u-42", "secret")
	if err != nil {
		t.Fatal(err)
	}
	when := time.Date(2026, 4, 1, 7, 30, 0, 0, time.UTC)
	e := NewEntry("meditation", 180, "foco", when, &CustomAudio{Type: "file", URL: "/music/rain.mp3"})
	if err := c.Commit(context.Background(), e); err != nil {
		t.Fatal(err)
	}
	if auth != "Bearer secret" {
		t.Errorf("authorization: %q", auth)
	}
	if path != "/api/users/u-42/sessions" {
		t.Errorf("path: %q", path)
	}
	if got.ID == "" || got.ID != e.ID || got.Duration != 180 || got.SessionID != "foco" || !got.CompletedAt.Equal(when) {
		t.Errorf("entry: %+v", got)
	}
	if got.CustomAudio == nil || got.CustomAudio.URL != "/music/rain.mp3" {
		t.Errorf("custom audio: %+v", got.CustomAudio)
	}
}

func TestClientReportsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, "", "")
	err := c.Commit(context.Background(), NewEntry("breathing", 60, "box", time.Now(), nil))
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("expected server error, got %v", err)
	}
}

func TestNewClientRejectsBadURL(t *testing.T) {
	if _, err := NewClient("ftp://example.com", "", ""); err == nil {
		t.Fatal("expected error")
	}
}

func TestNopIsDisabled(t *testing.T) {
	if err := (Nop{}).Commit(context.Background(), Entry{}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("got %v", err)
	}
}

func TestEntryIDsUnique(t *testing.T) {
	seen := map[string]bool{}
	for range 100 {
		id := NewEntry("breathing", 1, "box", time.Now(), nil).ID
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}
