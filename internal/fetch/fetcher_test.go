package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pawhub/ingest-service/internal/model"
)

func TestFetch_SendsBrowserHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html><body>ok</body></html>"))
	}))
	defer srv.Close()

	t.Setenv("TEST_FEED_TOKEN", "s3cret")
	f := New(Config{UserAgent: "UA-test", Accept: AcceptHTML})
	src := model.Source{
		ID:       "site",
		BaseURL:  "https://example.test",
		FetchURL: srv.URL,
		Rules:    model.RuleSet{Headers: map[string]string{"Authorization": "Bearer ${TEST_FEED_TOKEN}"}},
	}

	body, err := f.Fetch(context.Background(), src)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !strings.Contains(string(body), "ok") {
		t.Errorf("body = %q", body)
	}
	if got.Get("User-Agent") != "UA-test" {
		t.Errorf("User-Agent = %q", got.Get("User-Agent"))
	}
	if got.Get("Accept") != AcceptHTML {
		t.Errorf("Accept = %q", got.Get("Accept"))
	}
	if got.Get("Accept-Language") == "" {
		t.Error("Accept-Language should be set")
	}
	if got.Get("Referer") != "https://example.test" {
		t.Errorf("Referer = %q", got.Get("Referer"))
	}
	if got.Get("Authorization") != "Bearer s3cret" {
		t.Errorf("Authorization = %q, want expanded env var", got.Get("Authorization"))
	}
}

func TestFetch_Non2xxIsFetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "blocked", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := New(Config{}).Fetch(context.Background(), model.Source{ID: "blocked-site", FetchURL: srv.URL})

	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want *FetchError", err)
	}
	if fe.Status != http.StatusForbidden || fe.Source != "blocked-site" {
		t.Errorf("FetchError = %+v", fe)
	}
}

func TestFetch_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := New(Config{Timeout: 50 * time.Millisecond}).Fetch(context.Background(), model.Source{ID: "slow", FetchURL: srv.URL})

	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want *FetchError", err)
	}
	if fe.Status != 0 {
		t.Errorf("Status = %d, want 0 for a timeout", fe.Status)
	}
}

func TestFetch_UnreachableHost(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(Config{}).Fetch(context.Background(), model.Source{ID: "gone", FetchURL: url})
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want *FetchError", err)
	}
}

func TestFetch_TranscodesLatin1(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		w.Write([]byte("<p>Caf\xe9</p>"))
	}))
	defer srv.Close()

	body, err := New(Config{}).Fetch(context.Background(), model.Source{ID: "latin", FetchURL: srv.URL})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !strings.Contains(string(body), "Café") {
		t.Errorf("body = %q, want UTF-8 Café", body)
	}
}

func TestFetch_BodyCapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(strings.Repeat("x", 1000)))
	}))
	defer srv.Close()

	body, err := New(Config{MaxBytes: 100}).Fetch(context.Background(), model.Source{ID: "big", FetchURL: srv.URL})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(body) != 100 {
		t.Errorf("len(body) = %d, want 100", len(body))
	}
}
