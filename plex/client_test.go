package plex

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"plexscan-go/logging"
)

func TestQuotePath(t *testing.T) {
	cases := map[string]string{
		"/media/movies/A.mkv":       "/media/movies/A.mkv",
		"/media/My Movie (2020).mkv": "/media/My%20Movie%20%282020%29.mkv",
		"/media/a,b&c+d.mkv":        "/media/a%2Cb%26c%2Bd.mkv",
		"/媒体/电影.mkv":                "/%E5%AA%92%E4%BD%93/%E7%94%B5%E5%BD%B1.mkv",
	}
	for in, want := range cases {
		if got := QuotePath(in); got != want {
			t.Errorf("QuotePath(%q) = %q; want %q", in, got, want)
		}
	}
}

func TestRefreshURL(t *testing.T) {
	got := RefreshURL("http://plex:32400/", "tok en", "3", []string{"/m/a b.mkv", "/m/c.mkv"})
	want := "http://plex:32400/library/sections/3/refresh?X-Plex-Token=tok+en&path=%2Fm%2Fa%2520b.mkv%2C%2Fm%2Fc.mkv"
	if got != want {
		t.Errorf("RefreshURL = %q; want %q", got, want)
	}
}

func TestRefreshSection(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("path")
		if r.URL.Query().Get("X-Plex-Token") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(5*time.Second, logging.Discard())
	err := c.RefreshSection(context.Background(), srv.URL, "secret", "1", []string{"/media/A B.mkv", "/media/x,y.mkv"})
	if err != nil {
		t.Fatalf("RefreshSection failed: %v", err)
	}
	if gotPath != "/library/sections/1/refresh" {
		t.Errorf("path = %q", gotPath)
	}
	parts := strings.Split(gotQuery, ",")
	if len(parts) != 2 {
		t.Fatalf("path parameter %q should hold two paths", gotQuery)
	}
	for i, want := range []string{"/media/A B.mkv", "/media/x,y.mkv"} {
		got, err := url.PathUnescape(parts[i])
		if err != nil || got != want {
			t.Errorf("path[%d] = %q (%v); want %q", i, got, err, want)
		}
	}
}

func TestRefreshSectionStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("unavailable"))
	}))
	defer srv.Close()

	c := NewClient(5*time.Second, logging.Discard())
	err := c.RefreshSection(context.Background(), srv.URL, "t", "1", []string{"/a"})

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != 503 || statusErr.Body != "unavailable" {
		t.Errorf("StatusError = %+v", statusErr)
	}
	if !strings.Contains(err.Error(), "503") || !strings.Contains(err.Error(), "unavailable") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestRefreshSectionKeepsWholeBody(t *testing.T) {
	body := strings.Repeat("x", 200<<10) + "END"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	c := NewClient(5*time.Second, logging.Discard())
	err := c.RefreshSection(context.Background(), srv.URL, "t", "1", []string{"/a"})

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.Body != body {
		t.Errorf("body length = %d; want %d", len(statusErr.Body), len(body))
	}
}

func TestRefreshSectionTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(100*time.Millisecond, logging.Discard())
	start := time.Now()
	err := c.RefreshSection(context.Background(), srv.URL, "t", "1", []string{"/a"})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > 3*time.Second {
		t.Errorf("request was not bounded by the client timeout")
	}
}

func TestSectionsAndIdentity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Plex-Token") != "tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/library/sections":
			_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<MediaContainer size="2">
  <Directory key="1" title="Movies" type="movie"><Location id="4" path="/media/movies"/></Directory>
  <Directory key="2" title="TV Shows" type="show"><Location id="5" path="/media/tv"/><Location id="6" path="/media/tv2"/></Directory>
</MediaContainer>`))
		case "/identity":
			_, _ = w.Write([]byte(`<MediaContainer size="0" machineIdentifier="abc123" version="1.40.0"/>`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(5*time.Second, logging.Discard())
	sections, err := c.Sections(context.Background(), srv.URL, "tok")
	if err != nil {
		t.Fatalf("Sections failed: %v", err)
	}
	if len(sections) != 2 || sections[1].Title != "TV Shows" || len(sections[1].Locations) != 2 {
		t.Fatalf("Sections = %+v", sections)
	}
	if sections[0].Locations[0].Path != "/media/movies" {
		t.Errorf("location = %+v", sections[0].Locations[0])
	}

	id, err := c.Identity(context.Background(), srv.URL, "tok")
	if err != nil {
		t.Fatalf("Identity failed: %v", err)
	}
	if id.MachineIdentifier != "abc123" || id.Version != "1.40.0" {
		t.Errorf("Identity = %+v", id)
	}

	if _, err := c.Identity(context.Background(), srv.URL, "wrong"); err == nil {
		t.Error("expected error for bad token")
	}
}
