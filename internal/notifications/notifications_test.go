// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package notifications

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/shelfwatch/shelfwatch/internal/models"
)

func testSender() *Sender {
	return &Sender{http: &http.Client{Timeout: time.Second}}
}

func TestSendDiscordPayload(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Error(err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	platform := &models.NotificationPlatform{
		Kind:     models.PlatformDiscord,
		Settings: models.NotificationPlatformSettings{WebhookURL: server.URL},
	}
	if err := testSender().Send(context.Background(), platform, "Dune was published"); err != nil {
		t.Fatal(err)
	}
	if got["content"] != "Dune was published" {
		t.Fatalf("payload: %+v", got)
	}
}

func TestSendGotifyHeadersAndPriority(t *testing.T) {
	var (
		key string
		got map[string]any
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key = r.Header.Get("X-Gotify-Key")
		if r.URL.Path != "/message" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Error(err)
		}
	}))
	defer server.Close()

	priority := 7
	platform := &models.NotificationPlatform{
		Kind: models.PlatformGotify,
		Settings: models.NotificationPlatformSettings{
			BaseURL: server.URL, Token: "app-token", Priority: &priority,
		},
	}
	if err := testSender().Send(context.Background(), platform, "hello"); err != nil {
		t.Fatal(err)
	}
	if key != "app-token" {
		t.Fatalf("key header = %q", key)
	}
	if got["priority"] != float64(7) || got["message"] != "hello" {
		t.Fatalf("payload: %+v", got)
	}
}

func TestSendNtfyBodyIsPlainText(t *testing.T) {
	var (
		path  string
		title string
		body  []byte
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		title = r.Header.Get("Title")
		body, _ = io.ReadAll(r.Body)
	}))
	defer server.Close()

	platform := &models.NotificationPlatform{
		Kind:     models.PlatformNtfy,
		Settings: models.NotificationPlatformSettings{BaseURL: server.URL, Topic: "shelfwatch"},
	}
	if err := testSender().Send(context.Background(), platform, "new episode out"); err != nil {
		t.Fatal(err)
	}
	if path != "/shelfwatch" || title != messageTitle || string(body) != "new episode out" {
		t.Fatalf("path=%s title=%s body=%s", path, title, body)
	}
}

func TestSendPushOverForm(t *testing.T) {
	var form map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Error(err)
		}
		form = r.PostForm
	}))
	defer server.Close()

	// Point the fixed endpoint at the test server through a transport
	// rewrite.
	sender := testSender()
	sender.http.Transport = rewriteHost(server.URL)

	platform := &models.NotificationPlatform{
		Kind:     models.PlatformPushOver,
		Settings: models.NotificationPlatformSettings{APIToken: "tok", UserKey: "usr"},
	}
	if err := sender.Send(context.Background(), platform, "msg"); err != nil {
		t.Fatal(err)
	}
	if form["token"][0] != "tok" || form["user"][0] != "usr" || form["message"][0] != "msg" {
		t.Fatalf("form: %+v", form)
	}
}

func TestSendSurfacesHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad webhook", http.StatusBadRequest)
	}))
	defer server.Close()

	platform := &models.NotificationPlatform{
		Kind:     models.PlatformDiscord,
		Settings: models.NotificationPlatformSettings{WebhookURL: server.URL},
	}
	if err := testSender().Send(context.Background(), platform, "msg"); err == nil {
		t.Fatal("expected error")
	}
}

func TestSendEmailUnconfigured(t *testing.T) {
	platform := &models.NotificationPlatform{
		Kind:     models.PlatformEmail,
		Settings: models.NotificationPlatformSettings{ToEmail: "user@example.com"},
	}
	if err := testSender().Send(context.Background(), platform, "msg"); err == nil {
		t.Fatal("expected config error")
	}
}

// rewriteHost redirects every request to the test server regardless of
// the original host.
func rewriteHost(target string) http.RoundTripper {
	return roundTripFunc(func(r *http.Request) (*http.Response, error) {
		r.URL.Scheme = "http"
		r.URL.Host = target[len("http://"):]
		return http.DefaultTransport.RoundTrip(r)
	})
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
