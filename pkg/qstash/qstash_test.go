package qstash

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewClientRequiresDestination(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{URL: "https://qstash.example", Token: "tok"})
	if !errors.Is(err, ErrDestinationRequired) {
		t.Fatalf("NewClient() error = %v, want ErrDestinationRequired", err)
	}
}

func TestPublishPostsToDestination(t *testing.T) {
	t.Parallel()

	var gotPath, gotAuth, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"messageId":"m-1"}`))
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(Config{
		URL:         server.URL,
		Token:       "tok",
		Destination: "https://hooks.example/retail",
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	client.WithHTTPClient(server.Client())

	if err := client.Publish(context.Background(), []byte(`{"kind":"run"}`)); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if gotPath != "/v2/publish/https://hooks.example/retail" && gotPath != "/v2/publish/https:/hooks.example/retail" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
	if gotBody != `{"kind":"run"}` {
		t.Fatalf("body = %q", gotBody)
	}
}

func TestPublishSurfacesHTTPStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(Config{URL: server.URL, Token: "tok", Destination: "https://hooks.example/x"})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	client.WithHTTPClient(server.Client())

	if err := client.Publish(context.Background(), []byte(`{}`)); err == nil {
		t.Fatal("Publish() error = nil, want status error")
	}
}
