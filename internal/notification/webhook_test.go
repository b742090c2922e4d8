package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWebhookNotifier_DeliversPayload(t *testing.T) {
	var (
		gotLevel string
		gotBody  webhookPayload
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLevel = r.Header.Get("X-Alert-Level")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	err := n.Send(context.Background(), Alert{
		Level:   AlertSignal,
		Title:   "🚨 New Short Signal: $HUSDT",
		Message: "Entry: 113",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if gotLevel != "SIGNAL" {
		t.Errorf("X-Alert-Level = %q, want SIGNAL", gotLevel)
	}
	if gotBody.Level != "SIGNAL" || gotBody.Title != "🚨 New Short Signal: $HUSDT" {
		t.Errorf("payload = %+v, want level and title carried through", gotBody)
	}
	if gotBody.SentAt == "" {
		t.Error("payload missing sent_at timestamp")
	}
}

func TestWebhookNotifier_NonSuccessStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	if err := n.Send(context.Background(), Alert{Level: AlertInfo, Title: "t"}); err == nil {
		t.Fatal("expected error for 502 response")
	}
}
