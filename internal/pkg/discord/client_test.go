package discord

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAddMemberRoleSendsBotAuth(t *testing.T) {
	var gotMethod, gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewClient(Config{BotToken: "tok", GuildID: "g1", BaseURL: srv.URL})
	if err := client.AddMemberRole(context.Background(), "u1", "r1"); err != nil {
		t.Fatalf("AddMemberRole: %v", err)
	}
	if gotMethod != http.MethodPut {
		t.Fatalf("expected PUT, got %s", gotMethod)
	}
	if gotPath != "/guilds/g1/members/u1/roles/r1" {
		t.Fatalf("unexpected path %s", gotPath)
	}
	if gotAuth != "Bot tok" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
}

func TestRemoveMemberRoleNonNoContentFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	client := NewClient(Config{BotToken: "tok", GuildID: "g1", BaseURL: srv.URL})
	if err := client.RemoveMemberRole(context.Background(), "u1", "r1"); err == nil {
		t.Fatal("expected error on 403")
	}
}

func TestMemberRoleUnconfiguredClient(t *testing.T) {
	client := NewClient(Config{})
	if err := client.AddMemberRole(context.Background(), "u1", "r1"); err == nil {
		t.Fatal("expected error for unconfigured client")
	}
}

func TestExecuteWebhook(t *testing.T) {
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewClient(Config{})
	if err := client.ExecuteWebhook(context.Background(), srv.URL, WebhookMessage{Content: "hello"}); err != nil {
		t.Fatalf("ExecuteWebhook: %v", err)
	}
	if gotContentType != "application/json" {
		t.Fatalf("unexpected content type %q", gotContentType)
	}

	if err := client.ExecuteWebhook(context.Background(), srv.URL, WebhookMessage{}); err == nil {
		t.Fatal("expected error for empty content")
	}
}
