package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*HTTPClient, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := NewHTTPClient("key", "secret", server.URL, 5*time.Second)
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}
	return client, server
}

func TestHTTPClient_RequestShape(t *testing.T) {
	var got *http.Request
	var body map[string]interface{}
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decoding body: %v", err)
		}
		w.Write([]byte(`{}`))
	})

	err := client.UpsertUser(context.Background(), UpsertUserParams{
		ID:   "u1",
		Name: "Alice",
		Role: "user",
		Custom: map[string]interface{}{
			"categories": []string{"cards"},
		},
	})
	if err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}

	if got.URL.Path != "/users" {
		t.Fatalf("unexpected path %s", got.URL.Path)
	}
	if got.URL.Query().Get("api_key") != "key" {
		t.Fatal("expected api_key in query")
	}
	if got.Header.Get("Stream-Auth-Type") != "jwt" {
		t.Fatal("expected jwt auth type header")
	}

	// The Authorization header must be a server-scoped token signed with
	// the api secret.
	token, err := jwt.Parse(got.Header.Get("Authorization"), func(t *jwt.Token) (interface{}, error) {
		return []byte("secret"), nil
	})
	if err != nil || !token.Valid {
		t.Fatalf("invalid server token: %v", err)
	}
	claims := token.Claims.(jwt.MapClaims)
	if claims["server"] != true {
		t.Fatalf("expected server claim, got %v", claims)
	}

	users, ok := body["users"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected users map, got %T", body["users"])
	}
	user, ok := users["u1"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected user keyed by id, got %v", users)
	}
	if user["name"] != "Alice" || user["role"] != "user" {
		t.Fatalf("unexpected user payload: %v", user)
	}
	if _, ok := user["categories"]; !ok {
		t.Fatal("expected custom attributes flattened into the user payload")
	}
}

func TestHTTPClient_ErrorEnvelope(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code": 4, "message": "input error", "StatusCode": 400}`))
	})

	err := client.DeleteUser(context.Background(), "u1", true)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "input error") || !strings.Contains(err.Error(), "code 4") {
		t.Fatalf("expected decoded envelope in error, got %v", err)
	}
}

func TestHTTPClient_PublishActivity(t *testing.T) {
	var body map[string]interface{}
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/feeds/activities" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decoding body: %v", err)
		}
		w.Write([]byte(`{"activity": {"id": "announcement:abc"}}`))
	})

	id, err := client.PublishActivity(context.Background(), PublishActivityParams{
		ID:    "announcement:abc",
		Feeds: []string{"cards:global"},
		Text:  "hello",
	})
	if err != nil {
		t.Fatalf("PublishActivity: %v", err)
	}
	if id != "announcement:abc" {
		t.Fatalf("unexpected activity id %s", id)
	}
	if body["id"] != "announcement:abc" {
		t.Fatalf("expected stable client-chosen id, got %v", body["id"])
	}
	feeds, ok := body["feeds"].([]interface{})
	if !ok || len(feeds) != 1 || feeds[0] != "cards:global" {
		t.Fatalf("unexpected feeds: %v", body["feeds"])
	}
}

func TestHTTPClient_UpdateChannelEmptySetSkipsRequest(t *testing.T) {
	called := false
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.Write([]byte(`{}`))
	})

	if err := client.UpdateChannel(context.Background(), "messaging", "room", ChannelUpdate{}); err != nil {
		t.Fatalf("UpdateChannel: %v", err)
	}
	if called {
		t.Fatal("an empty update must not hit the API")
	}
}

func TestRefHelpers(t *testing.T) {
	if got := FeedRef("cards"); got != "cards:global" {
		t.Fatalf("FeedRef = %s", got)
	}
	if got := ActivityID("abc"); got != "announcement:abc" {
		t.Fatalf("ActivityID = %s", got)
	}
	if got := ChannelRef("messaging", "room"); got != "messaging:room" {
		t.Fatalf("ChannelRef = %s", got)
	}
}
