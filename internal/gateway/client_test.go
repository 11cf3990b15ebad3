package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{BaseURL: server.URL, APIKey: "test-key"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client, server
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	if _, err := NewClient(Config{BaseURL: "http://localhost"}); err == nil {
		t.Error("expected error for missing API key")
	}
	if _, err := NewClient(Config{APIKey: "k"}); err == nil {
		t.Error("expected error for missing base URL")
	}
}

func TestSendTextSetsAPIKeyHeader(t *testing.T) {
	var gotKey, gotPath string
	var gotBody map[string]interface{}

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("apikey")
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"key": map[string]interface{}{"id": "MSG1", "remoteJid": "212612345678@s.whatsapp.net"},
		})
	})

	result, err := client.SendText(context.Background(), "school-main", "212612345678", "marhaba")
	if err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if gotKey != "test-key" {
		t.Errorf("apikey header = %q, expected test-key", gotKey)
	}
	if gotPath != "/message/sendText/school-main" {
		t.Errorf("path = %q", gotPath)
	}
	if gotBody["number"] != "212612345678" || gotBody["text"] != "marhaba" {
		t.Errorf("unexpected payload: %v", gotBody)
	}
	if result.Key.ID != "MSG1" {
		t.Errorf("result id = %q, expected MSG1", result.Key.ID)
	}
}

func TestNon2xxBecomesAPIError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"number not on whatsapp"}`))
	})

	_, err := client.SendText(context.Background(), "school-main", "999", "hi")
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, expected 400", apiErr.StatusCode)
	}
	if apiErr.Instance != "school-main" || apiErr.Operation != "send text" {
		t.Errorf("error context = %q/%q", apiErr.Instance, apiErr.Operation)
	}
}

func TestTransportErrorIsWrapped(t *testing.T) {
	client, err := NewClient(Config{BaseURL: "http://127.0.0.1:1", APIKey: "k", Timeout: 200 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := client.ConnectionState(context.Background(), "school-main"); err == nil {
		t.Error("expected transport error")
	}
}

func TestConnectionState(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/instance/connectionState/school-main" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"instance": map[string]string{"instanceName": "school-main", "state": "open"},
		})
	})

	state, err := client.ConnectionState(context.Background(), "school-main")
	if err != nil {
		t.Fatalf("ConnectionState: %v", err)
	}
	if state.Instance.State != "open" {
		t.Errorf("state = %q, expected open", state.Instance.State)
	}
}

func TestFindGroupMessagesTimestampBounds(t *testing.T) {
	var payload map[string]interface{}
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&payload)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"messages": map[string]interface{}{
				"total": 1,
				"records": []map[string]interface{}{
					{"messageType": "audioMessage", "key": map[string]interface{}{"remoteJid": "g@g.us"}},
				},
			},
		})
	})

	from := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(24*time.Hour - time.Second)
	records, err := client.FindGroupMessages(context.Background(), "school-main", "g@g.us", from, to)
	if err != nil {
		t.Fatalf("FindGroupMessages: %v", err)
	}
	if len(records) != 1 || records[0].MessageType != "audioMessage" {
		t.Errorf("unexpected records: %+v", records)
	}

	where := payload["where"].(map[string]interface{})
	ts := where["messageTimestamp"].(map[string]interface{})
	if ts["gte"] != "1756684800" {
		t.Errorf("gte = %v", ts["gte"])
	}
}
