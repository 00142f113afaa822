package departments

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AIENGINE/online-cs-backend/domain/department"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func singleBackend(key department.Key, url string) map[department.Key]Backend {
	return map[department.Key]Backend{key: {URL: url, APIKey: "test-dept-key"}}
}

func TestClient_Dispatch_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer test-dept-key", r.Header.Get("Authorization"))
		assert.Equal(t, "thread-9", r.Header.Get(ThreadIDHeader))

		var req dispatchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)
		assert.Equal(t, "my sneakers broke", req.Messages[0].Content)
		assert.Equal(t, "thread-9", req.ThreadID)

		json.NewEncoder(w).Encode(dispatchResponse{Completion: "We will replace them."})
	}))
	defer server.Close()

	client := NewClient(singleBackend(department.Sports, server.URL), 5*time.Second, 0, 0)

	text, err := client.Dispatch(context.Background(), department.Sports, "my sneakers broke", "thread-9")
	require.NoError(t, err)
	assert.Equal(t, "We will replace them.", text)
}

func TestClient_Dispatch_StructuredCompletion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(dispatchResponse{Completion: `{"Ticket No.": 42, "Classification": "sports"}`})
	}))
	defer server.Close()

	client := NewClient(singleBackend(department.Sports, server.URL), 5*time.Second, 0, 0)

	text, err := client.Dispatch(context.Background(), department.Sports, "broken racket", "")
	require.NoError(t, err)
	// Only the first key/value pair is rendered
	assert.Equal(t, "Ticket No. 42", text)
}

func TestClient_Dispatch_NonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(singleBackend(department.Travel, server.URL), 5*time.Second, 0, 0)

	_, err := client.Dispatch(context.Background(), department.Travel, "lost bag", "")
	require.Error(t, err)

	var unavailable *department.UnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, department.Travel, unavailable.Department)
	assert.Equal(t, http.StatusServiceUnavailable, unavailable.Status)
	assert.Equal(t, "Service Unavailable", unavailable.StatusText)
}

func TestClient_Dispatch_UnreachableBackend(t *testing.T) {
	client := NewClient(singleBackend(department.Sports, "http://127.0.0.1:1"), 500*time.Millisecond, 0, 0)

	_, err := client.Dispatch(context.Background(), department.Sports, "hi", "")
	var unavailable *department.UnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, 0, unavailable.Status)
}

func TestClient_Dispatch_UnknownDepartment(t *testing.T) {
	client := NewClient(map[department.Key]Backend{}, time.Second, 0, 0)

	_, err := client.Dispatch(context.Background(), department.Electronics, "hi", "")
	require.Error(t, err)
	var unavailable *department.UnavailableError
	assert.False(t, errors.As(err, &unavailable), "misconfiguration is not an availability problem")
}

func TestClient_Dispatch_CachesCompletions(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		json.NewEncoder(w).Encode(dispatchResponse{Completion: "cached answer"})
	}))
	defer server.Close()

	client := NewClient(singleBackend(department.Sports, server.URL), 5*time.Second, 16, time.Minute)

	for i := 0; i < 3; i++ {
		text, err := client.Dispatch(context.Background(), department.Sports, "same question", "thread-1")
		require.NoError(t, err)
		assert.Equal(t, "cached answer", text)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	// A different thread misses the cache
	_, err := client.Dispatch(context.Background(), department.Sports, "same question", "thread-2")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestClient_Dispatch_NonJSONPayloadPassedThrough(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("plain text reply"))
	}))
	defer server.Close()

	client := NewClient(singleBackend(department.Electronics, server.URL), 5*time.Second, 0, 0)

	text, err := client.Dispatch(context.Background(), department.Electronics, "tv is dead", "")
	require.NoError(t, err)
	assert.Equal(t, "plain text reply", text)
}

func TestFormatCompletion(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"first pair only", `{"Ticket No.": 42, "Classification": "sports"}`, "Ticket No. 42"},
		{"string value", `{"Status": "resolved"}`, "Status resolved"},
		{"plain string", "thanks for reaching out", "thanks for reaching out"},
		{"empty object", `{}`, `{}`},
		{"broken json", `{"Ticket`, `{"Ticket`},
		{"leading whitespace", `   {"Ticket No.": 7}`, "Ticket No. 7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatCompletion(tt.in))
		})
	}
}
