package departments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/AIENGINE/online-cs-backend/domain/chat"
	"github.com/AIENGINE/online-cs-backend/domain/department"
	"github.com/AIENGINE/online-cs-backend/internal/metrics"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"
)

// ThreadIDHeader mirrors the upstream header so department backends can
// recall prior turns of the same conversation.
const ThreadIDHeader = "lb-thread-id"

// Backend holds the endpoint and bearer credential of one department.
type Backend struct {
	URL    string
	APIKey string
}

// Client dispatches a classified customer query to the matching department
// backend. Completions are cached briefly so a repeated identical dispatch
// within a conversation does not re-hit the backend.
type Client struct {
	backends   map[department.Key]Backend
	httpClient *http.Client
	cache      *expirable.LRU[string, string]
}

func NewClient(backends map[department.Key]Backend, timeout time.Duration, cacheSize int, cacheTTL time.Duration) *Client {
	var cache *expirable.LRU[string, string]
	if cacheSize > 0 {
		cache = expirable.NewLRU[string, string](cacheSize, nil, cacheTTL)
	}

	return &Client{
		backends: backends,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        50,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		cache: cache,
	}
}

type dispatchRequest struct {
	Messages []chat.Message `json:"messages"`
	ThreadID string         `json:"threadId,omitempty"`
}

type dispatchResponse struct {
	Completion string `json:"completion"`
}

// Dispatch implements department.DispatcherPort. Any transport failure,
// timeout or non-success status is reported as *department.UnavailableError
// so the caller can degrade gracefully.
func (c *Client) Dispatch(ctx context.Context, key department.Key, customerQuery, threadID string) (string, error) {
	backend, ok := c.backends[key]
	if !ok {
		return "", fmt.Errorf("no backend configured for department %q", key)
	}

	cacheKey := string(key) + "\x00" + threadID + "\x00" + customerQuery
	if c.cache != nil {
		if text, hit := c.cache.Get(cacheKey); hit {
			logrus.WithField("department", key).Debug("Serving department completion from cache")
			return text, nil
		}
	}

	metrics.DispatchesTotal.WithLabelValues(string(key)).Inc()
	start := time.Now()

	jsonData, err := json.Marshal(dispatchRequest{
		Messages: []chat.Message{{Role: "user", Content: customerQuery}},
		ThreadID: threadID,
	})
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	hreq, err := http.NewRequestWithContext(ctx, "POST", backend.URL, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	hreq.Header.Set("Content-Type", "application/json")
	hreq.Header.Set("Authorization", "Bearer "+backend.APIKey)
	if threadID != "" {
		hreq.Header.Set(ThreadIDHeader, threadID)
	}

	resp, err := c.httpClient.Do(hreq)
	if err != nil {
		return "", &department.UnavailableError{Department: key, Status: 0, StatusText: err.Error()}
	}
	defer resp.Body.Close()

	metrics.DispatchDuration.WithLabelValues(string(key)).Observe(time.Since(start).Seconds())

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &department.UnavailableError{Department: key, Status: resp.StatusCode, StatusText: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logrus.WithFields(logrus.Fields{"department": key, "status": resp.StatusCode, "body": string(body)}).Warn("Department API error")
		return "", &department.UnavailableError{Department: key, Status: resp.StatusCode, StatusText: http.StatusText(resp.StatusCode)}
	}

	var out dispatchResponse
	if err := json.Unmarshal(body, &out); err != nil {
		// Unparseable payloads are recovered by passing the raw text through.
		logrus.WithError(err).WithField("department", key).Warn("Department completion payload not JSON, passing through")
		out.Completion = string(body)
	}

	text := formatCompletion(out.Completion)
	if c.cache != nil {
		c.cache.Add(cacheKey, text)
	}
	return text, nil
}

// formatCompletion renders a completion payload for the customer. Completions
// that are themselves JSON objects are reduced to their first key/value pair,
// rendered "<key> <value>"; anything else is returned verbatim.
func formatCompletion(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") {
		return raw
	}

	dec := json.NewDecoder(strings.NewReader(trimmed))
	dec.UseNumber()
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return raw
	}
	keyTok, err := dec.Token()
	if err != nil {
		return raw
	}
	key, ok := keyTok.(string)
	if !ok {
		return raw
	}
	var value any
	if err := dec.Decode(&value); err != nil {
		return raw
	}
	return fmt.Sprintf("%v %v", key, value)
}
