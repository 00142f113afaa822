package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/AIENGINE/online-cs-backend/domain/chat"
	"github.com/AIENGINE/online-cs-backend/domain/department"
	"github.com/AIENGINE/online-cs-backend/internal/sse"

	"github.com/sirupsen/logrus"
)

// ThreadIDHeader carries the opaque conversation token in both directions.
// It is forwarded unchanged; the service never generates or validates it.
const ThreadIDHeader = "lb-thread-id"

// Provider is the incremental classifier: one streaming chat-completions call
// whose SSE body is re-parsed line by line, with tool-call fragments handed to
// the orchestrator as they arrive.
type Provider struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

func NewProvider(apiKey, baseURL, model string, timeout time.Duration) *Provider {
	transport := &http.Transport{
		MaxIdleConns:          200,
		MaxIdleConnsPerHost:   100,
		MaxConnsPerHost:       200,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
	}

	return &Provider{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

type apiFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

type apiTool struct {
	Type     string      `json:"type"`
	Function apiFunction `json:"function"`
}

type apiChatRequest struct {
	Model      string         `json:"model"`
	Messages   []chat.Message `json:"messages"`
	Stream     bool           `json:"stream,omitempty"`
	Tools      []apiTool      `json:"tools,omitempty"`
	ToolChoice string         `json:"tool_choice,omitempty"`
}

// departmentTools advertises one function per department so the model can
// classify the customer query.
func departmentTools() []apiTool {
	tools := make([]apiTool, 0, len(department.Keys()))
	for _, key := range department.Keys() {
		tools = append(tools, apiTool{
			Type: "function",
			Function: apiFunction{
				Name:        department.FunctionName(key),
				Description: fmt.Sprintf("Hand the customer query to the %s support department.", key),
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"customer_query": map[string]any{
							"type":        "string",
							"description": "The customer's question, verbatim.",
						},
					},
					"required": []string{"customer_query"},
				},
			},
		})
	}
	return tools
}

func (p *Provider) newRequest(ctx context.Context, req *chat.Request, stream bool) (*http.Request, error) {
	jsonData, err := json.Marshal(apiChatRequest{
		Model:      p.model,
		Messages:   req.Messages,
		Stream:     stream,
		Tools:      departmentTools(),
		ToolChoice: "auto",
	})
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	hreq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	hreq.Header.Set("Content-Type", "application/json")
	hreq.Header.Set("Authorization", "Bearer "+p.apiKey)
	if req.ThreadID != "" {
		hreq.Header.Set(ThreadIDHeader, req.ThreadID)
	}
	return hreq, nil
}

// StreamTurn implements chat.ClassifierPort. onThread fires after the
// upstream answered OK and before the first chunk; onChunk receives every
// decoded event in arrival order. Lines that fail to decode are logged and
// dropped, never surfaced.
func (p *Provider) StreamTurn(ctx context.Context, req *chat.Request, onThread chat.ThreadHandler, onChunk chat.StreamHandler[chat.StreamChunk]) error {
	hreq, err := p.newRequest(ctx, req, true)
	if err != nil {
		return err
	}

	resp, err := p.httpClient.Do(hreq)
	if err != nil {
		return fmt.Errorf("do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		logrus.WithFields(logrus.Fields{"status": resp.StatusCode, "body": string(body)}).Error("Upstream streaming API error")
		return fmt.Errorf("upstream api error: status %d: %s", resp.StatusCode, string(body))
	}

	threadID := resp.Header.Get(ThreadIDHeader)
	if threadID == "" {
		threadID = req.ThreadID
	}
	if onThread != nil {
		onThread(threadID)
	}

	done := false
	handleLine := func(line string) error {
		payload, ok := sse.Payload(line)
		if !ok {
			return nil
		}
		if payload == sse.Done {
			done = true
			return nil
		}
		var chunk chat.StreamChunk
		if jerr := json.Unmarshal([]byte(payload), &chunk); jerr != nil {
			logrus.WithError(jerr).WithField("payload", payload).Warn("Dropping undecodable stream line")
			return nil
		}
		return onChunk(chunk)
	}

	parser := &sse.Parser{}
	buf := make([]byte, 4096)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			for _, line := range parser.Feed(buf[:n]) {
				if err := handleLine(line); err != nil {
					return err
				}
				if done {
					return nil
				}
			}
		}
		if rerr == io.EOF {
			if line, ok := parser.Flush(); ok {
				if err := handleLine(line); err != nil {
					return err
				}
			}
			return nil
		}
		if rerr != nil {
			return fmt.Errorf("stream read: %w", rerr)
		}
	}
}
