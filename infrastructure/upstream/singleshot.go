package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/AIENGINE/online-cs-backend/domain/chat"

	"github.com/sirupsen/logrus"
)

// SingleShot is the non-incremental classifier: one blocking chat-completions
// call whose result is re-emitted as synthetic chunks, so the orchestrator
// cannot tell it apart from the streaming provider.
type SingleShot struct {
	provider *Provider
}

func NewSingleShot(apiKey, baseURL, model string, timeout time.Duration) *SingleShot {
	return &SingleShot{provider: NewProvider(apiKey, baseURL, model, timeout)}
}

// StreamTurn implements chat.ClassifierPort.
func (s *SingleShot) StreamTurn(ctx context.Context, req *chat.Request, onThread chat.ThreadHandler, onChunk chat.StreamHandler[chat.StreamChunk]) error {
	hreq, err := s.provider.newRequest(ctx, req, false)
	if err != nil {
		return err
	}

	resp, err := s.provider.httpClient.Do(hreq)
	if err != nil {
		return fmt.Errorf("do: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		logrus.WithFields(logrus.Fields{"status": resp.StatusCode, "body": string(body)}).Error("Upstream API error")
		return fmt.Errorf("upstream api error: status %d: %s", resp.StatusCode, string(body))
	}

	threadID := resp.Header.Get(ThreadIDHeader)
	if threadID == "" {
		threadID = req.ThreadID
	}
	if onThread != nil {
		onThread(threadID)
	}

	var out chat.Response
	if err := json.Unmarshal(body, &out); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if len(out.Choices) == 0 {
		return fmt.Errorf("upstream returned no choices")
	}

	choice := out.Choices[0]
	envelope := chat.StreamChunk{ID: out.ID, Object: out.Object, Created: out.Created, Model: out.Model}

	// A tool call arrives whole, so a single synthetic fragment carries the
	// full name and argument text.
	if len(choice.Message.ToolCalls) > 0 {
		call := choice.Message.ToolCalls[0]
		synthetic := envelope
		synthetic.Choices = []chat.StreamChoice{{
			Index: 0,
			Delta: chat.StreamDelta{ToolCalls: []chat.ToolCallDelta{{
				Index:    0,
				ID:       call.ID,
				Type:     call.Type,
				Function: call.Function,
			}}},
		}}
		return onChunk(synthetic)
	}

	if choice.Message.Content != "" {
		return onChunk(envelope.WithContent(choice.Message.Content))
	}
	return nil
}
