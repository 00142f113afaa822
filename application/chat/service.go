package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/AIENGINE/online-cs-backend/domain/chat"
	"github.com/AIENGINE/online-cs-backend/domain/department"
	"github.com/AIENGINE/online-cs-backend/internal/metrics"

	"github.com/sirupsen/logrus"
)

const defaultSummaryPrompt = "Summarize the current status of the customer's request so far."

// Service orchestrates one support exchange: it drives upstream turns through
// the classifier, accumulates in-flight tool calls, dispatches resolved calls
// to the matching department and splices the completion back into the
// outgoing chunk stream. All state is request-scoped.
type Service struct {
	classifier    chat.ClassifierPort
	dispatcher    department.DispatcherPort
	summaryPrompt string
	maxTurns      int
}

func NewService(classifier chat.ClassifierPort, dispatcher department.DispatcherPort, summaryPrompt string, maxTurns int) *Service {
	if summaryPrompt == "" {
		summaryPrompt = defaultSummaryPrompt
	}
	if maxTurns < 1 {
		maxTurns = 5
	}
	return &Service{
		classifier:    classifier,
		dispatcher:    dispatcher,
		summaryPrompt: summaryPrompt,
		maxTurns:      maxTurns,
	}
}

// Stream runs upstream turns until one completes without a resolved tool
// call. onThread fires once, as soon as the first turn advertises its thread
// id; emit receives every outgoing chunk in order. While a tool call is
// accumulating, content emission is suspended; the department completion (or
// an apology when the department is unavailable) is emitted under the
// envelope of the chunk that completed the call.
func (s *Service) Stream(ctx context.Context, req *chat.Request, onThread chat.ThreadHandler, emit chat.StreamHandler[chat.StreamChunk]) error {
	if len(req.Messages) == 0 {
		return errors.New("messages cannot be empty")
	}

	threadID := req.ThreadID
	announced := false
	turnReq := &chat.Request{Messages: req.Messages, ThreadID: threadID}

	turns := 0
	defer func() { metrics.TurnsPerRequest.Observe(float64(turns)) }()

	for turns < s.maxTurns {
		turns++
		dispatched := false
		acc := &toolCallAccumulator{}

		err := s.classifier.StreamTurn(ctx, turnReq, func(tid string) {
			if tid != "" {
				threadID = tid
			}
			if !announced {
				announced = true
				if onThread != nil {
					onThread(threadID)
				}
			}
		}, func(chunk chat.StreamChunk) error {
			metrics.ChunksStreamed.Inc()
			if len(chunk.Choices) == 0 {
				return nil
			}
			choice := chunk.Choices[0]

			if len(choice.Delta.ToolCalls) > 0 {
				for _, delta := range choice.Delta.ToolCalls {
					acc.add(delta)
				}
				if !acc.complete() {
					return nil
				}
				name, args := acc.resolve()
				key, known := department.KeyForFunction(name)
				if !known {
					logrus.WithField("function", name).Warn("Ignoring call to unknown function")
					return nil
				}
				dispatched = true
				text := s.dispatch(ctx, key, customerQuery(args, req.Messages), threadID)
				return emit(chunk.WithContent(text))
			}

			// Content emission is suspended while a call is in flight.
			if acc.active {
				return nil
			}
			if choice.Delta.Content == "" && choice.FinishReason == nil {
				return nil
			}
			return emit(chunk)
		})
		if err != nil {
			return err
		}
		// A call left unresolved at stream end is dropped silently.

		if !dispatched {
			return nil
		}

		// A department answered during this turn: loop back to the main
		// chatbot for a summarization pass on the same thread.
		turnReq = &chat.Request{
			Messages: append(append([]chat.Message{}, req.Messages...), chat.Message{Role: "user", Content: s.summaryPrompt}),
			ThreadID: threadID,
		}
	}

	logrus.WithField("max_turns", s.maxTurns).Warn("Turn limit reached before a quiet turn")
	return nil
}

// dispatch calls the department backend and degrades any failure into an
// apologetic content chunk so the stream keeps flowing.
func (s *Service) dispatch(ctx context.Context, key department.Key, query, threadID string) string {
	text, err := s.dispatcher.Dispatch(ctx, key, query, threadID)
	if err != nil {
		metrics.DispatchFailures.WithLabelValues(string(key)).Inc()
		var unavailable *department.UnavailableError
		if errors.As(err, &unavailable) {
			logrus.WithError(err).WithField("department", key).Warn("Department unavailable, degrading to apology")
		} else {
			logrus.WithError(err).WithField("department", key).Error("Department dispatch failed")
		}
		return fmt.Sprintf("We are sorry, our %s department is currently unavailable. Please try again in a few minutes.", key)
	}
	return text
}

// customerQuery pulls the customer_query argument out of the resolved call,
// falling back to the latest user message when the arguments are unusable.
func customerQuery(args string, messages []chat.Message) string {
	var parsed struct {
		CustomerQuery string `json:"customer_query"`
	}
	if err := json.Unmarshal([]byte(args), &parsed); err == nil && parsed.CustomerQuery != "" {
		return parsed.CustomerQuery
	}
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}
