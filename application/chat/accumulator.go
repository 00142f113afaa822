package chat

import (
	"encoding/json"
	"strings"

	"github.com/AIENGINE/online-cs-backend/domain/chat"
)

// toolCallAccumulator buffers the fragments of a single in-flight tool call
// until its argument text is syntactically complete. Only one call is tracked
// at a time: a fragment carrying a name while another call is pending
// overwrites the pending state. The accumulator is owned by the orchestrator
// for the lifetime of one call and never crosses requests.
type toolCallAccumulator struct {
	name   string
	args   string
	active bool
}

// add merges one incremental fragment. A fragment with a name starts (or
// restarts) the buffer with that fragment's argument text; a nameless
// fragment appends. Nameless fragments with no call open are dropped.
func (a *toolCallAccumulator) add(delta chat.ToolCallDelta) {
	if delta.Function.Name != "" {
		a.name = delta.Function.Name
		a.args = delta.Function.Arguments
		a.active = true
		return
	}
	if !a.active {
		return
	}
	a.args += delta.Function.Arguments
}

// complete reports whether the buffered argument text is a full JSON document.
// The test is deliberately heuristic: the buffer must end with '}' and then
// survive a parse. A premature '}' inside a string value fails the parse, so
// the caller simply keeps accumulating; parse failure is never an error.
// A '}' that closes a nested literal which happens to be valid JSON on its
// own can still false-trigger; that limitation is accepted.
func (a *toolCallAccumulator) complete() bool {
	if !a.active || a.name == "" {
		return false
	}
	trimmed := strings.TrimSpace(a.args)
	if !strings.HasSuffix(trimmed, "}") {
		return false
	}
	return json.Valid([]byte(trimmed))
}

// resolve returns the completed call and resets the accumulator to idle.
func (a *toolCallAccumulator) resolve() (name, args string) {
	name, args = a.name, strings.TrimSpace(a.args)
	a.reset()
	return name, args
}

func (a *toolCallAccumulator) reset() {
	a.name = ""
	a.args = ""
	a.active = false
}
