package llm

import "encoding/json"

// Agent platform streams carry one JSON object per SSE frame, tagged by an
// "event" field. Only the tags below carry text; anything else is skipped.
const (
	eventAgentMessage     = "agent_message"
	eventMessage          = "message"
	eventTextChunk        = "text_chunk"
	eventWorkflowFinished = "workflow_finished"
)

type agentEvent struct {
	Event  string         `json:"event"`
	Answer string         `json:"answer"`
	Data   agentEventData `json:"data"`
}

type agentEventData struct {
	Text     string `json:"text"`
	Response string `json:"response"`
	Message  string `json:"message"`
	Content  string `json:"content"`
}

// decodeEvent extracts the text delta from one SSE data payload.
// done marks the terminal workflow_finished frame, whose delta is only the
// fallback answer for runs that never streamed text. ok is false for
// unknown tags and malformed payloads, which callers skip.
func decodeEvent(payload []byte) (delta string, done bool, ok bool) {
	var evt agentEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return "", false, false
	}
	switch evt.Event {
	case eventAgentMessage, eventMessage:
		return evt.Answer, false, true
	case eventTextChunk:
		return evt.Data.Text, false, true
	case eventWorkflowFinished:
		switch {
		case evt.Data.Response != "":
			return evt.Data.Response, true, true
		case evt.Data.Message != "":
			return evt.Data.Message, true, true
		default:
			return evt.Data.Content, true, true
		}
	default:
		return "", false, false
	}
}
