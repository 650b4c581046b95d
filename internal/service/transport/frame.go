package transport

import (
	"strings"

	"github.com/bytedance/sonic"
)

const authFailurePhrase = "authentication failed"

// FrameKind classifies an inbound frame.
type FrameKind int

const (
	FrameUnknown FrameKind = iota
	FramePrompt
	FrameAuthFailure
)

// Frame is the interpreted form of one server frame.
type Frame struct {
	Kind    FrameKind
	Content string
}

// serverEnvelope covers the JSON shapes the interview endpoint pushes.
type serverEnvelope struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	Message string `json:"message"`
}

// AnswerFrame is the client to server answer payload.
type AnswerFrame struct {
	Answer string `json:"answer"`
}

// ParseFrame interprets data as JSON when possible and as raw text otherwise.
// Authentication failures are detected before any content is extracted.
func ParseFrame(data []byte) Frame {
	var decoded any
	if err := sonic.Unmarshal(data, &decoded); err != nil {
		return parseText(string(data))
	}

	switch v := decoded.(type) {
	case string:
		return parseText(v)
	case map[string]any:
		return parseEnvelope(v)
	default:
		return Frame{Kind: FrameUnknown}
	}
}

func parseText(text string) Frame {
	if strings.Contains(strings.ToLower(text), authFailurePhrase) {
		return Frame{Kind: FrameAuthFailure, Content: text}
	}
	if strings.TrimSpace(text) == "" {
		return Frame{Kind: FrameUnknown}
	}
	return Frame{Kind: FramePrompt, Content: text}
}

func parseEnvelope(fields map[string]any) Frame {
	var env serverEnvelope
	env.Type, _ = fields["type"].(string)
	env.Content, _ = fields["content"].(string)
	env.Message, _ = fields["message"].(string)

	if env.Type == "error" && strings.ToLower(strings.TrimSpace(env.Message)) == authFailurePhrase {
		return Frame{Kind: FrameAuthFailure, Content: env.Message}
	}

	if strings.TrimSpace(env.Content) == "" {
		return Frame{Kind: FrameUnknown}
	}

	// interview_data envelopes and bare {content} envelopes carry the same payload.
	return Frame{Kind: FramePrompt, Content: env.Content}
}
