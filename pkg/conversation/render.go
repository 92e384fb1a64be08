package conversation

import "fmt"

// APIMessage is the wire-format role/content pair sent to the completion
// endpoint.
type APIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToAPIFormat renders the message from the perspective of currentSpeaker.
//
// The model only ever speaks as one identity per request. Whichever role is
// currently being generated is cast as "assistant"; every other participant's
// utterances, including the generic assistant's own prior turns when a
// character is speaking, are recast as third-person "user" context so the
// model reads them as things other people said.
func (m *Message) ToAPIFormat(currentSpeaker Role) APIMessage {
	switch m.Role {
	case RoleSystem:
		return APIMessage{Role: "system", Content: m.Content}
	case RoleUser:
		return APIMessage{Role: "user", Content: m.Content}
	case RoleAssistant:
		if currentSpeaker == RoleAssistant {
			return APIMessage{Role: "assistant", Content: m.Content}
		}
		return APIMessage{
			Role:    "user",
			Content: fmt.Sprintf("Assistant said: %s", m.Content),
		}
	default:
		if m.Role == currentSpeaker {
			return APIMessage{Role: "assistant", Content: m.Content}
		}
		return APIMessage{
			Role:    "user",
			Content: fmt.Sprintf("%s said: %s", m.Role.CharacterName(), m.Content),
		}
	}
}

// RenderForSpeaker renders a thread into the wire format for the given
// speaker. Exactly one synthetic system message carrying the speaker's
// character prompt is prepended; it is not part of the stored thread and is
// not subject to the perspective rules.
func RenderForSpeaker(characterPrompt string, messages Conversation, currentSpeaker Role) []APIMessage {
	ret := make([]APIMessage, 0, len(messages)+1)
	ret = append(ret, APIMessage{Role: "system", Content: characterPrompt})

	for _, m := range messages {
		ret = append(ret, m.ToAPIFormat(currentSpeaker))
	}

	return ret
}
