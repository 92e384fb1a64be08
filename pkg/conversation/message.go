package conversation

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role identifies who produced a message. Besides the three built-in slots
// (system, user, assistant), any other value names a simulated character
// taking part in the conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// CharacterRole returns the role for a named simulated participant.
func CharacterRole(name string) Role {
	return Role(name)
}

// IsCharacter reports whether the role names a simulated character rather
// than one of the built-in slots.
func (r Role) IsCharacter() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return false
	}
	return true
}

// CharacterName returns the character name for character roles, and the
// empty string for built-in roles.
func (r Role) CharacterName() string {
	if !r.IsCharacter() {
		return ""
	}
	return string(r)
}

type NodeID uuid.UUID

func (id NodeID) MarshalJSON() ([]byte, error) {
	return json.Marshal(uuid.UUID(id))
}

func (id *NodeID) UnmarshalJSON(data []byte) error {
	var u uuid.UUID
	if err := json.Unmarshal(data, &u); err != nil {
		return err
	}
	*id = NodeID(u)
	return nil
}

func (id NodeID) String() string {
	return uuid.UUID(id).String()
}

func NewNodeID() NodeID {
	return NodeID(uuid.New())
}

var NullNode = NodeID(uuid.Nil)

// Message is a single node in the conversation tree. Content is immutable
// once the message has been inserted; branching happens by attaching several
// children to the same parent.
type Message struct {
	ParentID NodeID    `json:"parentID"`
	ID       NodeID    `json:"id"`
	Time     time.Time `json:"time"`

	Role    Role   `json:"role"`
	Content string `json:"content"`

	// omitted from JSON to avoid circular references
	Children []*Message `json:"-"`
}

type MessageOption func(*Message)

func WithTime(t time.Time) MessageOption {
	return func(message *Message) {
		message.Time = t
	}
}

func WithParentID(parentID NodeID) MessageOption {
	return func(message *Message) {
		message.ParentID = parentID
	}
}

func WithID(id NodeID) MessageOption {
	return func(message *Message) {
		message.ID = id
	}
}

func NewMessage(role Role, content string, options ...MessageOption) *Message {
	ret := &Message{
		ID:      NewNodeID(),
		Time:    time.Now(),
		Role:    role,
		Content: content,
	}

	for _, option := range options {
		option(ret)
	}

	return ret
}

func (m *Message) View() string {
	return fmt.Sprintf("[%s]: %s", m.Role, strings.TrimRight(m.Content, "\n"))
}

type Conversation []*Message

// GetSinglePrompt concatenates the thread into a single prompt string, one
// "[role]: content" line per message.
func (messages Conversation) GetSinglePrompt() string {
	if len(messages) == 0 {
		return ""
	}

	if len(messages) == 1 {
		return messages[0].Content
	}

	prompt := ""
	for _, message := range messages {
		prompt += fmt.Sprintf("[%s]: %s\n", message.Role, message.Content)
	}

	return prompt
}
