package conversation

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type ManagerImpl struct {
	Tree           *ConversationTree
	ConversationID uuid.UUID
}

var _ Manager = (*ManagerImpl)(nil)

type ManagerOption func(*ManagerImpl)

func WithMessages(messages ...*Message) ManagerOption {
	return func(m *ManagerImpl) {
		m.AppendMessages(messages...)
	}
}

func WithConversationID(conversationID uuid.UUID) ManagerOption {
	return func(m *ManagerImpl) {
		m.ConversationID = conversationID
	}
}

func NewManager(options ...ManagerOption) *ManagerImpl {
	ret := &ManagerImpl{
		ConversationID: uuid.Nil,
		Tree:           NewConversationTree(),
	}
	for _, option := range options {
		option(ret)
	}

	if ret.ConversationID == uuid.Nil {
		ret.ConversationID = uuid.New()
	}

	return ret
}

func (c *ManagerImpl) Append(role Role, content string) int {
	msg := NewMessage(role, content)
	c.AppendMessages(msg)
	return len(c.Tree.GetConversationThread(msg.ID)) - 1
}

func (c *ManagerImpl) AppendMessages(messages ...*Message) {
	log.Trace().
		Str("conversation_id", c.ConversationID.String()).
		Int("message_count", len(messages)).
		Int("tree_node_count", len(c.Tree.Nodes)).
		Str("last_id", c.Tree.LastID.String()).
		Msg("appending messages to active branch")

	c.Tree.AppendMessages(messages)
}

func (c *ManagerImpl) AttachMessages(parentID NodeID, messages ...*Message) {
	c.Tree.AttachThread(parentID, messages)
}

func (c *ManagerImpl) GetConversation() Conversation {
	return c.Tree.GetConversationThread(c.Tree.LastID)
}

func (c *ManagerImpl) ResolvePath(path Path) (Conversation, error) {
	return c.Tree.ResolvePath(path)
}

func (c *ManagerImpl) ActivePath() Path {
	if c.Tree.RootID == NullNode {
		return nil
	}
	path, err := c.Tree.PathTo(c.Tree.LastID)
	if err != nil {
		// the active leaf is always reachable; a failure here means the
		// tree invariants were broken externally
		log.Warn().Err(err).Msg("active leaf unreachable from root")
		return nil
	}
	return path
}

func (c *ManagerImpl) PathTo(id NodeID) (Path, error) {
	return c.Tree.PathTo(id)
}

func (c *ManagerImpl) GetMessage(ID NodeID) (*Message, bool) {
	return c.Tree.GetMessageByID(ID)
}

func (c *ManagerImpl) SaveToFile(filename string) error {
	return c.Tree.SaveToFile(filename)
}

func (c *ManagerImpl) LoadFromFile(filename string) error {
	return c.Tree.LoadFromFile(filename)
}
