package conversation

// Manager wraps a conversation tree behind the operations a chat session
// needs: appending to the active branch, resolving selector paths, and
// persisting the conversation.
//
// A Manager is owned by a single session and is not safe for concurrent
// mutation; callers serialize exchanges against one session.
type Manager interface {
	// Append adds a message to the active branch and returns its depth in
	// the resolved thread.
	Append(role Role, content string) int
	AppendMessages(messages ...*Message)
	AttachMessages(parentID NodeID, messages ...*Message)

	GetConversation() Conversation
	ResolvePath(path Path) (Conversation, error)
	// ActivePath returns the selector path from the root to the active leaf.
	ActivePath() Path
	// PathTo returns the selector path from the root to the given node.
	PathTo(id NodeID) (Path, error)
	GetMessage(ID NodeID) (*Message, bool)

	SaveToFile(filename string) error
	LoadFromFile(filename string) error
}
