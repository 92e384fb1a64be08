package conversation

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// ErrInvalidPath is returned when a branch-selector path does not resolve to
// a thread in the tree.
var ErrInvalidPath = errors.New("invalid conversation path")

// ConversationTree is an append-only tree of messages. Nodes are kept in an
// arena keyed by ID and linked through parent IDs; sibling order is insertion
// order. A linear history is addressed either by its leaf node ID or by a
// Path of child-selector indices walked down from the root.
//
// Messages are never deleted. Regenerating an answer means attaching a new
// sibling under the same parent, which leaves the previous branch intact.
type ConversationTree struct {
	Nodes  map[NodeID]*Message
	RootID NodeID
	LastID NodeID

	// insertion order, used for stable serialization
	order []NodeID
}

// Path addresses one linear history through the tree: element i selects the
// child index to follow at depth i, starting below the root.
type Path []int

func NewConversationTree() *ConversationTree {
	return &ConversationTree{
		Nodes: make(map[NodeID]*Message),
	}
}

// InsertMessages adds messages to the arena. The first message ever inserted
// becomes the root; a message whose parent is present is linked as that
// parent's next child.
func (ct *ConversationTree) InsertMessages(msgs ...*Message) {
	for _, msg := range msgs {
		ct.Nodes[msg.ID] = msg
		ct.order = append(ct.order, msg.ID)
		if ct.RootID == NullNode {
			ct.RootID = msg.ID
		}
		ct.LastID = msg.ID

		if parent, exists := ct.Nodes[msg.ParentID]; exists {
			parent.Children = append(parent.Children, msg)
		}
	}
}

// AttachThread links a linear sequence of messages below the given parent,
// re-parenting each message onto the previous one. The last message of the
// thread becomes the tree's active leaf.
func (ct *ConversationTree) AttachThread(parentID NodeID, thread Conversation) {
	for _, msg := range thread {
		msg.ParentID = parentID
		ct.InsertMessages(msg)
		parentID = msg.ID
	}
}

// AppendMessages attaches a thread below the active leaf.
func (ct *ConversationTree) AppendMessages(thread Conversation) {
	ct.AttachThread(ct.LastID, thread)
}

// ResolvePath walks the tree from the root along the given child selectors
// and returns the linear thread it traverses. The thread always includes the
// root, so its length is len(path)+1 for a non-empty tree. A selector out of
// range for the children available at its depth fails with ErrInvalidPath.
func (ct *ConversationTree) ResolvePath(path Path) (Conversation, error) {
	if ct.RootID == NullNode {
		if len(path) > 0 {
			return nil, errors.Wrapf(ErrInvalidPath, "path %v in empty tree", path)
		}
		return nil, nil
	}

	node := ct.Nodes[ct.RootID]
	thread := Conversation{node}
	for depth, selector := range path {
		if selector < 0 || selector >= len(node.Children) {
			return nil, errors.Wrapf(ErrInvalidPath,
				"selector %d at depth %d, node has %d children", selector, depth, len(node.Children))
		}
		node = node.Children[selector]
		thread = append(thread, node)
	}

	return thread, nil
}

// PathTo returns the selector path from the root to the given node, or
// ErrInvalidPath if the node is not in the tree.
func (ct *ConversationTree) PathTo(id NodeID) (Path, error) {
	node, exists := ct.Nodes[id]
	if !exists {
		return nil, errors.Wrapf(ErrInvalidPath, "node %s not in tree", id)
	}

	var path Path
	for node.ID != ct.RootID {
		parent, exists := ct.Nodes[node.ParentID]
		if !exists {
			return nil, errors.Wrapf(ErrInvalidPath, "node %s has no parent link to root", node.ID)
		}
		selector := -1
		for i, child := range parent.Children {
			if child.ID == node.ID {
				selector = i
				break
			}
		}
		if selector == -1 {
			return nil, errors.Wrapf(ErrInvalidPath, "node %s not linked under its parent", node.ID)
		}
		path = append(Path{selector}, path...)
		node = parent
	}

	return path, nil
}

// GetConversationThread retrieves the linear thread from the root down to the
// given message by following parent links upwards.
func (ct *ConversationTree) GetConversationThread(id NodeID) Conversation {
	var thread Conversation
	for id != NullNode {
		node, exists := ct.Nodes[id]
		if !exists {
			break
		}
		thread = append(Conversation{node}, thread...)
		id = node.ParentID
	}
	return thread
}

// GetLeftMostThread returns the thread from the given message downwards,
// always following the first child.
func (ct *ConversationTree) GetLeftMostThread(id NodeID) Conversation {
	var thread Conversation
	for id != NullNode {
		node, exists := ct.Nodes[id]
		if !exists {
			break
		}
		thread = append(thread, node)
		if len(node.Children) > 0 {
			id = node.Children[0].ID
		} else {
			id = NullNode
		}
	}
	return thread
}

// FindSiblings returns the IDs of all messages sharing a parent with the
// given message.
func (ct *ConversationTree) FindSiblings(id NodeID) []NodeID {
	node, exists := ct.Nodes[id]
	if !exists {
		return nil
	}

	parent, exists := ct.Nodes[node.ParentID]
	if !exists {
		return nil
	}

	var siblings []NodeID
	for _, sibling := range parent.Children {
		if sibling.ID != id {
			siblings = append(siblings, sibling.ID)
		}
	}

	return siblings
}

// FindChildren returns the IDs of all children of the given message.
func (ct *ConversationTree) FindChildren(id NodeID) []NodeID {
	node, exists := ct.Nodes[id]
	if !exists {
		return nil
	}

	var children []NodeID
	for _, child := range node.Children {
		children = append(children, child.ID)
	}

	return children
}

func (ct *ConversationTree) GetMessageByID(id NodeID) (*Message, bool) {
	ret, exists := ct.Nodes[id]
	return ret, exists
}

// treeState is the serialized form: messages in insertion order, so that
// sibling order (and therefore selector paths) survives a round-trip.
type treeState struct {
	Messages []*Message `json:"messages"`
	RootID   NodeID     `json:"rootID"`
	LastID   NodeID     `json:"lastID"`
}

func (ct *ConversationTree) MarshalJSON() ([]byte, error) {
	state := treeState{
		RootID: ct.RootID,
		LastID: ct.LastID,
	}
	for _, id := range ct.order {
		state.Messages = append(state.Messages, ct.Nodes[id])
	}
	return json.Marshal(state)
}

func (ct *ConversationTree) UnmarshalJSON(data []byte) error {
	var state treeState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}

	ct.Nodes = make(map[NodeID]*Message)
	ct.order = nil
	ct.RootID = NullNode
	ct.LastID = NullNode
	for _, msg := range state.Messages {
		msg.Children = nil
		ct.InsertMessages(msg)
	}
	ct.RootID = state.RootID
	ct.LastID = state.LastID
	return nil
}

func (ct *ConversationTree) SaveToFile(filename string) error {
	data, err := json.MarshalIndent(ct, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}

func (ct *ConversationTree) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, ct)
}
