package conversation

import (
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePathEmptyTree(t *testing.T) {
	ct := NewConversationTree()

	thread, err := ct.ResolvePath(nil)
	require.NoError(t, err)
	assert.Empty(t, thread)

	_, err = ct.ResolvePath(Path{0})
	require.True(t, errors.Is(err, ErrInvalidPath))
}

func TestResolveLinearPath(t *testing.T) {
	m := NewManager()
	m.Append(RoleUser, "hi")
	m.Append(RoleAssistant, "hello")
	m.Append(RoleUser, "how are you")

	path := m.ActivePath()
	require.Equal(t, Path{0, 0}, path)

	thread, err := m.ResolvePath(path)
	require.NoError(t, err)
	require.Len(t, thread, 3)
	assert.Equal(t, "hi", thread[0].Content)
	assert.Equal(t, "hello", thread[1].Content)
	assert.Equal(t, "how are you", thread[2].Content)
}

func TestResolvePathOutOfRangeSelector(t *testing.T) {
	m := NewManager()
	m.Append(RoleUser, "hi")
	m.Append(RoleAssistant, "hello")

	_, err := m.ResolvePath(Path{1})
	require.True(t, errors.Is(err, ErrInvalidPath))

	_, err = m.ResolvePath(Path{0, 0})
	require.True(t, errors.Is(err, ErrInvalidPath))

	_, err = m.ResolvePath(Path{-1})
	require.True(t, errors.Is(err, ErrInvalidPath))
}

func TestBranchingKeepsPriorBranches(t *testing.T) {
	m := NewManager()
	m.Append(RoleUser, "tell me a story")
	first := NewMessage(RoleAssistant, "once upon a time")
	m.AppendMessages(first)

	// regenerate: attach a sibling under the same user message
	parent, ok := m.GetMessage(first.ParentID)
	require.True(t, ok)
	second := NewMessage(RoleAssistant, "in a galaxy far away")
	m.AttachMessages(parent.ID, second)

	thread, err := m.ResolvePath(Path{0})
	require.NoError(t, err)
	assert.Equal(t, "once upon a time", thread[len(thread)-1].Content)

	thread, err = m.ResolvePath(Path{1})
	require.NoError(t, err)
	assert.Equal(t, "in a galaxy far away", thread[len(thread)-1].Content)
}

func TestPathToRoundTrips(t *testing.T) {
	m := NewManager()
	m.Append(RoleUser, "a")
	m.Append(RoleAssistant, "b")
	leaf := NewMessage(RoleUser, "c")
	m.AppendMessages(leaf)

	path, err := m.PathTo(leaf.ID)
	require.NoError(t, err)

	thread, err := m.ResolvePath(path)
	require.NoError(t, err)
	assert.Equal(t, leaf.ID, thread[len(thread)-1].ID)
}

func TestAppendReturnsDepth(t *testing.T) {
	m := NewManager()
	assert.Equal(t, 0, m.Append(RoleUser, "first"))
	assert.Equal(t, 1, m.Append(RoleAssistant, "second"))
	assert.Equal(t, 2, m.Append(RoleUser, "third"))
}

func TestSaveLoadPreservesSelectorPaths(t *testing.T) {
	m := NewManager()
	m.Append(RoleUser, "question")
	first := NewMessage(RoleAssistant, "answer one")
	m.AppendMessages(first)
	second := NewMessage(RoleAssistant, "answer two")
	m.AttachMessages(first.ParentID, second)

	filename := filepath.Join(t.TempDir(), "conversation.json")
	require.NoError(t, m.SaveToFile(filename))

	loaded := NewManager()
	require.NoError(t, loaded.LoadFromFile(filename))

	thread, err := loaded.ResolvePath(Path{0})
	require.NoError(t, err)
	assert.Equal(t, "answer one", thread[len(thread)-1].Content)

	thread, err = loaded.ResolvePath(Path{1})
	require.NoError(t, err)
	assert.Equal(t, "answer two", thread[len(thread)-1].Content)
}

func TestFindSiblingsAndChildren(t *testing.T) {
	m := NewManager()
	m.Append(RoleUser, "root")
	a := NewMessage(RoleAssistant, "a")
	m.AppendMessages(a)
	b := NewMessage(RoleAssistant, "b")
	m.AttachMessages(a.ParentID, b)

	siblings := m.Tree.FindSiblings(a.ID)
	require.Len(t, siblings, 1)
	assert.Equal(t, b.ID, siblings[0])

	children := m.Tree.FindChildren(a.ParentID)
	assert.Len(t, children, 2)
}
