package store

import (
	"context"
	"path/filepath"
	"testing"

	"LlamaChat/internal/backend"
	"LlamaChat/internal/prompt"
	"LlamaChat/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoCompleter struct{}

func (echoCompleter) Generate(_ context.Context, r backend.Request) (string, error) {
	return "echo", nil
}

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "transcripts.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndLoad(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	sess := session.New("be brief", echoCompleter{}, session.WithTemperature(0.4))
	sess.AddBackgroundMessage("seed")
	_, err := sess.SendMessage(ctx, "hello")
	require.NoError(t, err)

	id, err := st.Save(ctx, "A", sess)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	tr, err := st.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "A", tr.Label)
	assert.Equal(t, "be brief", tr.SystemPrompt)
	assert.Equal(t, 0.4, tr.Temperature)
	require.Len(t, tr.Messages, 4)
	assert.Equal(t, 4, tr.MessageCount)

	want := sess.History()
	for i := range want {
		assert.Equal(t, want[i].Role, tr.Messages[i].Role)
		assert.Equal(t, want[i].Content, tr.Messages[i].Content)
	}
}

func TestLoadUnknown(t *testing.T) {
	st := setupTestStore(t)

	_, err := st.Load(context.Background(), "nope")

	assert.ErrorIs(t, err, ErrTranscriptNotFound)
}

func TestRestoreIntoSession(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	orig := session.New("S", echoCompleter{})
	_, err := orig.SendMessage(ctx, "U1")
	require.NoError(t, err)
	id, err := st.Save(ctx, "A", orig)
	require.NoError(t, err)

	tr, err := st.Load(ctx, id)
	require.NoError(t, err)

	restored := session.New(tr.SystemPrompt, echoCompleter{}, session.WithHistory(tr.Messages))
	assert.Equal(t, orig.Prompt(), restored.Prompt())
	assert.Equal(t, prompt.RoleSystem, restored.History()[0].Role)
	assert.Len(t, restored.History(), 3)
}

func TestList(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	infos, err := st.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, infos)

	a := session.New("S", echoCompleter{})
	b := session.New("", echoCompleter{})
	b.AddBackgroundMessage("x")
	b.AddBackgroundMessage("y")

	idA, err := st.Save(ctx, "A", a)
	require.NoError(t, err)
	idB, err := st.Save(ctx, "B", b)
	require.NoError(t, err)

	infos, err = st.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)

	counts := map[string]int{}
	for _, info := range infos {
		counts[info.ID] = info.MessageCount
	}
	assert.Equal(t, 1, counts[idA])
	assert.Equal(t, 2, counts[idB])
}
