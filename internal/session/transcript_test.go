package session_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petasbytes/go-memory-agent/internal/session"
)

func TestTranscript_MissingFile(t *testing.T) {
	msgs, err := session.LoadTranscript(filepath.Join(t.TempDir(), "none.json"))
	require.NoError(t, err)
	assert.Nil(t, msgs)
}

func TestTranscript_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "conversation.json")
	in := []session.Message{
		{Role: "user", Text: "hello"},
		{Role: "assistant", Text: "hi there"},
	}
	require.NoError(t, session.SaveTranscript(path, in))

	out, err := session.LoadTranscript(path)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestTranscript_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conversation.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err := session.LoadTranscript(path)
	assert.Error(t, err)
}
