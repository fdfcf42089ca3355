package cli

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolateEnv clears configuration variables so host settings don't leak in.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"AGT_MEMORY_DIR", "AGT_SESSIONS_DIR", "AGT_RECORD_SESSIONS", "AGT_CONVERSATION_PATH",
		"AGT_MODEL", "AGT_MAX_TOKENS", "AGT_CONTEXT_BUDGET", "AGT_LOG_LEVEL", "AGT_LOG_FORMAT", "DEBUG",
	} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "memagent", cmd.Use)
	assert.Contains(t, cmd.Long, "memories")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"chat", "view", "create", "str-replace", "insert", "delete", "rename", "clear"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"config", "log-level", "memory-dir"} {
		f := cmd.PersistentFlags().Lookup(name)
		require.NotNil(t, f, name)
		assert.Equal(t, "", f.DefValue)
	}

	view, _, err := cmd.Find([]string{"view"})
	require.NoError(t, err)
	assert.NotNil(t, view.Flags().Lookup("range"))

	clearCmd, _, err := cmd.Find([]string{"clear"})
	require.NoError(t, err)
	yes := clearCmd.Flags().Lookup("yes")
	require.NotNil(t, yes)
	assert.Equal(t, "y", yes.Shorthand)
}

func TestRoot_InvalidLogLevel(t *testing.T) {
	isolateEnv(t)
	_, err := execute(t, "", "--memory-dir", t.TempDir(), "--log-level", "loud", "view")
	assert.Error(t, err)
}

func TestRoot_ConfigFile(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	cfgPath := dir + "/agent.yaml"
	require.NoError(t, os.WriteFile(cfgPath, []byte("base_dir: "+dir+"\n"), 0o644))

	_, err := execute(t, "", "--config", cfgPath, "create", "/memories/a.txt", "x")
	require.NoError(t, err)
	_, err = os.Stat(dir + "/memories/a.txt")
	assert.NoError(t, err)
}
