package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_Flags(t *testing.T) {
	t.Run("has --config flag", func(t *testing.T) {
		cmd := NewRootCmd()
		flag := cmd.PersistentFlags().Lookup("config")
		require.NotNil(t, flag, "expected --config flag to exist")
	})

	t.Run("has --thread/-t flag", func(t *testing.T) {
		cmd := NewRootCmd()
		flag := cmd.Flags().Lookup("thread")
		require.NotNil(t, flag)
		assert.Equal(t, "t", flag.Shorthand)
	})

	t.Run("has --max-iterations/-n flag", func(t *testing.T) {
		cmd := NewRootCmd()
		flag := cmd.Flags().Lookup("max-iterations")
		require.NotNil(t, flag)
		assert.Equal(t, "n", flag.Shorthand)
		assert.Equal(t, "0", flag.DefValue)
	})

	t.Run("has --max-fix-attempts flag", func(t *testing.T) {
		cmd := NewRootCmd()
		flag := cmd.Flags().Lookup("max-fix-attempts")
		require.NotNil(t, flag)
		assert.Equal(t, "0", flag.DefValue)
	})

	t.Run("has --stream flag with default false", func(t *testing.T) {
		cmd := NewRootCmd()
		flag := cmd.Flags().Lookup("stream")
		require.NotNil(t, flag)
		assert.Equal(t, "false", flag.DefValue)
	})

	t.Run("has --resume flag", func(t *testing.T) {
		cmd := NewRootCmd()
		require.NotNil(t, cmd.Flags().Lookup("resume"))
	})
}

func TestRootCommand_HelpShowsSubcommands(t *testing.T) {
	cmd := NewRootCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"--help"})

	require.NoError(t, cmd.Execute())

	output := buf.String()
	assert.Contains(t, output, "version")
	assert.Contains(t, output, "tools")
}

func TestRootCommand_NoPlanScript(t *testing.T) {
	workDir := t.TempDir()

	cmd := NewRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"-w", workDir})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no plan script")
}

func TestRootCommand_RunsPlanToCompletion(t *testing.T) {
	workDir := t.TempDir()
	plan := filepath.Join(workDir, "plan.yaml")
	planContent := `steps:
  - text: checking the workspace
    tool_calls:
      - name: shell
        args:
          cmd: echo workspace-ok
final_reply: everything checks out
`
	require.NoError(t, os.WriteFile(plan, []byte(planContent), 0644))

	cmd := NewRootCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{plan, "-w", workDir, "-t", "cli-test-thread"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "everything checks out")

	// A checkpoint for the thread is written under the state directory.
	_, err := os.Stat(filepath.Join(workDir, ".pilot", "state", "cli-test-thread.json"))
	assert.NoError(t, err)
}

func TestRootCommand_DuplicateAllowedToolIsAnError(t *testing.T) {
	workDir := t.TempDir()
	plan := filepath.Join(workDir, "plan.yaml")
	require.NoError(t, os.WriteFile(plan, []byte("steps:\n  - text: noop\n"), 0644))

	cfg := `tools:
  allowed:
    - shell
    - shell
`
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "pilot.yaml"), []byte(cfg), 0644))

	cmd := NewRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{plan, "-w", workDir})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestRootCommand_IterationLimitReported(t *testing.T) {
	workDir := t.TempDir()
	plan := filepath.Join(workDir, "plan.yaml")
	planContent := `steps:
  - text: step one
    tool_calls:
      - name: shell
        args:
          cmd: "true"
  - text: step two
    tool_calls:
      - name: shell
        args:
          cmd: "true"
final_reply: should not get here
`
	require.NoError(t, os.WriteFile(plan, []byte(planContent), 0644))

	cmd := NewRootCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{plan, "-w", workDir, "-n", "1"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "maximum of 1 planning iterations")
}
