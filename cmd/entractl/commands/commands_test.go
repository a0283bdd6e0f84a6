package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/deixis/entractl"
	"github.com/deixis/entractl/cmd/entractl/internal/clierr"
	"github.com/deixis/entractl/internal/config"
)

const groupScript = `echo "Connecting to tenant"
echo '[{"UserUPN":"a@x.com","Group":"Sales","Status":"✅ Added"},{"UserUPN":"a@x.com","Group":"Ops","Status":"❌ Group not found"}]'`

// workspace writes a .entractl that runs every action as "sh -c script".
func workspace(t *testing.T, executable, script string) string {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Config{
		Shell: config.ShellConfig{Executable: executable, Args: []string{"-c", script, "fake"}},
	}
	data, err := yaml.Marshal(&cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName), data, 0o644))
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// runID extracts the id from a "Run <id>: ..." header line.
func runID(t *testing.T, out string) string {
	t.Helper()
	for _, line := range strings.Split(out, "\n") {
		if rest, ok := strings.CutPrefix(line, "Run "); ok {
			id, _, _ := strings.Cut(rest, ":")
			return id
		}
	}
	t.Fatalf("no run id in:\n%s", out)
	return ""
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, entractl.Version+"\n", out)
}

func TestHelpListsCommands(t *testing.T) {
	out, err := execute(t, "--help")
	require.NoError(t, err)
	for _, name := range []string{"actions", "run", "history", "inspect", "logs", "tenant", "mcp"} {
		assert.Contains(t, out, name)
	}
}

func TestActions(t *testing.T) {
	out, err := execute(t, "actions")
	require.NoError(t, err)
	assert.Contains(t, out, "reset_password")
	assert.Contains(t, out, "Reset-UserPassword.ps1")
	assert.Contains(t, out, "secret, required")
}

func TestRun_RecordsHistoryAndInspect(t *testing.T) {
	dir := workspace(t, "sh", groupScript)

	out, err := execute(t, "-C", dir, "run", "assign_groups",
		"-p", "UserPrincipalName=a@x.com", "-p", "GroupNames=Sales", "-p", "GroupNames=Ops")
	require.NoError(t, err, out)
	assert.Contains(t, out, "OUTCOME")
	assert.Contains(t, out, "1 succeeded, 1 failed")
	assert.FileExists(t, filepath.Join(dir, "history.db"))
	id := runID(t, out)

	out, err = execute(t, "-C", dir, "history")
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "assign_groups")

	out, err = execute(t, "-C", dir, "inspect", id, "--outcome", "failure")
	require.NoError(t, err)
	assert.Contains(t, out, "Ops")
	assert.NotContains(t, out, "Sales")
	assert.Contains(t, out, "1 of 2 records")

	out, err = execute(t, "-C", dir, "logs", "search", "connecting")
	require.NoError(t, err)
	assert.Contains(t, out, "Connecting to tenant")

	out, err = execute(t, "-C", dir, "history", "prune", "--older-than", "24h")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted 0 run(s)")
}

func TestRun_JSON(t *testing.T) {
	dir := workspace(t, "sh", groupScript)
	out, err := execute(t, "-C", dir, "run", "assign_groups", "--json",
		"-p", "UserPrincipalName=a@x.com", "-p", "GroupNames=Sales")
	require.NoError(t, err)
	assert.Contains(t, out, `"action": "assign_groups"`)
	assert.Contains(t, out, `"UserUPN": "a@x.com"`)
}

func TestRun_ScriptFailureExitCode(t *testing.T) {
	dir := workspace(t, "sh", `echo "Insufficient privileges" >&2; exit 4`)
	out, err := execute(t, "-C", dir, "run", "revoke_sessions", "-p", "UserPrincipalName=a@x.com")
	require.Error(t, err)
	assert.Equal(t, clierr.CodeScript, clierr.ExitCodeOf(err))
	assert.Contains(t, out, "Insufficient privileges")
}

func TestRun_LaunchErrorExitCode(t *testing.T) {
	dir := workspace(t, filepath.Join(t.TempDir(), "no-such-shell"), "true")
	_, err := execute(t, "-C", dir, "run", "revoke_sessions", "-p", "UserPrincipalName=a@x.com")
	require.Error(t, err)
	assert.Equal(t, clierr.CodeLaunch, clierr.ExitCodeOf(err))
}

func TestRun_InputErrors(t *testing.T) {
	dir := workspace(t, "sh", "true")

	_, err := execute(t, "-C", dir, "run", "revoke_sessions")
	require.Error(t, err)
	assert.Equal(t, clierr.CodeFailure, clierr.ExitCodeOf(err))
	assert.ErrorContains(t, err, "UserPrincipalName")

	_, err = execute(t, "-C", dir, "run", "no_such_action")
	assert.ErrorContains(t, err, "entractl actions")
}

func TestParseParams(t *testing.T) {
	got, err := parseParams([]string{
		"UserPrincipalName=a@x.com",
		"GroupNames=Sales", "GroupNames=Ops", "GroupNames=HR",
		"AutoMapping",
		"Note=a=b",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"UserPrincipalName": "a@x.com",
		"GroupNames":        []any{"Sales", "Ops", "HR"},
		"AutoMapping":       true,
		"Note":              "a=b",
	}, got)

	_, err = parseParams([]string{"=x"})
	assert.Error(t, err)
	_, err = parseParams([]string{"Flag", "Flag=x"})
	assert.Error(t, err)
}

func TestMCPInstructions(t *testing.T) {
	out, err := execute(t, "mcp", "--instructions")
	require.NoError(t, err)
	assert.Contains(t, out, "entra_inspect")
}
