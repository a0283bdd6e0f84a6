package action

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deixis/entractl/internal/command"
	"github.com/deixis/entractl/internal/directory"
	"github.com/deixis/entractl/internal/extract"
	"github.com/deixis/entractl/internal/logs"
	"github.com/deixis/entractl/internal/report"
	"github.com/deixis/entractl/internal/runner"
)

// newEngine wires the builtin catalog to a fake interpreter: "sh -c script"
// receives the script path as $1 and the parameters after it.
func newEngine(t *testing.T, script string) (*Engine, *report.DiskStore) {
	t.Helper()
	store := report.NewDiskStore(t.TempDir())
	cat := Builtin()
	return &Engine{
		Catalog: cat,
		Builder: &command.Builder{
			Executable: "sh",
			BaseArgs:   []string{"-c", script, "fake"},
			Scripts:    cat.Scripts(),
		},
		Runner: &runner.Runner{Logs: logs.NewDir(t.TempDir())},
		Store:  store,
	}, store
}

const echoArgs = `printf '[{"Args":"%s"}]\n' "$*"`

func TestDispatch_RoundTrip(t *testing.T) {
	script := `echo "Connecting to tenant"
echo "[INFO] processing $3"
echo '[{"UserUPN":"a@x.com","Group":"Sales","Status":"✅ Added"},{"UserUPN":"a@x.com","Group":"Ops","Status":"❌ Group not found"}]'`
	e, store := newEngine(t, script)

	rr, err := e.Dispatch(context.Background(), "assign_groups", map[string]any{
		"UserPrincipalName": []any{"a@x.com"},
		"GroupNames":        []any{"Sales", "Ops"},
	}, nil)
	require.NoError(t, err)
	require.True(t, rr.OK(), "run failed: %s %s", rr.ErrorKind, rr.Message)

	want := []extract.Record{
		extract.NewRecord("UserUPN", "a@x.com", "Group", "Sales", "Status", "✅ Added"),
		extract.NewRecord("UserUPN", "a@x.com", "Group", "Ops", "Status", "❌ Group not found"),
	}
	require.Len(t, rr.Records, len(want))
	for i := range want {
		assert.Equal(t, want[i].Keys(), rr.Records[i].Keys())
		assert.Equal(t, want[i].Map(), rr.Records[i].Map())
	}
	assert.Equal(t, report.Summary{Success: 1, Failure: 1}, rr.Summary())
	assert.FileExists(t, rr.LogPath)

	saved, err := store.Load(rr.ID)
	require.NoError(t, err)
	assert.Equal(t, "assign_groups", saved.Action)
	assert.Len(t, saved.Records, 2)
}

func TestDispatch_ResetPasswordArgs(t *testing.T) {
	e, store := newEngine(t, echoArgs)

	rr, err := e.Dispatch(context.Background(), "reset_password", map[string]any{
		"UserPrincipalName": []any{"a@x.com", "b@x.com"},
		"NewPasswordBase64": "pass",
	}, nil)
	require.NoError(t, err)
	require.True(t, rr.OK())

	got, _ := rr.Records[0].Get("Args")
	assert.Equal(t, "Reset-UserPassword.ps1 -UserPrincipalName a@x.com,b@x.com -NewPasswordBase64 cGFzcw==", got)

	wantTail := []string{"Reset-UserPassword.ps1", "-UserPrincipalName", "a@x.com,b@x.com", "-NewPasswordBase64", "***"}
	require.GreaterOrEqual(t, len(rr.Args), len(wantTail))
	assert.Equal(t, wantTail, rr.Args[len(rr.Args)-len(wantTail):])

	saved, err := store.Load(rr.ID)
	require.NoError(t, err)
	assert.NotContains(t, strings.Join(saved.Args, " "), "cGFzcw==")
}

func TestDispatch_NonZeroExit(t *testing.T) {
	e, store := newEngine(t, `echo "Step 1"; printf 'user not found: ghost@x.com' >&2; exit 4`)

	rr, err := e.Dispatch(context.Background(), "disable_user", map[string]any{
		"UserPrincipalName": "ghost@x.com",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, report.Failed, rr.Status)
	assert.Equal(t, string(runner.KindNonZeroExit), rr.ErrorKind)
	assert.Equal(t, "user not found: ghost@x.com", rr.Message)
	assert.Equal(t, 4, rr.ExitCode)
	assert.Empty(t, rr.Records)

	saved, err := store.Load(rr.ID)
	require.NoError(t, err)
	assert.Equal(t, report.Failed, saved.Status)
}

func TestDispatch_LaunchError(t *testing.T) {
	e, _ := newEngine(t, "")
	e.Builder.Executable = filepath.Join(t.TempDir(), "no-such-pwsh")

	rr, err := e.Dispatch(context.Background(), "revoke_sessions", map[string]any{
		"UserPrincipalName": "a@x.com",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, report.Failed, rr.Status)
	assert.Equal(t, string(runner.KindLaunch), rr.ErrorKind)
	assert.NotEmpty(t, rr.Message)
}

func TestDispatch_TenantEnv(t *testing.T) {
	e, _ := newEngine(t, `printf '[{"Tenant":"%s"}]' "$ENTRA_TENANT_ID"`)
	e.TenantID = "contoso-tid"

	rr, err := e.Dispatch(context.Background(), "get_laps_password", map[string]any{"DeviceName": "PC-042"}, nil)
	require.NoError(t, err)
	got, _ := rr.Records[0].Get("Tenant")
	assert.Equal(t, "contoso-tid", got)
}

func TestStart_InputErrors(t *testing.T) {
	e, _ := newEngine(t, echoArgs)
	ctx := context.Background()

	_, err := e.Start(ctx, "delete_tenant", nil, nil)
	assert.True(t, errors.Is(err, ErrUnknownAction))

	_, err = e.Start(ctx, "assign_groups", map[string]any{"UserPrincipalName": "a@x.com", "GroupNames": []any{}}, nil)
	var missing *MissingFieldError
	require.True(t, errors.As(err, &missing), "err = %v", err)
	assert.Equal(t, []string{"GroupNames"}, missing.Fields)

	_, err = e.Start(ctx, "revoke_sessions", map[string]any{"UserPrincipalName": "a@x.com", "Upn": "b@x.com"}, nil)
	assert.True(t, errors.Is(err, ErrUnknownField))

	_, err = e.Start(ctx, "disable_user", map[string]any{"UserPrincipalName": "a@x.com", "RevokeSessions": "maybe"}, nil)
	assert.Error(t, err)
}

type fakeResolver struct {
	known map[string]bool
	err   error
}

func (f *fakeResolver) LookupUser(_ context.Context, upn string) (*directory.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	if !f.known[upn] {
		return nil, directory.ErrUserNotFound
	}
	return &directory.User{UserPrincipalName: upn}, nil
}

type countingStarter struct {
	Starter
	n int
}

func (c *countingStarter) Start(ctx context.Context, inv *command.Invocation, opts ...runner.StartOption) *runner.Job {
	c.n++
	return c.Starter.Start(ctx, inv, opts...)
}

func TestStart_PreflightBlocksUnknownUsers(t *testing.T) {
	e, _ := newEngine(t, echoArgs)
	starter := &countingStarter{Starter: e.Runner}
	e.Runner = starter
	e.Resolver = &fakeResolver{known: map[string]bool{"a@x.com": true}}

	_, err := e.Start(context.Background(), "disable_user", map[string]any{
		"UserPrincipalName": []any{"a@x.com", "ghost@x.com"},
	}, nil)
	var pf *PreflightError
	require.True(t, errors.As(err, &pf), "err = %v", err)
	assert.Equal(t, []string{"ghost@x.com"}, pf.Missing)
	assert.True(t, errors.Is(err, directory.ErrUserNotFound))
	assert.Equal(t, 0, starter.n)

	// Directory outages do not block runs.
	e.Resolver = &fakeResolver{err: errors.New("throttled")}
	rr, err := e.Dispatch(context.Background(), "disable_user", map[string]any{"UserPrincipalName": "ghost@x.com"}, nil)
	require.NoError(t, err)
	assert.True(t, rr.OK())
	assert.Equal(t, 1, starter.n)
}

func TestStart_RunWait(t *testing.T) {
	e, _ := newEngine(t, echoArgs)

	run, err := e.Start(context.Background(), "revoke_sessions", map[string]any{"UserPrincipalName": "a@x.com"}, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)

	rr, err := run.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, run.ID, rr.ID)
}

func TestDispatch_BulkStreaming(t *testing.T) {
	dir := t.TempDir()
	csvBody := "DisplayName,UserPrincipalName,Department\nNew One,n1@x.com,Sales\nNew Two,n2@x.com,Ops\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "users.csv"), []byte(csvBody), 0o644))

	script := `for i in 1 2 3; do echo "row $i created"; done
echo '[{"UserPrincipalName":"n1@x.com","Status":"Created"}]'`
	e, _ := newEngine(t, script)
	e.Builder.Dir = dir

	var lines []string
	rr, err := e.Dispatch(context.Background(), "bulk_create_users", map[string]any{"CsvPath": "users.csv"}, func(l string) {
		lines = append(lines, l)
	})
	require.NoError(t, err)
	require.True(t, rr.OK())
	require.Len(t, lines, 4)
	assert.Equal(t, []string{"row 1 created", "row 2 created", "row 3 created"}, lines[:3])
	assert.Equal(t, "n1@x.com", rr.Records[0].Subject())
	assert.Contains(t, rr.Args, filepath.Join(dir, "users.csv"))

	data, err := os.ReadFile(rr.LogPath)
	require.NoError(t, err)
	assert.Equal(t, strings.Join(lines, "\n")+"\n", string(data))
}

func TestDispatch_BulkRejectsBadCSV(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.csv"), []byte("Name,Mail\nx,y\n"), 0o644))
	e, _ := newEngine(t, echoArgs)

	_, err := e.Dispatch(context.Background(), "bulk_create_users", map[string]any{"CsvPath": filepath.Join(dir, "bad.csv")}, nil)
	var csvErr *CSVError
	require.True(t, errors.As(err, &csvErr), "err = %v", err)
	assert.Contains(t, csvErr.Reason, "DisplayName")
}

func TestDispatch_TAPMaskedInHistory(t *testing.T) {
	script := `echo "Creating pass"
echo "###TAP_START###"
echo '{"UserPrincipalName":"a@x.com","TemporaryAccessPass":"Xy7#abc","LifetimeInMinutes":"60"}'
echo "###TAP_END###"
echo "Disconnected [ok]"`
	e, store := newEngine(t, script)

	rr, err := e.Dispatch(context.Background(), "generate_tap", map[string]any{"UserPrincipalName": "a@x.com"}, nil)
	require.NoError(t, err)
	require.Len(t, rr.Records, 1)
	tap, _ := rr.Records[0].Get("TemporaryAccessPass")
	assert.Equal(t, "Xy7#abc", tap)

	saved, err := store.Load(rr.ID)
	require.NoError(t, err)
	tap, _ = saved.Records[0].Get("TemporaryAccessPass")
	assert.Equal(t, "***", tap)
	assert.Equal(t, []string{"UserPrincipalName", "TemporaryAccessPass", "LifetimeInMinutes"}, saved.Records[0].Keys())
}

func TestHandle_Override(t *testing.T) {
	e, _ := newEngine(t, echoArgs)
	called := false
	e.Handle("revoke_sessions", func(ctx context.Context, c *Call) (*Run, error) {
		called = true
		return nil, errors.New("maintenance window")
	})
	_, err := e.Start(context.Background(), "revoke_sessions", map[string]any{"UserPrincipalName": "a@x.com"}, nil)
	assert.EqualError(t, err, "maintenance window")
	assert.True(t, called)
}

func TestHandle_ConcurrentWithStart(t *testing.T) {
	e, _ := newEngine(t, echoArgs)
	blocked := errors.New("blocked")
	refuse := func(ctx context.Context, c *Call) (*Run, error) { return nil, blocked }
	e.Handle("revoke_sessions", refuse)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			e.Handle("revoke_sessions", refuse)
		}()
		go func() {
			defer wg.Done()
			_, err := e.Start(context.Background(), "revoke_sessions", map[string]any{"UserPrincipalName": "a@x.com"}, nil)
			assert.ErrorIs(t, err, blocked)
		}()
	}
	wg.Wait()
}
