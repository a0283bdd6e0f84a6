package logs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreate_NameAndLines(t *testing.T) {
	d := NewDir(filepath.Join(t.TempDir(), "logs"))
	ts := time.Date(2026, 3, 4, 5, 6, 7, 890_000_000, time.Local)

	a, err := d.Create("reset_password", ts)
	require.NoError(t, err)
	assert.Equal(t, "20260304-050607.890_reset_password.log", filepath.Base(a.Path()))

	require.NoError(t, a.WriteLine("first"))
	require.NoError(t, a.WriteText("second\r\nthird\n"))
	require.NoError(t, a.Close())
	assert.Error(t, a.WriteLine("after close"))

	data, err := os.ReadFile(a.Path())
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond\nthird\n", string(data))
}

func TestCreate_NoCollision(t *testing.T) {
	d := NewDir(t.TempDir())
	ts := time.Now()

	a, err := d.Create("disable_user", ts)
	require.NoError(t, err)
	b, err := d.Create("disable_user", ts)
	require.NoError(t, err)
	defer a.Close()
	defer b.Close()

	assert.NotEqual(t, a.Path(), b.Path())
}

func TestCreate_SanitizesOperation(t *testing.T) {
	d := NewDir(t.TempDir())
	a, err := d.Create("../grant mailbox", time.Now())
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, d.Path, filepath.Dir(a.Path()))
	assert.Contains(t, filepath.Base(a.Path()), "___grant_mailbox")
}

func TestList_NewestFirst(t *testing.T) {
	d := NewDir(t.TempDir())
	older := time.Date(2026, 1, 1, 10, 0, 0, 0, time.Local)
	newer := older.Add(time.Hour)

	for _, c := range []struct {
		op string
		ts time.Time
	}{{"create_user", older}, {"generate_tap", newer}} {
		a, err := d.Create(c.op, c.ts)
		require.NoError(t, err)
		require.NoError(t, a.WriteLine("x"))
		require.NoError(t, a.Close())
	}
	require.NoError(t, os.WriteFile(filepath.Join(d.Path, "notes.txt"), []byte("ignored"), 0o644))

	entries, err := d.List()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "generate_tap", entries[0].Operation)
	assert.Equal(t, "create_user", entries[1].Operation)
	assert.True(t, entries[1].Time.Equal(older))
	assert.Equal(t, int64(2), entries[0].Size)
}

func TestList_MissingDir(t *testing.T) {
	entries, err := NewDir(filepath.Join(t.TempDir(), "absent")).List()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSearch(t *testing.T) {
	d := NewDir(t.TempDir())
	a, err := d.Create("assign_groups", time.Now())
	require.NoError(t, err)
	require.NoError(t, a.WriteText("Connecting\nAdded alice@contoso.com to Sales\nDone\n"))
	require.NoError(t, a.Close())

	matches, err := d.Search("ALICE@")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, 2, matches[0].Line)
	assert.Equal(t, "Added alice@contoso.com to Sales", matches[0].Text)
	assert.Equal(t, filepath.Base(a.Path()), matches[0].File)

	_, err = d.Search("")
	assert.Error(t, err)
}

func TestRead_RejectsTraversal(t *testing.T) {
	d := NewDir(t.TempDir())
	_, err := d.Read("../secret.log")
	assert.Error(t, err)
	_, err = d.Read("passwd")
	assert.Error(t, err)
}
