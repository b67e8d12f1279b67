package migrate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsValidate(t *testing.T) {
	require.NoError(t, ValidateDir(""))
}

func TestCreateThenValidate(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

	path, err := createAt(dir, "  Add Payout Columns!", now)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "20260701120000_add_payout_columns.sql"), path)
	require.NoError(t, ValidateDir(dir))

	_, err = createAt(dir, "add payout columns", now)
	require.ErrorContains(t, err, "already exists")

	_, err = createAt(dir, "!!!", now)
	require.Error(t, err)
}

func TestValidateDirRejectsBadFiles(t *testing.T) {
	cases := map[string]struct {
		name string
		body string
		want string
	}{
		"bad name":     {name: "001_init.sql", body: upMarker + "\n" + downMarker, want: "invalid migration filename"},
		"missing down": {name: "20260101000000_a.sql", body: upMarker + "\nSELECT 1;", want: "missing"},
		"down first":   {name: "20260101000000_a.sql", body: downMarker + "\n" + upMarker, want: "must precede"},
		"unbalanced":   {name: "20260101000000_a.sql", body: upMarker + "\n" + beginMarker + "\n" + downMarker, want: "StatementBegin"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, tc.name), []byte(tc.body), 0o644))
			err := ValidateDir(dir)
			require.Error(t, err)
			require.True(t, strings.Contains(err.Error(), tc.want), err.Error())
		})
	}
}

func TestValidateDirRejectsDuplicateVersions(t *testing.T) {
	dir := t.TempDir()
	body := []byte(upMarker + "\n" + downMarker + "\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20260101000000_a.sql"), body, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20260101000000_b.sql"), body, 0o644))
	require.ErrorContains(t, ValidateDir(dir), "duplicate migration version")
}
