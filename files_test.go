package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/portal-go/internal/credstore"
	"github.com/tonimelisma/portal-go/internal/portal"
)

func TestResourceCommands_RequireLogin(t *testing.T) {
	e := newCLIEnv(t)

	for _, args := range [][]string{
		{"ls"},
		{"upload", "x.csv"},
		{"rm", "1"},
		{"stat", "1"},
		{"download", "1"},
		{"report", "1"},
		{"summary"},
	} {
		_, err := e.run(t, "", args...)
		assert.ErrorIs(t, err, errNotLoggedIn, args[0])
	}
}

func TestLs_JSONWithReports(t *testing.T) {
	e := newCLIEnv(t)
	e.login(t)

	stdout, err := e.run(t, "", "ls", "--json", "--reports")
	require.NoError(t, err)

	var rows []fileWithReport
	require.NoError(t, json.Unmarshal([]byte(stdout), &rows))
	require.Len(t, rows, 2)

	assert.Equal(t, "q1.xlsx", rows[0].FileName)
	require.NotNil(t, rows[0].Report)
	assert.Equal(t, map[string]int64{"A": 3}, rows[0].Report.QuotaCounts)
	assert.Equal(t, map[string]int64{"X": 1, "Y": 2}, rows[0].Report.NotesCounts)
	assert.Nil(t, rows[1].Report)
}

func TestLs_Table(t *testing.T) {
	e := newCLIEnv(t)
	e.login(t)

	stdout, err := e.run(t, "", "ls")
	require.NoError(t, err)
	assert.Contains(t, stdout, "q1.xlsx")
	assert.Contains(t, stdout, "1.5 KB")
	assert.Contains(t, stdout, "10 bytes")
}

func TestLs_RussianSizes(t *testing.T) {
	e := newCLIEnv(t)
	e.login(t)

	stdout, err := e.run(t, "", "--lang", "ru", "ls")
	require.NoError(t, err)
	assert.Contains(t, stdout, "1,5 КБ")
}

func TestLs_RefreshesExpiredToken(t *testing.T) {
	e := newCLIEnv(t)
	e.login(t)
	e.portal.expire("a1")

	_, err := e.run(t, "", "ls")
	require.NoError(t, err)

	keys := e.storedKeys(t)
	assert.Equal(t, "a2", keys[credstore.KeyAccessToken], "refreshed access token persisted")
	assert.Equal(t, "r1", keys[credstore.KeyRefreshToken], "refresh token untouched")
	assert.Equal(t, 1, e.portal.refreshCalls)
}

func TestLs_AuthFailureClearsSession(t *testing.T) {
	e := newCLIEnv(t)
	e.login(t)
	e.portal.rejectAllAuth = true

	_, err := e.run(t, "", "ls")
	require.Error(t, err)
	assert.ErrorIs(t, err, portal.ErrAuthenticationFailed)
	assert.Empty(t, e.storedKeys(t))
	assert.Zero(t, e.portal.refreshCalls)
}

func TestUpload_AndDuplicate(t *testing.T) {
	e := newCLIEnv(t)
	e.login(t)

	path := filepath.Join(e.dir, "quotas.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b\n1,2\n"), 0o600))

	stdout, err := e.run(t, "", "upload", "--json", path)
	require.NoError(t, err)

	var rec portal.FileRecord
	require.NoError(t, json.Unmarshal([]byte(stdout), &rec))
	assert.Equal(t, "quotas.csv", rec.FileName)
	assert.Equal(t, int64(8), rec.FileSize)

	_, err = e.run(t, "", "upload", path)
	require.Error(t, err)
	assert.ErrorIs(t, err, portal.ErrDuplicateFile)
	assert.Contains(t, err.Error(), "already been processed recently")

	assert.NotEmpty(t, e.storedKeys(t), "duplicate does not end the session")
}

func TestUpload_TooLarge(t *testing.T) {
	e := newCLIEnv(t)
	e.login(t)

	cfg, err := os.ReadFile(e.cfgPath)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(e.cfgPath, append(cfg, []byte("\n[upload]\nmax_size = \"4\"\n")...), 0o600))

	path := filepath.Join(e.dir, "big.csv")
	require.NoError(t, os.WriteFile(path, []byte("12345"), 0o600))

	_, err = e.run(t, "", "upload", path)
	assert.ErrorIs(t, err, portal.ErrFileTooLarge)
	assert.Len(t, e.portal.files, 2, "nothing reached the server")
}

func TestUpload_MissingFile(t *testing.T) {
	e := newCLIEnv(t)
	e.login(t)

	_, err := e.run(t, "", "upload", filepath.Join(e.dir, "nope.csv"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRmAndStat(t *testing.T) {
	e := newCLIEnv(t)
	e.login(t)

	stdout, err := e.run(t, "", "stat", "--json", "1")
	require.NoError(t, err)
	assert.Contains(t, stdout, `"file_name": "q1.xlsx"`)

	_, err = e.run(t, "", "rm", "1")
	require.NoError(t, err)
	assert.Len(t, e.portal.files, 1)

	_, err = e.run(t, "", "stat", "1")
	assert.ErrorIs(t, err, portal.ErrRequestFailed)
}

func TestRm_InvalidID(t *testing.T) {
	e := newCLIEnv(t)

	for _, arg := range []string{"abc", "0", "-3"} {
		_, err := e.run(t, "", "rm", "--", arg)
		assert.ErrorContains(t, err, "invalid file ID", arg)
	}
}

func TestDownload(t *testing.T) {
	e := newCLIEnv(t)
	e.login(t)

	target := filepath.Join(e.dir, "out.xlsx")

	_, err := e.run(t, "", "download", "1", target)
	require.NoError(t, err)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "content of 1", string(data))

	_, err = os.Stat(target + ".partial")
	assert.True(t, os.IsNotExist(err))
}

func TestReport(t *testing.T) {
	e := newCLIEnv(t)
	e.login(t)

	stdout, err := e.run(t, "", "report", "1")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Quotas (3)")
	assert.Contains(t, stdout, "Notes (3)")
	assert.Contains(t, stdout, "Specializations (4)")

	stdout, err = e.run(t, "", "report", "2")
	require.NoError(t, err, "missing report is not an error")
	assert.Empty(t, stdout)
}

func TestParseFileID(t *testing.T) {
	id, err := parseFileID("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	_, err = parseFileID("4.2")
	assert.Error(t, err)
}
