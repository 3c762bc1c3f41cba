package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/androidleak/leak-triage/internal/utils"
)

func TestReadDetectsCapabilities(t *testing.T) {
	src := "\ufefftimestamp,domain,ip,record_type\n" +
		"2024-01-01T03:00:00,evil.example.xyz,1.2.3.4,A\n" +
		"not-a-time,,NaN,AAAA\n" +
		"\n" +
		",good.example.com,5.6.7.8\n"

	table, err := NewReader(nil).Read(strings.NewReader(src))
	require.NoError(t, err)

	assert.True(t, table.Caps.Timestamp)
	assert.True(t, table.Caps.Domain)
	assert.True(t, table.Caps.IP)
	assert.False(t, table.Caps.Label)
	require.Equal(t, 3, table.Len())
	assert.Equal(t, 3, table.Features.Rows())

	assert.True(t, table.Rows[0].HasTimestamp())
	assert.Equal(t, 3, table.Rows[0].Timestamp.Hour())
	assert.Equal(t, "evil.example.xyz", table.Rows[0].Domain)

	assert.False(t, table.Rows[1].HasTimestamp())
	assert.Equal(t, "not-a-time", table.Rows[1].RawTimestamp)
	assert.Empty(t, table.Rows[1].IP)
	assert.Equal(t, "AAAA", table.Rows[1].Fields["record_type"])

	assert.Empty(t, table.Rows[2].RawTimestamp)
	assert.Equal(t, "", table.Rows[2].Fields["record_type"])
}

func TestReadWithoutOptionalColumns(t *testing.T) {
	table, err := NewReader(nil).Read(strings.NewReader("pid,message\n12,hello\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, table.Len())
	assert.False(t, table.Caps.Timestamp || table.Caps.Domain || table.Caps.IP || table.Caps.Label)
}

func TestReadEmptyInputIsDataError(t *testing.T) {
	_, err := NewReader(nil).Read(strings.NewReader(""))
	assert.ErrorIs(t, err, utils.ErrData)
}

func TestReadFileMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resolved_dns_log.csv")
	_, err := NewReader(nil).ReadFile(path, "case log")
	require.ErrorIs(t, err, utils.ErrNotFound)
	assert.Contains(t, err.Error(), path)
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.csv")
	require.NoError(t, os.WriteFile(path, []byte("ip,is_suspicious\n1.2.3.4,1\n"), 0o644))

	table, err := NewReader(nil).ReadFile(path, "case log")
	require.NoError(t, err)
	assert.True(t, table.Caps.Label)
	assert.Equal(t, "1.2.3.4", table.Rows[0].IP)
}
