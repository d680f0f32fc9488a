package migrations

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSQLFilesEmbedded(t *testing.T) {
	entries, err := sqlFiles.ReadDir("sql")
	assert.NoError(t, err)
	assert.NotEmpty(t, entries)

	names := make(map[string]bool, len(entries))
	for _, e := range entries {
		names[e.Name()] = true
	}
	for _, want := range []string{
		"0001_event_bookmarks.up.sql",
		"0002_security_event_rules.up.sql",
		"0003_security_events.up.sql",
		"0004_action_executions.up.sql",
	} {
		assert.True(t, names[want], "missing migration file %s", want)
	}
}
