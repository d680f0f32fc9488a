package config

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/iff-guardian/hostguard/internal/watcher"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("hostguardd")
	assert.NoError(t, err)
	assert.Equal(t, "hostguardd", cfg.ServiceName)
	assert.Equal(t, 1000, cfg.Watcher.DefaultMaxQueue)
	assert.Equal(t, 5, cfg.Response.MaxPendingActionsPerConversation)
}

func TestChannel_ToChannelConfig(t *testing.T) {
	c := Channel{Name: "Security", Enabled: true, BookmarkPersistence: "Database", MaxQueue: 500}
	wc := c.toChannelConfig()
	assert.Equal(t, "Security", wc.Name)
	assert.Equal(t, watcher.BookmarkDatabase, wc.BookmarkPersistence)
	assert.Equal(t, 500, wc.MaxQueue)
}

func TestChannel_ToChannelConfig_DefaultsToNoPersistence(t *testing.T) {
	c := Channel{Name: "Application", Enabled: true}
	wc := c.toChannelConfig()
	assert.Equal(t, watcher.BookmarkNone, wc.BookmarkPersistence)
}

func TestResponse_ToResponseConfig_ConvertsUndoWindows(t *testing.T) {
	r := Response{DefaultUndoWindowHours: 72, UndoWindowHoursByType: map[string]int{"block_ip": 24}}
	rc := r.toResponseConfig()
	assert.Equal(t, 72*60, int(rc.DefaultUndoWindow.Minutes()))
	assert.Equal(t, 24*60, int(rc.UndoWindows["block_ip"].Minutes()))
}
