package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("PROJECT_ID", "test-project")
	t.Setenv("DOCUMENTS_BUCKET", "test-bucket")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "documents", cfg.DocumentsCollection)
	assert.Equal(t, "processingSessions", cfg.SessionsCollection)
	assert.Equal(t, 15*time.Minute, cfg.LockTTL)
	assert.Equal(t, 10*time.Minute, cfg.RunTimeout)
	assert.Equal(t, 150, cfg.RasterDPI)
	assert.Equal(t, LeadRangeManual, cfg.LeadRangeSource)
	assert.False(t, cfg.SuggesterEnabled)
}

func TestLoadRequiresProjectAndBucket(t *testing.T) {
	t.Setenv("PROJECT_ID", "")
	t.Setenv("DOCUMENTS_BUCKET", "b")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("PROJECT_ID", "p")
	t.Setenv("DOCUMENTS_BUCKET", "")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoadRejectsBadLeadRangeSource(t *testing.T) {
	setRequired(t)
	t.Setenv("SPLIT_LEAD_RANGE_SOURCE", "majority-vote")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsTimeoutLongerThanLock(t *testing.T) {
	setRequired(t)
	t.Setenv("LOCK_TTL", "5m")
	t.Setenv("RUN_TIMEOUT", "10m")
	_, err := Load()
	assert.Error(t, err)
}
