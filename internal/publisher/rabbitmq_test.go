package publisher

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobharvest/internal/domain"
)

func TestNewJobMessage(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	job := &domain.Job{
		RowID:          7,
		JobID:          "f3a9c2",
		Title:          "Platform Engineer",
		CompanyID:      "42",
		IsActive:       true,
		CoordinatesLat: 47.37,
	}

	body, err := newJobMessage(job, now)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(body, &raw))
	assert.Equal(t, "harvested", raw["action"])
	assert.Equal(t, "2024-03-01T11:00:00Z", raw["timestamp"])

	payload, ok := raw["job"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "f3a9c2", payload["job_id"])
	assert.Equal(t, "Platform Engineer", payload["title"])
	assert.Equal(t, true, payload["is_active"])
	assert.InDelta(t, 47.37, payload["coordinates_lat"], 1e-9)

	var msg JobMessage
	require.NoError(t, json.Unmarshal(body, &msg))
	assert.Equal(t, *job, msg.Job)
}
