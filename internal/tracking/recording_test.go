package tracking_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gemnar/internal/projects"
	"gemnar/internal/tracking"
	"gemnar/internal/testsupport"
)

func TestSaveRecording(t *testing.T) {
	t.Run("stores a gzip payload that round-trips", func(t *testing.T) {
		dbManager, logger, project := testsupport.SetupTestDBManagerWithProject(t)
		pageView, _ := testsupport.CreateTestSessionWithPageView(t, dbManager, logger, project.TrackingCode, "sess-rec-1", "/")

		movements := `[{"x":10,"y":20,"t":0},{"x":14,"y":26,"t":120}]`
		recording, err := tracking.SaveRecording(dbManager, logger, &tracking.RecordingInput{
			TrackingCode:        project.TrackingCode,
			PageViewToken:       pageView.Token,
			MouseMovements:      movements,
			RecordingDurationMs: 5400,
		})
		require.NoError(t, err)
		assert.Equal(t, "gzip", recording.CompressionType)
		assert.Equal(t, 5400, recording.RecordingDurationMs)
		assert.Equal(t, len(recording.MouseMovements), recording.DataSizeBytes)

		decoded, err := recording.DecodedMovements()
		require.NoError(t, err)
		assert.Equal(t, movements, decoded)
	})

	t.Run("second upload replaces the stored payload", func(t *testing.T) {
		dbManager, logger, project := testsupport.SetupTestDBManagerWithProject(t)
		pageView, _ := testsupport.CreateTestSessionWithPageView(t, dbManager, logger, project.TrackingCode, "sess-rec-2", "/")

		_, err := tracking.SaveRecording(dbManager, logger, &tracking.RecordingInput{
			TrackingCode:        project.TrackingCode,
			PageViewToken:       pageView.Token,
			MouseMovements:      `[{"x":1,"y":1,"t":0}]`,
			RecordingDurationMs: 1000,
		})
		require.NoError(t, err)

		second := `[{"x":1,"y":1,"t":0},{"x":2,"y":2,"t":50}]`
		recording, err := tracking.SaveRecording(dbManager, logger, &tracking.RecordingInput{
			TrackingCode:        project.TrackingCode,
			PageViewToken:       pageView.Token,
			MouseMovements:      second,
			RecordingDurationMs: 2000,
		})
		require.NoError(t, err)

		decoded, err := recording.DecodedMovements()
		require.NoError(t, err)
		assert.Equal(t, second, decoded, "Replacement, not append")
		assert.Equal(t, 2000, recording.RecordingDurationMs)

		var count int64
		dbManager.GetConnection().Model(&tracking.Recording{}).Where("page_view_id = ?", pageView.ID).Count(&count)
		assert.EqualValues(t, 1, count, "At most one recording per page view")
	})

	t.Run("disabled recording is a no-op", func(t *testing.T) {
		dbManager, logger, project := testsupport.SetupTestDBManagerWithProject(t)
		db := dbManager.GetConnection()
		pageView, _ := testsupport.CreateTestSessionWithPageView(t, dbManager, logger, project.TrackingCode, "sess-rec-3", "/")

		project.RecordMouseMovements = false
		require.NoError(t, projects.UpdateProject(db, &project))

		_, err := tracking.SaveRecording(dbManager, logger, &tracking.RecordingInput{
			TrackingCode:        project.TrackingCode,
			PageViewToken:       pageView.Token,
			MouseMovements:      `[{"x":1,"y":1,"t":0}]`,
			RecordingDurationMs: 1000,
		})
		require.ErrorIs(t, err, tracking.ErrRecordingDisabled)

		var count int64
		db.Model(&tracking.Recording{}).Count(&count)
		assert.Zero(t, count, "Nothing may be stored when recording is off")
	})
}

func TestCompressRoundTrip(t *testing.T) {
	payloads := []string{
		"",
		"[]",
		`[{"x":0,"y":0,"t":0}]`,
		`{"nested":{"unicode":"héllo ✓","big":12345678901234}}`,
	}
	for _, payload := range payloads {
		compressed, err := tracking.Compress([]byte(payload))
		require.NoError(t, err)
		decompressed, err := tracking.Decompress(compressed)
		require.NoError(t, err)
		assert.Equal(t, payload, string(decompressed))
	}
}
