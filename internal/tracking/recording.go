package tracking

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"gemnar/internal/projects"
)

// RecordingInput carries one mouse-movement snapshot upload.
type RecordingInput struct {
	TrackingCode  string
	PageViewToken string

	// Raw JSON text of the mouse movement trace as produced by the client
	MouseMovements      string
	RecordingDurationMs int
}

// ErrRecordingDisabled signals that the project has mouse recording turned
// off; the upload is acknowledged but nothing is stored.
var ErrRecordingDisabled = fmt.Errorf("recording disabled for project")

// SaveRecording compresses the movement trace and stores it against the
// page view. A page view holds at most one recording: repeat uploads
// replace the previous payload so storage stays bounded to the latest
// snapshot.
func SaveRecording(dbManager cartridge.DBManager, logger *slog.Logger, input *RecordingInput) (*Recording, error) {
	db := dbManager.GetConnection()

	project, err := projects.GetActiveByTrackingCode(db, input.TrackingCode)
	if err != nil {
		return nil, err
	}

	if !project.RecordMouseMovements {
		return nil, ErrRecordingDisabled
	}

	pageView, err := GetOwnedPageView(db, input.TrackingCode, input.PageViewToken)
	if err != nil {
		return nil, err
	}

	compressed, err := Compress([]byte(input.MouseMovements))
	if err != nil {
		logger.Error("Failed to compress recording payload", slog.Any("error", err))
		return nil, fmt.Errorf("failed to compress recording payload: %w", err)
	}

	now := time.Now().UTC()
	err = sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Exec(`
            INSERT INTO recordings (
                page_view_id, mouse_movements, recording_duration_ms,
                data_size_bytes, compression_type, created_at, updated_at
            ) VALUES (?, ?, ?, ?, 'gzip', ?, ?)
            ON CONFLICT(page_view_id) DO UPDATE SET
                mouse_movements = excluded.mouse_movements,
                recording_duration_ms = excluded.recording_duration_ms,
                data_size_bytes = excluded.data_size_bytes,
                compression_type = excluded.compression_type,
                updated_at = excluded.updated_at
        `, pageView.ID, compressed, input.RecordingDurationMs, len(compressed), now, now).Error
	})
	if err != nil {
		logger.Error("Failed to store recording", slog.Any("error", err))
		return nil, fmt.Errorf("failed to store recording: %w", err)
	}

	var recording Recording
	if err := db.Where("page_view_id = ?", pageView.ID).First(&recording).Error; err != nil {
		return nil, fmt.Errorf("failed to load recording after upsert: %w", err)
	}
	return &recording, nil
}

// GetRecording loads the stored recording for a page view.
func GetRecording(db *gorm.DB, pageViewID uint) (*Recording, error) {
	var recording Recording
	if err := db.Where("page_view_id = ?", pageViewID).First(&recording).Error; err != nil {
		return nil, err
	}
	return &recording, nil
}

// DecodedMovements decompresses the stored mouse-movement payload back into
// the original JSON text.
func (r *Recording) DecodedMovements() (string, error) {
	decoded, err := Decompress(r.MouseMovements)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

// Compress gzips a payload.
func Compress(payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := gzip.NewWriter(&buf)
	if _, err := writer.Write(payload); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decompress reverses Compress.
func Decompress(payload []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(reader)
}
