package entity

import (
	"time"

	"github.com/google/uuid"
)

type VideoStatus string

const (
	VideoStatusUploaded   VideoStatus = "UPLOADED"
	VideoStatusExtracting VideoStatus = "EXTRACTING"
	VideoStatusExtracted  VideoStatus = "EXTRACTED"
	VideoStatusAnalyzing  VideoStatus = "ANALYZING"
	VideoStatusAnalyzed   VideoStatus = "ANALYZED"
	VideoStatusFailed     VideoStatus = "FAILED"
)

// Video tracks one uploaded video through extraction and any number of analyses.
type Video struct {
	ID               uuid.UUID
	JobID            uuid.UUID
	VideoKey         string
	BaseName         string
	Status           VideoStatus
	FrameCount       int
	SampleInterval   float64
	AnalyzedKey      string
	AnalyzedFrameKey string
	Detections       []Detection
	Attempt          int
	MaxAttempts      int
	ErrorMessage     string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	ExtractedAt      *time.Time
	AnalyzedAt       *time.Time
}

func NewVideo(videoKey string, maxAttempts int) *Video {
	now := time.Now().UTC()
	return &Video{
		ID:          uuid.New(),
		VideoKey:    videoKey,
		BaseName:    BaseName(videoKey),
		Status:      VideoStatusUploaded,
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// BeginJob scopes the retry budget to jobID. Redeliveries of the same job keep
// counting; a new job starts from zero.
func (v *Video) BeginJob(jobID uuid.UUID) {
	if v.JobID == jobID {
		return
	}
	v.JobID = jobID
	v.Attempt = 0
}

func (v *Video) MarkExtracting(interval float64) {
	v.Status = VideoStatusExtracting
	v.SampleInterval = interval
	v.Attempt++
	v.ErrorMessage = ""
	v.UpdatedAt = time.Now().UTC()
}

func (v *Video) MarkExtracted(frameCount int) {
	now := time.Now().UTC()
	v.Status = VideoStatusExtracted
	v.FrameCount = frameCount
	v.Attempt = 0
	v.UpdatedAt = now
	v.ExtractedAt = &now
}

func (v *Video) MarkAnalyzing() {
	v.Status = VideoStatusAnalyzing
	v.Attempt++
	v.ErrorMessage = ""
	v.UpdatedAt = time.Now().UTC()
}

// MarkAnalyzed replaces the previous analysis; there is a single analyzed slot per video.
func (v *Video) MarkAnalyzed(analyzedKey, frameKey string, detections []Detection) {
	now := time.Now().UTC()
	v.Status = VideoStatusAnalyzed
	v.AnalyzedKey = analyzedKey
	v.AnalyzedFrameKey = frameKey
	v.Detections = detections
	v.Attempt = 0
	v.UpdatedAt = now
	v.AnalyzedAt = &now
}

func (v *Video) MarkFailed(errMsg string) {
	v.Status = VideoStatusFailed
	v.ErrorMessage = errMsg
	v.UpdatedAt = time.Now().UTC()
}

// MarkDeadLettered fails the video for good and releases the retry budget, so
// a later job for the same video is processed normally.
func (v *Video) MarkDeadLettered(errMsg string) {
	v.MarkFailed(errMsg)
	v.Attempt = 0
}

func (v *Video) CanRetry() bool {
	return v.Attempt < v.MaxAttempts
}
