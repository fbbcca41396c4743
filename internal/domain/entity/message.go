package entity

import "github.com/google/uuid"

// ExtractionMessage is the inbound message from the video.extraction queue.
type ExtractionMessage struct {
	JobID           uuid.UUID `json:"job_id"`
	VideoKey        string    `json:"video_key"`
	FileSize        int64     `json:"file_size"`
	UserEmail       string    `json:"user_email"`
	IntervalSeconds float64   `json:"interval_seconds,omitempty"`
}

// AnalysisMessage is the inbound message from the video.analysis queue.
type AnalysisMessage struct {
	JobID     uuid.UUID `json:"job_id"`
	VideoKey  string    `json:"video_key"`
	UserEmail string    `json:"user_email"`
}

// VideoStatusMessage is the outbound message published to the video.status queue.
type VideoStatusMessage struct {
	VideoID      uuid.UUID   `json:"video_id"`
	VideoKey     string      `json:"video_key"`
	Status       VideoStatus `json:"status"`
	FrameCount   int         `json:"frame_count,omitempty"`
	AnalyzedKey  string      `json:"analyzed_key,omitempty"`
	FrameKey     string      `json:"frame_key,omitempty"`
	Detections   []Detection `json:"detections,omitempty"`
	ErrorMessage string      `json:"error_message,omitempty"`
	Attempt      int         `json:"attempt"`
	MaxAttempts  int         `json:"max_attempts"`
}

// AnalysisEvent is emitted to subscribers after a frame has been analyzed.
type AnalysisEvent struct {
	VideoKey    string      `json:"video_key"`
	FrameKey    string      `json:"frame_key"`
	AnalyzedKey string      `json:"analyzed_key"`
	Detections  []Detection `json:"detections"`
}

func NewStatusMessage(v *Video) VideoStatusMessage {
	return VideoStatusMessage{
		VideoID:      v.ID,
		VideoKey:     v.VideoKey,
		Status:       v.Status,
		FrameCount:   v.FrameCount,
		AnalyzedKey:  v.AnalyzedKey,
		FrameKey:     v.AnalyzedFrameKey,
		Detections:   v.Detections,
		ErrorMessage: v.ErrorMessage,
		Attempt:      v.Attempt,
		MaxAttempts:  v.MaxAttempts,
	}
}
