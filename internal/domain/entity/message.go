package entity

import "github.com/google/uuid"

// SummaryRequestMessage is the inbound message from the summary request queue.
type SummaryRequestMessage struct {
	RequestID uuid.UUID `json:"request_id"`
	VideoKey  string    `json:"video_key"`
	Filename  string    `json:"filename"`
	UserEmail string    `json:"user_email"`
}

// SummaryStatusMessage is the outbound message published to the status queue.
type SummaryStatusMessage struct {
	RequestID      uuid.UUID `json:"request_id"`
	RunID          string    `json:"run_id,omitempty"`
	Filename       string    `json:"filename"`
	State          RunState  `json:"state"`
	SummaryURL     string    `json:"summary_url,omitempty"`
	FrameCount     int       `json:"frame_count,omitempty"`
	SelectedFrames []int     `json:"selected_frames,omitempty"`
	ErrorKind      ErrorKind `json:"error_kind,omitempty"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	Attempt        int       `json:"attempt"`
	MaxAttempts    int       `json:"max_attempts"`
}

func NewStatusMessage(req SummaryRequestMessage, run *SummaryRun, attempt, maxAttempts int) SummaryStatusMessage {
	msg := SummaryStatusMessage{
		RequestID:   req.RequestID,
		Filename:    req.Filename,
		Attempt:     attempt,
		MaxAttempts: maxAttempts,
	}
	if run != nil {
		msg.RunID = run.ID.String()
		msg.State = run.State
		msg.SummaryURL = run.SummaryURL
		msg.FrameCount = run.SampledCount
		msg.SelectedFrames = run.SelectedFrames
		msg.ErrorKind = run.ErrorKind
		msg.ErrorMessage = run.ErrorMessage
	}
	return msg
}
