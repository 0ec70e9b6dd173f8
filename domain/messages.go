package domain

// Stage names a pipeline step reported to the display layer
type Stage string

const (
	StageTranscribing Stage = "transcribing"
	StageAnalyzing    Stage = "analyzing"
	StageSpeaking     Stage = "speaking"
	StageComplete     Stage = "complete"
	StageFailed       Stage = "failed"
)

// ProgressMessage is pushed to websocket subscribers while a consultation runs
type ProgressMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Stage     Stage  `json:"stage"`
	Label     string `json:"label"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
}

// ResultMessage announces a finished consultation
type ResultMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Narrative string `json:"narrative"`
	ReplyText string `json:"reply_text"`
	HasAudio  bool   `json:"has_audio"`
	Timestamp string `json:"timestamp"`
}

// Message types
const (
	MessageTypeProgress = "progress"
	MessageTypeResult   = "result"
)
