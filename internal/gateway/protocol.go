package gateway

import "github.com/voxprep/voxprep/internal/interview"

// Client control message types.
const (
	MsgStart  = "start"
	MsgPause  = "pause"
	MsgResume = "resume"
	MsgSkip   = "skip"
	MsgAbort  = "abort"
)

// Server message types beyond the session event types.
const (
	MsgError  = "error"
	MsgReport = "report"
)

// StartRequest carries the parameters of a new interview session.
type StartRequest struct {
	CandidateID    string `json:"candidate_id,omitempty"`
	Role           string `json:"role,omitempty"`
	ResumeKey      string `json:"resume_key,omitempty"`
	JobDescription string `json:"job_description,omitempty"`
	QuestionCount  int    `json:"question_count,omitempty"`
}

// clientMessage is one text frame from the browser. Type selects the
// operation; the remaining fields are only read for "start".
type clientMessage struct {
	Type string `json:"type"`
	StartRequest
}

// serverMessage is one text frame to the browser. For session events Type
// mirrors [interview.EventType]; "error" and "report" are gateway-level.
type serverMessage struct {
	Type          string `json:"type"`
	Status        string `json:"status,omitempty"`
	QuestionIndex int    `json:"question_index"`
	Text          string `json:"text,omitempty"`
	Report        any    `json:"report,omitempty"`
}

func eventMessage(ev interview.Event) serverMessage {
	return serverMessage{
		Type:          string(ev.Type),
		Status:        string(ev.Status),
		QuestionIndex: ev.QuestionIndex,
		Text:          ev.Text,
	}
}

func errorMessage(text string) serverMessage {
	return serverMessage{Type: MsgError, Text: text}
}
