package store

import (
	"smart-docqa-client/pkg/answer"
)

// RetrievedChunk is one passage the service judged relevant to the last query
type RetrievedChunk struct {
	Source string  `json:"source"`
	Score  float64 `json:"score"`
	Text   string  `json:"text"`
}

// UploadFile is a file the user picked for ingestion
type UploadFile struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// LoginForm holds the credentials typed in but not yet submitted
type LoginForm struct {
	Username string `json:"username"`
	Password string `json:"-"`
}

// Session represents the client session state shared with the presentation layer
type Session struct {
	Token string `json:"-"`

	State     string `json:"state"`     // "IDLE" | "BUSY"
	Operation string `json:"operation"` // "NONE" | "LOGIN" | "UPLOAD" | "QUERY"
	Seq       uint64 `json:"seq"`

	LoginForm LoginForm    `json:"login_form"`
	Selection []UploadFile `json:"selection"`
	QueryText string       `json:"query_text"`

	Results []RetrievedChunk `json:"results"`
	Answer  answer.Answer    `json:"answer"`

	Error  string `json:"error"`
	Notice string `json:"notice"`
}

const (
	StateIdle = "IDLE"
	StateBusy = "BUSY"

	OperationNone   = "NONE"
	OperationLogin  = "LOGIN"
	OperationUpload = "UPLOAD"
	OperationQuery  = "QUERY"
)

// NewSession returns a session resting in Idle(None)
func NewSession() *Session {
	return &Session{
		State:     StateIdle,
		Operation: OperationNone,
	}
}

// IsBusy reports whether an operation currently holds the in-flight slot
func (s *Session) IsBusy() bool {
	return s.State == StateBusy
}

// Reset drops everything scoped to the signed-in user. Seq is kept so that
// stale completions can still be recognised.
func (s *Session) Reset() {
	s.Token = ""
	s.State = StateIdle
	s.Operation = OperationNone
	s.LoginForm = LoginForm{}
	s.Selection = nil
	s.QueryText = ""
	s.Results = nil
	s.Answer = answer.Answer{}
	s.Error = ""
	s.Notice = ""
}

// Clone returns a deep copy safe to hand to readers
func (s *Session) Clone() Session {
	cp := *s
	if s.Selection != nil {
		cp.Selection = append([]UploadFile(nil), s.Selection...)
	}
	if s.Results != nil {
		cp.Results = append([]RetrievedChunk(nil), s.Results...)
	}
	cp.Answer = s.Answer.Clone()
	return cp
}
