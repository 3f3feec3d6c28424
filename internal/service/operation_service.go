// FILE: internal/service/operation_service.go
// Coordinates login, upload and query so that at most one is in flight
package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"smart-docqa-client/internal/dto"
	"smart-docqa-client/internal/mapper"
	"smart-docqa-client/internal/pkg/logger"
	"smart-docqa-client/pkg/answer"
	"smart-docqa-client/pkg/events"
	"smart-docqa-client/pkg/store"

	"github.com/go-playground/validator/v10"
)

const module = "operation"

// User-facing messages
const (
	MsgLoginFailed  = "Login failed"
	MsgUploadFailed = "Upload failed"
	MsgQueryFailed  = "Query failed"
	MsgLogoutFailed = "Logout failed"

	AlertMissingCredentials = "Enter username and password!"
	AlertNoFiles            = "Select files first!"
	AlertNoQuery            = "Type a question!"
)

var (
	// ErrBusy rejects a submission while another operation holds the in-flight slot
	ErrBusy = errors.New("another operation is in progress")
	// ErrAuthDisabled is returned by Login and Logout in the unauthenticated deployment
	ErrAuthDisabled = errors.New("authentication is disabled")
	// ErrDiscarded is returned by an operation whose result arrived after the session moved on
	ErrDiscarded = errors.New("operation result discarded")
)

// ValidationError is a missing-input rejection. It never reaches the network.
type ValidationError struct {
	Operation string
	Message   string
	Err       error
}

func (e *ValidationError) Error() string { return e.Message }
func (e *ValidationError) Unwrap() error { return e.Err }

// OperationError is a failed operation: Message is what the user sees, Err the logged cause
type OperationError struct {
	Operation string
	Message   string
	Err       error
}

func (e *OperationError) Error() string { return e.Message }
func (e *OperationError) Unwrap() error { return e.Err }

// Gateway is the request layer used by the coordinator
type Gateway interface {
	Login(ctx context.Context, username, password string) (string, error)
	Upload(ctx context.Context, token string, files []store.UploadFile) (*dto.UploadResponse, error)
	Query(ctx context.Context, token string, text string) (*dto.QueryResponse, error)
}

// TokenKeeper owns the persisted credential
type TokenKeeper interface {
	Load(ctx context.Context) (string, error)
	Set(ctx context.Context, token string) error
	Clear(ctx context.Context) error
	Token() string
}

type IOperationService interface {
	// Input
	SetLoginForm(username, password string)
	SelectFiles(paths ...string) error
	SetQueryText(text string) error

	// Operations
	Restore(ctx context.Context) error
	Login(ctx context.Context) error
	Upload(ctx context.Context) error
	Query(ctx context.Context) error
	Logout(ctx context.Context) error

	// Read side
	Snapshot() store.Session
	RequiresAuth() bool
}

type operationService struct {
	gateway      Gateway
	tokens       TokenKeeper
	publisher    events.Publisher
	logger       logger.ILogger
	validate     *validator.Validate
	mapper       *mapper.QueryMapper
	requiresAuth bool

	mu    sync.Mutex
	state *store.Session
}

// NewOperationService builds the coordinator. With requiresAuth false tokens may be nil:
// login is disabled and no request carries a credential.
func NewOperationService(
	gateway Gateway,
	tokens TokenKeeper,
	publisher events.Publisher,
	log logger.ILogger,
	requiresAuth bool,
) IOperationService {
	return &operationService{
		gateway:      gateway,
		tokens:       tokens,
		publisher:    publisher,
		logger:       log,
		validate:     validator.New(),
		mapper:       mapper.NewQueryMapper(),
		requiresAuth: requiresAuth,
		state:        store.NewSession(),
	}
}

func (s *operationService) RequiresAuth() bool {
	return s.requiresAuth
}

func (s *operationService) SetLoginForm(username, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.LoginForm = store.LoginForm{Username: username, Password: password}
}

// SelectFiles replaces the selection. Paths that are not readable regular files reject the whole call,
// and so does an upload in flight, since its selection is cleared when it succeeds.
func (s *operationService) SelectFiles(paths ...string) error {
	var missing []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil || !info.Mode().IsRegular() {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("cannot select %s: not a readable file", strings.Join(missing, ", "))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.IsBusy() && s.state.Operation == store.OperationUpload {
		return ErrBusy
	}
	s.state.Selection = s.mapper.PathsToUploadFiles(paths)
	return nil
}

// SetQueryText is rejected while a query is in flight so the text keeps matching the results
func (s *operationService) SetQueryText(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.IsBusy() && s.state.Operation == store.OperationQuery {
		return ErrBusy
	}
	s.state.QueryText = text
	return nil
}

func (s *operationService) Snapshot() store.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Restore loads the persisted credential at start-up
func (s *operationService) Restore(ctx context.Context) error {
	if !s.requiresAuth {
		return nil
	}

	token, err := s.tokens.Load(ctx)
	if err != nil {
		s.logger.Error(module, "failed to restore session", map[string]interface{}{"error": err})
		return err
	}

	s.mu.Lock()
	s.state.Token = token
	s.mu.Unlock()

	s.publish(ctx, events.New(events.TypeSessionRestored, map[string]interface{}{
		"authenticated": token != "",
	}))
	return nil
}

func (s *operationService) Login(ctx context.Context) error {
	if !s.requiresAuth {
		return ErrAuthDisabled
	}

	s.mu.Lock()
	req := dto.LoginRequest{
		Username: s.state.LoginForm.Username,
		Password: s.state.LoginForm.Password,
	}
	seq, _, err := s.beginLocked(store.OperationLogin, req, AlertMissingCredentials)
	s.mu.Unlock()
	if err != nil {
		return s.rejected(ctx, store.OperationLogin, err)
	}
	s.started(ctx, store.OperationLogin, seq)

	token, err := s.gateway.Login(ctx, req.Username, req.Password)

	return s.complete(ctx, store.OperationLogin, seq, err, func(st *store.Session) error {
		// persisted first so memory never runs ahead of storage
		if err := s.tokens.Set(ctx, token); err != nil {
			return err
		}
		st.Token = token
		st.LoginForm = store.LoginForm{}
		return nil
	})
}

func (s *operationService) Upload(ctx context.Context) error {
	s.mu.Lock()
	files := append([]store.UploadFile(nil), s.state.Selection...)
	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	seq, token, err := s.beginLocked(store.OperationUpload, dto.UploadRequest{Paths: paths}, AlertNoFiles)
	s.mu.Unlock()
	if err != nil {
		return s.rejected(ctx, store.OperationUpload, err)
	}
	s.started(ctx, store.OperationUpload, seq)

	resp, err := s.gateway.Upload(ctx, token, files)

	return s.complete(ctx, store.OperationUpload, seq, err, func(st *store.Session) error {
		st.Selection = nil
		st.Notice = resp.Message
		s.logger.Info(module, "documents uploaded", map[string]interface{}{
			"files":           resp.Files,
			"upload_time_sec": resp.UploadTimeSec,
		})
		return nil
	})
}

func (s *operationService) Query(ctx context.Context) error {
	s.mu.Lock()
	text := s.state.QueryText
	seq, token, err := s.beginLocked(store.OperationQuery, dto.QueryRequest{Q: text}, AlertNoQuery)
	s.mu.Unlock()
	if err != nil {
		return s.rejected(ctx, store.OperationQuery, err)
	}
	s.started(ctx, store.OperationQuery, seq)

	resp, err := s.gateway.Query(ctx, token, text)

	return s.complete(ctx, store.OperationQuery, seq, err, func(st *store.Session) error {
		st.Answer = answer.DecodeField(resp.Answer)
		st.Results = s.mapper.ChunksToStore(resp.Results)
		return nil
	})
}

// Logout clears the credential and every piece of session-scoped state, including the query text.
// It is accepted while busy: the in-flight call keeps the slot until it returns and is then discarded.
func (s *operationService) Logout(ctx context.Context) error {
	if !s.requiresAuth {
		return ErrAuthDisabled
	}

	s.mu.Lock()
	err := s.tokens.Clear(ctx)
	s.state.Seq++
	state, op := s.state.State, s.state.Operation
	s.state.Reset()
	s.state.State, s.state.Operation = state, op
	if err != nil {
		// storage still holds the token, so memory keeps it too
		s.state.Token = s.tokens.Token()
		s.state.Error = MsgLogoutFailed
	}
	seq := s.state.Seq
	s.mu.Unlock()

	if err != nil {
		s.logger.Error(module, "logout failed", map[string]interface{}{"error": err, "seq": seq})
		s.publish(ctx, events.New(events.TypeOperationFailed, map[string]interface{}{
			"operation": "LOGOUT",
			"seq":       seq,
			"error":     MsgLogoutFailed,
		}))
		return &OperationError{Operation: "LOGOUT", Message: MsgLogoutFailed, Err: err}
	}

	s.logger.Info(module, "session cleared", map[string]interface{}{"seq": seq})
	s.publish(ctx, events.New(events.TypeSessionCleared, map[string]interface{}{"seq": seq}))
	return nil
}

// beginLocked moves Idle -> Busy(op). Callers hold s.mu.
func (s *operationService) beginLocked(op string, input interface{}, alert string) (uint64, string, error) {
	if s.state.IsBusy() {
		return 0, "", ErrBusy
	}
	if err := s.validate.Struct(input); err != nil {
		return 0, "", &ValidationError{Operation: op, Message: alert, Err: err}
	}

	s.state.Seq++
	s.state.State = store.StateBusy
	s.state.Operation = op
	s.state.Error = ""
	s.state.Notice = ""

	token := ""
	if s.requiresAuth {
		token = s.state.Token
	}
	return s.state.Seq, token, nil
}

// complete moves Busy(op) -> Idle if seq is still current, applying effects on success
func (s *operationService) complete(ctx context.Context, op string, seq uint64, cause error, apply func(st *store.Session) error) error {
	s.mu.Lock()
	if s.state.Seq != seq || s.state.Operation != op {
		current := s.state.Seq
		if s.state.Operation == op {
			// still holding the slot it took at begin
			s.state.State = store.StateIdle
			s.state.Operation = store.OperationNone
		}
		s.mu.Unlock()

		s.logger.Warn(module, "discarded stale completion", map[string]interface{}{
			"operation":   op,
			"seq":         seq,
			"current_seq": current,
			"failed":      cause != nil,
		})
		s.publish(ctx, events.New(events.TypeOperationDiscarded, map[string]interface{}{
			"operation": op,
			"seq":       seq,
		}))
		return ErrDiscarded
	}

	if cause == nil {
		cause = apply(s.state)
	}

	s.state.State = store.StateIdle
	s.state.Operation = store.OperationNone

	var event events.BaseEvent
	if cause != nil {
		s.state.Error = failureMessage(op)
		event = events.New(events.TypeOperationFailed, map[string]interface{}{
			"operation": op,
			"seq":       seq,
			"error":     s.state.Error,
		})
	} else {
		s.state.Error = ""
		event = events.New(events.TypeOperationSucceeded, map[string]interface{}{
			"operation": op,
			"seq":       seq,
			"notice":    s.state.Notice,
		})
	}
	s.mu.Unlock()

	s.publish(ctx, event)

	if cause != nil {
		s.logger.Error(module, failureMessage(op), map[string]interface{}{
			"operation": op,
			"seq":       seq,
			"error":     cause,
		})
		return &OperationError{Operation: op, Message: failureMessage(op), Err: cause}
	}
	return nil
}

func (s *operationService) rejected(ctx context.Context, op string, err error) error {
	var ve *ValidationError
	if errors.As(err, &ve) {
		s.publish(ctx, events.New(events.TypeValidationRejected, map[string]interface{}{
			"operation": op,
			"message":   ve.Message,
		}))
	}
	return err
}

func (s *operationService) started(ctx context.Context, op string, seq uint64) {
	s.publish(ctx, events.New(events.TypeOperationStarted, map[string]interface{}{
		"operation": op,
		"seq":       seq,
	}))
}

func (s *operationService) publish(ctx context.Context, event events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn(module, "failed to publish event", map[string]interface{}{
			"event": event.EventType(),
			"error": err.Error(),
		})
	}
}

func failureMessage(op string) string {
	switch op {
	case store.OperationLogin:
		return MsgLoginFailed
	case store.OperationUpload:
		return MsgUploadFailed
	case store.OperationQuery:
		return MsgQueryFailed
	default:
		return "Operation failed"
	}
}
