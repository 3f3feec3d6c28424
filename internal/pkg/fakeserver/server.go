// Package fakeserver is an in-process stand-in for the question-answering service.
// It speaks the same /token, /upload and /query contract and records every request.
package fakeserver

import (
	"fmt"
	"io"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"time"

	"smart-docqa-client/internal/dto"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const defaultTopK = 5

// UploadedFile is one "files" part received by /upload
type UploadedFile struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Request is what the server saw for one call
type Request struct {
	Method        string
	Path          string
	Authorization string
	RequestID     string
	ContentType   string
	Query         map[string]string
	Form          map[string]string
	Files         []UploadedFile
}

type document struct {
	owner string
	name  string
	text  string
}

type hit struct {
	doc   document
	score float64
}

type hold struct {
	entered chan struct{}
	release chan struct{}
}

// open releases a parked request; callers hold Server.mu
func (h *hold) open() {
	select {
	case <-h.release:
	default:
		close(h.release)
	}
}

type Option func(*Server)

// WithUser registers an account accepted by /token
func WithUser(username, password string) Option {
	return func(s *Server) {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
		if err != nil {
			panic(err)
		}
		s.users[username] = hash
	}
}

// WithoutAuth serves /upload and /query to anonymous callers
func WithoutAuth() Option {
	return func(s *Server) {
		s.requireAuth = false
	}
}

type Server struct {
	URL string

	app         *fiber.App
	http        *httptest.Server
	secret      []byte
	requireAuth bool

	mu       sync.Mutex
	users    map[string][]byte
	docs     []document
	requests []Request
	answer   *string
	failures map[string]int
	holds    map[string]*hold
	created  []*hold
}

func New(opts ...Option) *Server {
	s := &Server{
		secret:      []byte("fake-server-secret"),
		requireAuth: true,
		users:       map[string][]byte{},
		failures:    map[string]int{},
		holds:       map[string]*hold{},
	}
	for _, opt := range opts {
		opt(s)
	}

	app := fiber.New(fiber.Config{
		BodyLimit:             10 * 1024 * 1024, // 10MB
		DisableStartupMessage: true,

		// recorded requests outlive the handler, so values must not alias fasthttp buffers
		Immutable: true,
	})
	app.Use(s.recordMiddleware)

	app.Post("/token", s.token)
	app.Post("/upload", s.authMiddleware, s.upload)
	app.Get("/query", s.authMiddleware, s.query)

	s.app = app
	s.http = httptest.NewServer(adaptor.FiberApp(app))
	s.URL = s.http.URL
	return s
}

func (s *Server) Close() {
	s.mu.Lock()
	for _, h := range s.created {
		h.open()
	}
	s.holds = map[string]*hold{}
	s.mu.Unlock()
	s.http.Close()
}

// SetAnswer fixes the raw answer string returned by /query
func (s *Server) SetAnswer(answer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answer = &answer
}

// FailNext makes the next request to path answer with status
func (s *Server) FailNext(path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[path] = status
}

// Hold parks the next request to path until release is called.
// entered is closed once that request has arrived.
func (s *Server) Hold(path string) (entered <-chan struct{}, release func()) {
	h := &hold{entered: make(chan struct{}), release: make(chan struct{})}
	s.mu.Lock()
	s.holds[path] = h
	s.created = append(s.created, h)
	s.mu.Unlock()

	return h.entered, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.holds[path] == h {
			delete(s.holds, path)
		}
		h.open()
	}
}

// Requests returns a copy of everything received so far
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// RequestsTo filters Requests by path
func (s *Server) RequestsTo(path string) []Request {
	var out []Request
	for _, r := range s.Requests() {
		if r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

// IssueToken signs a token the way /token does
func (s *Server) IssueToken(username string, ttl time.Duration) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": username,
		"exp": time.Now().Add(ttl).Unix(),
	}).SignedString(s.secret)
}

func (s *Server) recordMiddleware(ctx *fiber.Ctx) error {
	rec := Request{
		Method:        ctx.Method(),
		Path:          ctx.Path(),
		Authorization: ctx.Get(fiber.HeaderAuthorization),
		RequestID:     ctx.Get("X-Request-ID"),
		ContentType:   ctx.Get(fiber.HeaderContentType),
		Query:         map[string]string{},
		Form:          map[string]string{},
	}
	ctx.Context().QueryArgs().VisitAll(func(k, v []byte) {
		rec.Query[string(k)] = string(v)
	})
	ctx.Context().PostArgs().VisitAll(func(k, v []byte) {
		rec.Form[string(k)] = string(v)
	})

	s.mu.Lock()
	idx := len(s.requests)
	s.requests = append(s.requests, rec)
	h := s.holds[rec.Path]
	if h != nil {
		delete(s.holds, rec.Path)
	}
	status, fail := s.failures[rec.Path]
	if fail {
		delete(s.failures, rec.Path)
	}
	s.mu.Unlock()

	ctx.Locals("record_index", idx)

	if h != nil {
		close(h.entered)
		<-h.release
	}
	if fail {
		return ctx.Status(status).JSON(fiber.Map{"detail": "injected failure"})
	}
	return ctx.Next()
}

func (s *Server) authMiddleware(ctx *fiber.Ctx) error {
	if !s.requireAuth {
		ctx.Locals("username", "")
		return ctx.Next()
	}

	authHeader := ctx.Get(fiber.HeaderAuthorization)
	if len(authHeader) < 7 || authHeader[:7] != "Bearer " {
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"detail": "Not authenticated"})
	}
	tokenStr := authHeader[7:]

	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"detail": "Could not validate credentials"})
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"detail": "Could not validate credentials"})
	}

	ctx.Locals("username", sub)
	return ctx.Next()
}

func (s *Server) token(ctx *fiber.Ctx) error {
	username := ctx.FormValue("username")
	password := ctx.FormValue("password")

	s.mu.Lock()
	hash, ok := s.users[username]
	s.mu.Unlock()

	if !ok || bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"detail": "Incorrect username or password"})
	}

	accessToken, err := s.IssueToken(username, time.Hour)
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"detail": err.Error()})
	}
	return ctx.JSON(dto.LoginResponse{AccessToken: accessToken, TokenType: "bearer"})
}

func (s *Server) upload(ctx *fiber.Ctx) error {
	start := time.Now()
	owner, _ := ctx.Locals("username").(string)

	form, err := ctx.MultipartForm()
	if err != nil {
		return ctx.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"detail": err.Error()})
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		return ctx.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"detail": "files: field required"})
	}

	var received []UploadedFile
	var names []string
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"detail": err.Error()})
		}
		content, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"detail": err.Error()})
		}
		received = append(received, UploadedFile{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get(fiber.HeaderContentType),
			Content:     content,
		})
		names = append(names, fh.Filename)
	}

	s.mu.Lock()
	if idx, ok := ctx.Locals("record_index").(int); ok {
		s.requests[idx].Files = received
	}
	for _, f := range received {
		for _, chunk := range splitChunks(string(f.Content), chunkSize, chunkOverlap) {
			s.docs = append(s.docs, document{owner: owner, name: f.Filename, text: chunk})
		}
	}
	s.mu.Unlock()

	return ctx.JSON(dto.UploadResponse{
		Message:       fmt.Sprintf("%d files uploaded.", len(names)),
		Files:         names,
		UploadTimeSec: time.Since(start).Round(10 * time.Millisecond).Seconds(),
	})
}

func (s *Server) query(ctx *fiber.Ctx) error {
	q := ctx.Query("q")
	if q == "" {
		return ctx.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"detail": "q: field required"})
	}
	owner, _ := ctx.Locals("username").(string)
	topK := ctx.QueryInt("top_k", defaultTopK)

	s.mu.Lock()
	var hits []hit
	for _, d := range s.docs {
		if d.owner == owner {
			hits = append(hits, hit{doc: d, score: relevance(q, d.text)})
		}
	}
	fixed := s.answer
	s.mu.Unlock()

	// lower is closer
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score < hits[j].score })
	if len(hits) > topK {
		hits = hits[:topK]
	}

	results := make([]dto.ChunkDTO, 0, len(hits))
	for _, h := range hits {
		results = append(results, dto.ChunkDTO{Source: h.doc.name, Score: h.score, Text: h.doc.text})
	}

	resp := dto.QueryResponse{Query: q, Results: results}
	if ctx.QueryBool("use_llm", true) {
		answer := fmt.Sprintf("Found %d relevant chunks for %q.", len(results), q)
		if fixed != nil {
			answer = *fixed
		}
		resp.Answer = &answer
	}
	return ctx.JSON(resp)
}

// relevance is a crude distance in [0, 1]: the share of query words missing from text
func relevance(q, text string) float64 {
	words := strings.Fields(strings.ToLower(q))
	if len(words) == 0 {
		return 1
	}
	lower := strings.ToLower(text)
	missing := 0
	for _, w := range words {
		if !strings.Contains(lower, strings.Trim(w, "?!.,")) {
			missing++
		}
	}
	return float64(missing) / float64(len(words))
}
