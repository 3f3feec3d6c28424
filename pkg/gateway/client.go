package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"smart-docqa-client/internal/dto"
	"smart-docqa-client/internal/pkg/logger"
	"smart-docqa-client/pkg/store"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
)

const (
	module = "gateway"

	tokenPath  = "/token"
	uploadPath = "/upload"
	queryPath  = "/query"

	// RequestIDHeader correlates a request with its diagnostic log line
	RequestIDHeader = "X-Request-ID"

	maxErrorBody = 2048
)

// Client talks to the question-answering service
type Client struct {
	BaseURL    string
	TopK       int
	HTTPClient *http.Client

	logger logger.ILogger
	tracer trace.Tracer
}

// NewClient builds a gateway. A zero timeout leaves requests bounded only by ctx.
func NewClient(baseURL string, timeout time.Duration, topK int, log logger.ILogger) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		TopK:    topK,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
		logger: log,
		tracer: otel.Tracer("smart-docqa-client/gateway"),
	}
}

// Login exchanges username and password for an access token (OAuth2 password grant, form encoded)
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	ctx, span := c.tracer.Start(ctx, "gateway.login")
	defer span.End()

	requestID := uuid.NewString()
	conf := &oauth2.Config{
		Endpoint: oauth2.Endpoint{
			TokenURL:  c.BaseURL + tokenPath,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.clientFor(requestID, ""))
	tok, err := conf.PasswordCredentialsToken(ctx, username, password)
	if err != nil {
		return "", c.fail(span, "login", requestID, ErrLoginFailed, classifyOAuth(err))
	}

	span.SetAttributes(attribute.String("docqa.request_id", requestID))
	return tok.AccessToken, nil
}

// Upload sends every file as a repeated "files" part. The bearer header is attached only when token is set.
func (c *Client) Upload(ctx context.Context, token string, files []store.UploadFile) (*dto.UploadResponse, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}

	ctx, span := c.tracer.Start(ctx, "gateway.upload", trace.WithAttributes(attribute.Int("docqa.files", len(files))))
	defer span.End()

	requestID := uuid.NewString()
	// every file is opened up front so a missing one fails before any request is made
	parts, err := openParts(files)
	if err != nil {
		return nil, c.fail(span, "upload", requestID, ErrUploadFailed, err)
	}
	body, contentType := streamMultipart(parts)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+uploadPath, body)
	if err != nil {
		body.Close()
		return nil, c.fail(span, "upload", requestID, ErrUploadFailed, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", contentType)

	var out dto.UploadResponse
	if err := c.do(req, requestID, token, &out); err != nil {
		return nil, c.fail(span, "upload", requestID, ErrUploadFailed, err)
	}
	return &out, nil
}

// Query asks a question with LLM answer synthesis enabled
func (c *Client) Query(ctx context.Context, token string, text string) (*dto.QueryResponse, error) {
	if text == "" {
		return nil, ErrEmptyQuery
	}

	ctx, span := c.tracer.Start(ctx, "gateway.query")
	defer span.End()

	requestID := uuid.NewString()
	params := url.Values{}
	params.Set("q", text)
	params.Set("use_llm", "true")
	if c.TopK > 0 {
		params.Set("top_k", strconv.Itoa(c.TopK))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+queryPath+"?"+params.Encode(), nil)
	if err != nil {
		return nil, c.fail(span, "query", requestID, ErrQueryFailed, fmt.Errorf("create request: %w", err))
	}

	var out dto.QueryResponse
	if err := c.do(req, requestID, token, &out); err != nil {
		return nil, c.fail(span, "query", requestID, ErrQueryFailed, err)
	}
	return &out, nil
}

func (c *Client) do(req *http.Request, requestID, token string, out interface{}) error {
	resp, err := c.clientFor(requestID, token).Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, Body: truncate(string(bodyBytes))}
	}

	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// clientFor layers the request id and, if token is set, the bearer header over the base transport
func (c *Client) clientFor(requestID, token string) *http.Client {
	base := c.HTTPClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	var rt http.RoundTripper = &requestIDTransport{base: base, id: requestID}
	if token != "" {
		rt = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
			Base:   rt,
		}
	}

	return &http.Client{
		Transport:     rt,
		Timeout:       c.HTTPClient.Timeout,
		CheckRedirect: c.HTTPClient.CheckRedirect,
		Jar:           c.HTTPClient.Jar,
	}
}

func (c *Client) fail(span trace.Span, op, requestID string, kind error, cause error) error {
	status := StatusCode(cause)

	span.RecordError(cause)
	span.SetStatus(codes.Error, kind.Error())
	span.SetAttributes(
		attribute.String("docqa.request_id", requestID),
		attribute.Int("http.status_code", status),
	)

	c.logger.Error(module, kind.Error(), map[string]interface{}{
		"operation":  op,
		"request_id": requestID,
		"status":     status,
		"error":      cause,
	})

	return fmt.Errorf("%w: %w", kind, cause)
}

type requestIDTransport struct {
	base http.RoundTripper
	id   string
}

func (t *requestIDTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set(RequestIDHeader, t.id)
	return t.base.RoundTrip(r)
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

type filePart struct {
	name        string
	contentType string
	file        *os.File
}

func openParts(files []store.UploadFile) ([]filePart, error) {
	parts := make([]filePart, 0, len(files))
	for _, f := range files {
		file, err := os.Open(f.Path)
		if err != nil {
			closeParts(parts)
			return nil, fmt.Errorf("open %s: %w", f.Path, err)
		}
		parts = append(parts, filePart{name: f.Name, file: file})

		contentType := "application/octet-stream"
		if mt, err := mimetype.DetectReader(file); err == nil {
			contentType = mt.String()
		}
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			closeParts(parts)
			return nil, fmt.Errorf("rewind %s: %w", f.Path, err)
		}
		parts[len(parts)-1].contentType = contentType
	}
	return parts, nil
}

func closeParts(parts []filePart) {
	for _, p := range parts {
		p.file.Close()
	}
}

// streamMultipart writes the parts into a pipe as the transport reads it and closes the files when done.
// Closing the returned reader early stops the writer.
func streamMultipart(parts []filePart) (io.ReadCloser, string) {
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	contentType := writer.FormDataContentType()

	go func() {
		defer closeParts(parts)
		for _, p := range parts {
			if err := writeFilePart(writer, p); err != nil {
				pw.CloseWithError(err)
				return
			}
		}
		if err := writer.Close(); err != nil {
			pw.CloseWithError(fmt.Errorf("close multipart body: %w", err))
			return
		}
		pw.Close()
	}()

	return pr, contentType
}

func writeFilePart(writer *multipart.Writer, p filePart) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename="%s"`, quoteEscaper.Replace(p.name)))
	h.Set("Content-Type", p.contentType)

	part, err := writer.CreatePart(h)
	if err != nil {
		return fmt.Errorf("create part for %s: %w", p.name, err)
	}
	if _, err := io.Copy(part, p.file); err != nil {
		return fmt.Errorf("copy %s: %w", p.name, err)
	}
	return nil
}

func classifyOAuth(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		return &StatusError{Code: re.Response.StatusCode, Body: truncate(string(re.Body))}
	}
	return err
}

func truncate(s string) string {
	if len(s) <= maxErrorBody {
		return s
	}
	return s[:maxErrorBody] + "..."
}
