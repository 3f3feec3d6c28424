package gateway

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"smart-docqa-client/internal/pkg/fakeserver"
	"smart-docqa-client/internal/pkg/logger"
	"smart-docqa-client/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, opts ...fakeserver.Option) (*Client, *fakeserver.Server) {
	t.Helper()
	srv := fakeserver.New(append([]fakeserver.Option{fakeserver.WithUser("user1", "password1")}, opts...)...)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", 0, 0, logger.NewNopLogger()), srv
}

func writeFile(t *testing.T, name, content string) store.UploadFile {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return store.UploadFile{Name: name, Path: path}
}

func TestLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("form encoded credentials", func(t *testing.T) {
		c, srv := newTestClient(t)

		token, err := c.Login(ctx, "user1", "password1")
		require.NoError(t, err)
		assert.NotEmpty(t, token)

		reqs := srv.RequestsTo("/token")
		require.Len(t, reqs, 1)
		assert.Equal(t, http.MethodPost, reqs[0].Method)
		assert.True(t, strings.HasPrefix(reqs[0].ContentType, "application/x-www-form-urlencoded"))
		assert.Equal(t, "user1", reqs[0].Form["username"])
		assert.Equal(t, "password1", reqs[0].Form["password"])
		assert.Empty(t, reqs[0].Authorization)
		assert.NotEmpty(t, reqs[0].RequestID)
	})

	t.Run("wrong password is a generic login failure", func(t *testing.T) {
		c, _ := newTestClient(t)

		token, err := c.Login(ctx, "user1", "nope")
		require.Error(t, err)
		assert.Empty(t, token)
		assert.ErrorIs(t, err, ErrLoginFailed)
		assert.Equal(t, http.StatusUnauthorized, StatusCode(err))
	})

	t.Run("transport failure", func(t *testing.T) {
		c, srv := newTestClient(t)
		srv.Close()

		_, err := c.Login(ctx, "user1", "password1")
		assert.ErrorIs(t, err, ErrLoginFailed)
		assert.Equal(t, 0, StatusCode(err))
	})
}

func TestUpload(t *testing.T) {
	ctx := context.Background()

	t.Run("repeated files parts with bearer", func(t *testing.T) {
		c, srv := newTestClient(t)
		token, err := srv.IssueToken("user1", time.Hour)
		require.NoError(t, err)

		files := []store.UploadFile{
			writeFile(t, "a.txt", "alpha document"),
			writeFile(t, "b \"quoted\".txt", "beta document"),
		}

		resp, err := c.Upload(ctx, token, files)
		require.NoError(t, err)
		assert.Equal(t, "2 files uploaded.", resp.Message)
		assert.Equal(t, []string{"a.txt", "b \"quoted\".txt"}, resp.Files)

		reqs := srv.RequestsTo("/upload")
		require.Len(t, reqs, 1)
		assert.Equal(t, "Bearer "+token, reqs[0].Authorization)
		assert.True(t, strings.HasPrefix(reqs[0].ContentType, "multipart/form-data; boundary="))
		require.Len(t, reqs[0].Files, 2)
		assert.Equal(t, "a.txt", reqs[0].Files[0].Filename)
		assert.Equal(t, "alpha document", string(reqs[0].Files[0].Content))
		assert.True(t, strings.HasPrefix(reqs[0].Files[0].ContentType, "text/plain"))
		assert.Equal(t, "beta document", string(reqs[0].Files[1].Content))
	})

	t.Run("large files stream intact", func(t *testing.T) {
		c, srv := newTestClient(t, fakeserver.WithoutAuth())
		big := strings.Repeat("0123456789abcdef", 256*1024) // 4MB
		files := []store.UploadFile{
			writeFile(t, "big.txt", big),
			writeFile(t, "small.txt", "tail"),
		}

		resp, err := c.Upload(ctx, "", files)
		require.NoError(t, err)
		assert.Equal(t, "2 files uploaded.", resp.Message)

		reqs := srv.RequestsTo("/upload")
		require.Len(t, reqs, 1)
		require.Len(t, reqs[0].Files, 2)
		assert.Equal(t, len(big), len(reqs[0].Files[0].Content))
		assert.True(t, string(reqs[0].Files[0].Content) == big)
		assert.Equal(t, "tail", string(reqs[0].Files[1].Content))
	})

	t.Run("rejected upload releases the body", func(t *testing.T) {
		c, srv := newTestClient(t)
		big := strings.Repeat("x", 2*1024*1024)

		_, err := c.Upload(ctx, "", []store.UploadFile{writeFile(t, "big.txt", big)})
		assert.ErrorIs(t, err, ErrUploadFailed)
		assert.Equal(t, http.StatusUnauthorized, StatusCode(err))
		assert.Len(t, srv.RequestsTo("/upload"), 1)
	})

	t.Run("no header without token", func(t *testing.T) {
		c, srv := newTestClient(t, fakeserver.WithoutAuth())

		_, err := c.Upload(ctx, "", []store.UploadFile{writeFile(t, "a.txt", "alpha")})
		require.NoError(t, err)

		reqs := srv.RequestsTo("/upload")
		require.Len(t, reqs, 1)
		assert.Empty(t, reqs[0].Authorization)
	})

	t.Run("empty selection never reaches the network", func(t *testing.T) {
		c, srv := newTestClient(t)

		_, err := c.Upload(ctx, "tok", nil)
		assert.ErrorIs(t, err, ErrNoFiles)
		assert.Empty(t, srv.Requests())
	})

	t.Run("missing file", func(t *testing.T) {
		c, srv := newTestClient(t)

		_, err := c.Upload(ctx, "tok", []store.UploadFile{{Name: "gone.txt", Path: filepath.Join(t.TempDir(), "gone.txt")}})
		assert.ErrorIs(t, err, ErrUploadFailed)
		assert.Empty(t, srv.Requests())
	})

	t.Run("server error", func(t *testing.T) {
		c, srv := newTestClient(t, fakeserver.WithoutAuth())
		srv.FailNext("/upload", http.StatusInternalServerError)

		_, err := c.Upload(ctx, "", []store.UploadFile{writeFile(t, "a.txt", "alpha")})
		assert.ErrorIs(t, err, ErrUploadFailed)
		assert.Equal(t, http.StatusInternalServerError, StatusCode(err))
	})
}

func TestQuery(t *testing.T) {
	ctx := context.Background()

	t.Run("parameters and bearer", func(t *testing.T) {
		c, srv := newTestClient(t)
		token, err := srv.IssueToken("user1", time.Hour)
		require.NoError(t, err)
		_, err = c.Upload(ctx, token, []store.UploadFile{writeFile(t, "x.txt", "X is a letter")})
		require.NoError(t, err)
		srv.SetAnswer(`{"x":1}`)

		resp, err := c.Query(ctx, token, "What is X?")
		require.NoError(t, err)
		require.NotNil(t, resp.Answer)
		assert.Equal(t, `{"x":1}`, *resp.Answer)
		require.Len(t, resp.Results, 1)
		assert.Equal(t, "x.txt", resp.Results[0].Source)
		assert.Equal(t, "X is a letter", resp.Results[0].Text)

		reqs := srv.RequestsTo("/query")
		require.Len(t, reqs, 1)
		assert.Equal(t, http.MethodGet, reqs[0].Method)
		assert.Equal(t, "What is X?", reqs[0].Query["q"])
		assert.Equal(t, "true", reqs[0].Query["use_llm"])
		_, hasTopK := reqs[0].Query["top_k"]
		assert.False(t, hasTopK)
		assert.Equal(t, "Bearer "+token, reqs[0].Authorization)
	})

	t.Run("top_k passthrough", func(t *testing.T) {
		c, srv := newTestClient(t, fakeserver.WithoutAuth())
		c.TopK = 3

		_, err := c.Query(ctx, "", "anything")
		require.NoError(t, err)

		reqs := srv.RequestsTo("/query")
		require.Len(t, reqs, 1)
		assert.Equal(t, "3", reqs[0].Query["top_k"])
		assert.Empty(t, reqs[0].Authorization)
	})

	t.Run("empty text never reaches the network", func(t *testing.T) {
		c, srv := newTestClient(t)

		_, err := c.Query(ctx, "tok", "")
		assert.ErrorIs(t, err, ErrEmptyQuery)
		assert.Empty(t, srv.Requests())
	})

	t.Run("unauthorized", func(t *testing.T) {
		c, _ := newTestClient(t)

		_, err := c.Query(ctx, "", "What is X?")
		assert.ErrorIs(t, err, ErrQueryFailed)
		assert.Equal(t, http.StatusUnauthorized, StatusCode(err))
	})

	t.Run("response without answer", func(t *testing.T) {
		c, srv := newTestClient(t, fakeserver.WithoutAuth())
		srv.FailNext("/query", http.StatusOK)

		// injected failures answer {"detail": ...}, which decodes but carries no answer
		resp, err := c.Query(ctx, "", "What is X?")
		require.NoError(t, err)
		assert.Nil(t, resp.Answer)
		assert.Empty(t, resp.Results)
	})
}

func TestStatusError(t *testing.T) {
	err := &StatusError{Code: 500, Body: "boom"}
	assert.Equal(t, "service returned status 500: boom", err.Error())
	assert.Equal(t, "service returned status 404", (&StatusError{Code: 404}).Error())
	assert.Equal(t, 0, StatusCode(errors.New("plain")))
	assert.Equal(t, strings.Repeat("a", maxErrorBody)+"...", truncate(strings.Repeat("a", maxErrorBody+10)))
}
