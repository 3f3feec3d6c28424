package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"smart-docqa-client/internal/bootstrap"
	"smart-docqa-client/internal/config"
	"smart-docqa-client/internal/pkg/fakeserver"
	"smart-docqa-client/pkg/answer"
	"smart-docqa-client/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupEnv(t *testing.T, baseURL string) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DOCQA_BASE_URL", baseURL)
	t.Setenv("DOCQA_REQUIRES_AUTH", "true")
	t.Setenv("TOKEN_STORE", config.StoreFile)
	t.Setenv("TOKEN_FILE_PATH", filepath.Join(dir, "session.json"))
	t.Setenv("LOG_FILE_PATH", filepath.Join(dir, "client.log"))
	t.Setenv("OTEL_ENABLED", "false")
	return dir
}

func newContainer(t *testing.T) *bootstrap.Container {
	t.Helper()
	c, err := bootstrap.NewContainer(config.Load())
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestLoginUploadQueryLogout(t *testing.T) {
	ctx := context.Background()
	srv := fakeserver.New(fakeserver.WithUser("user1", "password1"))
	defer srv.Close()
	dir := setupEnv(t, srv.URL)

	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(a, []byte("X is the answer to everything"), 0600))
	require.NoError(t, os.WriteFile(b, []byte("Unrelated notes"), 0600))

	c := newContainer(t)
	ops := c.Operations
	require.NoError(t, ops.Restore(ctx))
	assert.Empty(t, ops.Snapshot().Token)

	// 1. Login
	ops.SetLoginForm("user1", "password1")
	require.NoError(t, ops.Login(ctx))
	token := ops.Snapshot().Token
	require.NotEmpty(t, token)

	claims, err := c.Sessions.Claims()
	require.NoError(t, err)
	assert.Equal(t, "user1", claims.Subject)

	// 2. Upload
	require.NoError(t, ops.SelectFiles(a, b))
	require.NoError(t, ops.Upload(ctx))
	snap := ops.Snapshot()
	assert.Equal(t, "2 files uploaded.", snap.Notice)
	assert.Empty(t, snap.Selection)

	// 3. Query
	srv.SetAnswer(`{"answer":"X","sources":["a.txt"]}`)
	require.NoError(t, ops.SetQueryText("What is X?"))
	require.NoError(t, ops.Query(ctx))
	snap = ops.Snapshot()
	assert.Equal(t, answer.KindStructured, snap.Answer.Kind)
	require.Len(t, snap.Results, 2)
	assert.Equal(t, "a.txt", snap.Results[0].Source)

	for _, r := range srv.RequestsTo("/query") {
		assert.Equal(t, "Bearer "+token, r.Authorization)
	}

	// 4. Logout
	require.NoError(t, ops.Logout(ctx))
	snap = ops.Snapshot()
	assert.Empty(t, snap.Token)
	assert.Empty(t, snap.Results)
	assert.True(t, snap.Answer.IsZero())
	assert.Equal(t, store.StateIdle, snap.State)

	raw, err := os.ReadFile(filepath.Join(dir, "session.json"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), token)
}

func TestSessionSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	srv := fakeserver.New(fakeserver.WithUser("user1", "password1"))
	defer srv.Close()
	setupEnv(t, srv.URL)

	first := newContainer(t)
	first.Operations.SetLoginForm("user1", "password1")
	require.NoError(t, first.Operations.Login(ctx))
	token := first.Operations.Snapshot().Token

	second := newContainer(t)
	require.NoError(t, second.Operations.Restore(ctx))
	assert.Equal(t, token, second.Operations.Snapshot().Token)

	require.NoError(t, second.Operations.SetQueryText("anything"))
	require.NoError(t, second.Operations.Query(ctx))
	reqs := srv.RequestsTo("/query")
	require.Len(t, reqs, 1)
	assert.Equal(t, "Bearer "+token, reqs[0].Authorization)
}

func TestUnauthenticatedDeployment(t *testing.T) {
	ctx := context.Background()
	srv := fakeserver.New(fakeserver.WithoutAuth())
	defer srv.Close()
	setupEnv(t, srv.URL)
	t.Setenv("DOCQA_REQUIRES_AUTH", "false")

	c := newContainer(t)
	assert.Nil(t, c.Sessions)

	require.NoError(t, c.Operations.SetQueryText("What is X?"))
	require.NoError(t, c.Operations.Query(ctx))

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	assert.Empty(t, reqs[0].Authorization)
}
