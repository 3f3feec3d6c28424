package fakeserver

import (
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordedRequestsStayIntact(t *testing.T) {
	srv := New(WithUser("user1", "password1"), WithoutAuth())
	defer srv.Close()

	resp, err := http.PostForm(srv.URL+"/token", url.Values{
		"grant_type": {"password"},
		"username":   {"user1"},
		"password":   {"password1"},
	})
	require.NoError(t, err)
	resp.Body.Close()

	for _, q := range []string{"first question", "second question"} {
		resp, err := http.Get(srv.URL + "/query?q=" + url.QueryEscape(q))
		require.NoError(t, err)
		resp.Body.Close()
	}

	reqs := srv.Requests()
	require.Len(t, reqs, 3)

	assert.Equal(t, http.MethodPost, reqs[0].Method)
	assert.Equal(t, "/token", reqs[0].Path)
	assert.Equal(t, "user1", reqs[0].Form["username"])
	assert.True(t, strings.HasPrefix(reqs[0].ContentType, "application/x-www-form-urlencoded"))

	assert.Equal(t, http.MethodGet, reqs[1].Method)
	assert.Equal(t, "/query", reqs[1].Path)
	assert.Equal(t, "first question", reqs[1].Query["q"])
	assert.Equal(t, "second question", reqs[2].Query["q"])

	assert.Len(t, srv.RequestsTo("/query"), 2)
	assert.Len(t, srv.RequestsTo("/token"), 1)
}
