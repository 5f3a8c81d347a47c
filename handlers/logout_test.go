package handlers

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/notelab/notelab/backend/idp-service/internal/pkce"
)

func TestLogoutDeletesSession(t *testing.T) {
	f := newFixture(t)
	_, challenge := pkce.GeneratePair()
	sessionID, _ := f.login(t, "alice@example.com", alicePassword, challenge)

	w := f.postJSON(t, "/logout", nil, withCookie(sessionCookie, sessionID))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, true, decodeJSON(t, w)["success"])

	_, _, cookie := cookieValue(w, sessionCookie)
	require.NotNil(t, cookie)
	require.Negative(t, cookie.MaxAge)

	sess, err := f.sessions.Get(context.Background(), sessionID)
	require.NoError(t, err)
	require.Nil(t, sess)
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	f := newFixture(t)
	verifier, challenge := pkce.GeneratePair()
	_, code := f.login(t, "alice@example.com", alicePassword, challenge)

	w := f.postForm(t, "/token", url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"code_verifier": {verifier},
		"client_id":     {"taskapp"},
		"redirect_uri":  {"http://localhost:3001/callback"},
	})
	require.Equal(t, http.StatusOK, w.Code, "body: %s", w.Body.String())
	refresh, _ := decodeJSON(t, w)["refresh_token"].(string)
	require.NotEmpty(t, refresh)

	w = f.postJSON(t, "/logout", map[string]string{"refresh_token": refresh})
	require.Equal(t, http.StatusOK, w.Code)

	w = f.postForm(t, "/token", url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refresh},
		"client_id":     {"taskapp"},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "invalid_grant", decodeJSON(t, w)["error"])
}

func TestLogoutWithoutSessionStillSucceeds(t *testing.T) {
	f := newFixture(t)
	w := f.postJSON(t, "/logout", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, true, decodeJSON(t, w)["success"])
}
