package handlers

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/notelab/notelab/backend/idp-service/internal/pkce"
)

func TestLoginFormRendersHiddenFields(t *testing.T) {
	f := newFixture(t)
	w := f.get(t, authorizeURL(nil))
	require.Equal(t, http.StatusFound, w.Code)

	w = f.get(t, "/login?"+strings.TrimPrefix(w.Header().Get("Location"), "/login?"))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	require.Contains(t, body, `name="client_id" value="taskapp"`)
	require.Contains(t, body, `name="code_challenge_method" value="S256"`)
	require.Contains(t, body, `name="state" value="st-1"`)
}

func TestLoginSuccess(t *testing.T) {
	f := newFixture(t)
	_, challenge := pkce.GeneratePair()

	w := f.postJSON(t, "/login", map[string]string{
		"email":                 "alice@example.com",
		"password":              alicePassword,
		"client_id":             "taskapp",
		"redirect_uri":          "http://localhost:3001/callback",
		"code_challenge":        challenge,
		"code_challenge_method": "S256",
		"state":                 "st-1",
		"nonce":                 "non-1",
	})
	require.Equal(t, http.StatusOK, w.Code, "body: %s", w.Body.String())

	// session cookie is HttpOnly with the configured lifetime
	_, ok, ck := cookieValue(w, sessionCookie)
	require.True(t, ok)
	require.True(t, ck.HttpOnly)
	require.Equal(t, int(f.cfg.Issuer.SessionTTL.Seconds()), ck.MaxAge)

	redirect, _ := decodeJSON(t, w)["redirect_uri"].(string)
	u, err := url.Parse(redirect)
	require.NoError(t, err)
	require.Equal(t, "http://localhost:3001/callback", u.Scheme+"://"+u.Host+u.Path)
	require.NotEmpty(t, u.Query().Get("code"))
	require.Equal(t, "st-1", u.Query().Get("state"))

	// the nonce rides on the code record for the eventual id token
	rec, err := f.codes.Consume(context.Background(), u.Query().Get("code"))
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, "non-1", rec.Nonce)
}

func TestLoginFailuresAreGeneric(t *testing.T) {
	f := newFixture(t)
	base := map[string]string{
		"client_id":             "taskapp",
		"redirect_uri":          "http://localhost:3001/callback",
		"code_challenge":        "ch",
		"code_challenge_method": "S256",
	}

	wrongPassword := map[string]string{"email": "alice@example.com", "password": "not-it"}
	noSuchUser := map[string]string{"email": "nobody@example.com", "password": "whatever"}
	var bodies []string
	for _, creds := range []map[string]string{wrongPassword, noSuchUser} {
		body := map[string]string{}
		for k, v := range base {
			body[k] = v
		}
		for k, v := range creds {
			body[k] = v
		}
		w := f.postJSON(t, "/login", body)
		require.Equal(t, http.StatusUnauthorized, w.Code)
		require.Equal(t, "invalid_credentials", decodeJSON(t, w)["error"])
		bodies = append(bodies, w.Body.String())
	}
	require.Equal(t, bodies[0], bodies[1], "failure responses must not reveal whether the account exists")
}

func TestLoginUnknownClient(t *testing.T) {
	f := newFixture(t)
	w := f.postJSON(t, "/login", map[string]string{
		"email":                 "alice@example.com",
		"password":              alicePassword,
		"client_id":             "nope",
		"redirect_uri":          "http://localhost:3001/callback",
		"code_challenge":        "ch",
		"code_challenge_method": "S256",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "invalid_client", decodeJSON(t, w)["error"])
}

func TestLoginMissingCredentials(t *testing.T) {
	f := newFixture(t)
	w := f.postJSON(t, "/login", map[string]string{"client_id": "taskapp"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "invalid_request", decodeJSON(t, w)["error"])
}

func TestLoginPreventsSessionFixation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// attacker pre-sets a victim's cookie to a session they know
	planted, err := f.sessions.Create(ctx, f.bob.ID)
	require.NoError(t, err)

	_, challenge := pkce.GeneratePair()
	w := f.postJSON(t, "/login", map[string]string{
		"email":                 "alice@example.com",
		"password":              alicePassword,
		"client_id":             "taskapp",
		"redirect_uri":          "http://localhost:3001/callback",
		"code_challenge":        challenge,
		"code_challenge_method": "S256",
	}, withCookie(sessionCookie, planted))
	require.Equal(t, http.StatusOK, w.Code)

	fresh, ok, _ := cookieValue(w, sessionCookie)
	require.True(t, ok)
	require.NotEqual(t, planted, fresh, "a presented session id must never be adopted")

	// the planted session is gone
	sess, err := f.sessions.Get(ctx, planted)
	require.NoError(t, err)
	require.Nil(t, sess)

	// the fresh one belongs to the actual authenticated user
	sess, err = f.sessions.Get(ctx, fresh)
	require.NoError(t, err)
	require.NotNil(t, sess)
	require.Equal(t, f.alice.ID, sess.UserID)
}

func TestLoginAcceptsFormEncoding(t *testing.T) {
	f := newFixture(t)
	_, challenge := pkce.GeneratePair()
	form := url.Values{}
	form.Set("email", "bob@example.com")
	form.Set("password", bobPassword)
	form.Set("client_id", "taskapp")
	form.Set("redirect_uri", "http://localhost:3001/callback")
	form.Set("code_challenge", challenge)
	form.Set("code_challenge_method", "S256")

	w := f.postForm(t, "/login", form)
	require.Equal(t, http.StatusOK, w.Code, "body: %s", w.Body.String())
}
