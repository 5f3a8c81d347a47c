package handlers

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
)

// oauthError is a protocol-level failure rendered either as JSON (before a
// trusted redirect URI is established) or as query parameters on the
// client's redirect URI (after).
type oauthError struct {
	Code        string
	Description string
	Status      int
}

func badRequest(code, description string) *oauthError {
	return &oauthError{Code: code, Description: description, Status: http.StatusBadRequest}
}

func (e *oauthError) JSON(c *gin.Context) {
	body := gin.H{"error": e.Code}
	if e.Description != "" {
		body["error_description"] = e.Description
	}
	c.JSON(e.Status, body)
}

// redirectWithError delivers the failure to the relying party as query
// params on its own redirect URI, per OAuth convention. Only call this with
// a redirect URI that already passed exact-match validation.
func redirectWithError(c *gin.Context, redirectURI, code, description, state string) {
	params := url.Values{}
	params.Set("error", code)
	if description != "" {
		params.Set("error_description", description)
	}
	if state != "" {
		params.Set("state", state)
	}
	c.Redirect(http.StatusFound, appendQuery(redirectURI, params))
}

// redirectWithCode sends the freshly minted authorization code back to the
// relying party, echoing state only when the client supplied one.
func redirectURLWithCode(redirectURI, code, state string) string {
	params := url.Values{}
	params.Set("code", code)
	if state != "" {
		params.Set("state", state)
	}
	return appendQuery(redirectURI, params)
}

// appendQuery merges params into rawURL's existing query string.
func appendQuery(rawURL string, params url.Values) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}
