package auth

import (
	"net/http"
	"net/url"
	"strings"
	"unicode"

	errs "zester/pkg/errors"
)

// ClientIDParam is the query parameter carrying the client identifier
const ClientIDParam = "client_id"

// Credential is the immutable request context shared by every crawl of a run.
// The zero value is not usable; build one with NewCredential.
type Credential struct {
	oauthToken string
	clientID   string
}

// NewCredential validates and wraps an OAuth token and client identifier
func NewCredential(oauthToken, clientID string) (Credential, error) {
	if oauthToken == "" {
		return Credential{}, errs.NewAuthError(0, "oauth token is required")
	}
	if clientID == "" {
		return Credential{}, errs.NewAuthError(0, "client id is required")
	}
	if !wellFormed(oauthToken) {
		return Credential{}, errs.NewAuthError(0, "oauth token is malformed")
	}
	if !wellFormed(clientID) {
		return Credential{}, errs.NewAuthError(0, "client id is malformed")
	}
	return Credential{oauthToken: oauthToken, clientID: clientID}, nil
}

// CredentialFromAccount builds a request credential from a stored account
func CredentialFromAccount(account *Account) (Credential, error) {
	if account == nil {
		return Credential{}, errs.NewAuthError(0, "no account selected")
	}
	return NewCredential(account.OAuthToken, account.ClientID)
}

// wellFormed rejects values that cannot travel in a header or query string
func wellFormed(s string) bool {
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return false
		}
	}
	return true
}

// ClientID returns the client identifier
func (c Credential) ClientID() string {
	return c.clientID
}

// AuthorizationHeader returns the Authorization header value
func (c Credential) AuthorizationHeader() string {
	return "OAuth " + c.oauthToken
}

// Valid reports whether the credential was built by NewCredential
func (c Credential) Valid() bool {
	return c.oauthToken != "" && c.clientID != ""
}

// Apply attaches the Authorization header and client_id query parameter.
// The rest of the query is left byte for byte as given: an existing
// client_id pair is replaced in place, otherwise one is appended.
func (c Credential) Apply(req *http.Request) {
	req.Header.Set("Authorization", c.AuthorizationHeader())
	req.URL.RawQuery = withClientID(req.URL.RawQuery, c.clientID)
}

// withClientID rewrites only the client_id pairs of a raw query
func withClientID(rawQuery, clientID string) string {
	pair := ClientIDParam + "=" + url.QueryEscape(clientID)
	if rawQuery == "" {
		return pair
	}

	parts := strings.Split(rawQuery, "&")
	out := parts[:0]
	replaced := false
	for _, part := range parts {
		key, _, _ := strings.Cut(part, "=")
		if key != ClientIDParam {
			out = append(out, part)
			continue
		}
		if !replaced {
			out = append(out, pair)
			replaced = true
		}
	}
	if !replaced {
		out = append(out, pair)
	}
	return strings.Join(out, "&")
}

// String masks the token so credentials never leak into logs
func (c Credential) String() string {
	var b strings.Builder
	b.WriteString("Credential{client_id=")
	b.WriteString(c.clientID)
	b.WriteString(", oauth_token=")
	b.WriteString(maskString(c.oauthToken))
	b.WriteString("}")
	return b.String()
}
