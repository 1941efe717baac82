// Package session supplies the credentials a client presents to the notes
// service. Signing in happens elsewhere; this package only reads, refreshes
// and inspects the resulting token.
package session

// TokenSource yields the bearer token for the next request. An empty token
// means unauthenticated.
type TokenSource interface {
	Token() string
}

// Static is a TokenSource that never changes.
type Static string

// Token returns the token.
func (s Static) Token() string { return string(s) }

// Bearer formats a token as an Authorization header value.
func Bearer(token string) string {
	if token == "" {
		return ""
	}
	return "Bearer " + token
}
