package ingress

import (
	"crypto/subtle"
	"errors"
	"net"
	"net/http"

	"github.com/kannel-go/smsbox/internal/urltrans"
)

var errAuthFailed = errors.New("ingress: authentication failed")

// authenticate extracts (username, password) from the query string or,
// for POST requests, the X-Kannel-Username/X-Kannel-Password headers,
// looks up the translation they name, and checks the password, IP
// allow/deny list, and (for the special "pam" translation) the injected
// CredentialValidator. It returns the matched translation on success.
func (s *Server) authenticate(r *http.Request) (*urltrans.Translation, error) {
	username, password := credentialsFromRequest(r)
	if username == "" {
		return nil, errAuthFailed
	}

	t, ok := s.translations.FindByUsername(username)
	if !ok {
		return nil, errAuthFailed
	}

	if t.Username == "pam" {
		ok, err := s.validator.Validate(r.Context(), username, password)
		if err != nil || !ok {
			return nil, errAuthFailed
		}
	} else if subtle.ConstantTimeCompare([]byte(t.Password), []byte(password)) != 1 {
		return nil, errAuthFailed
	}

	if !t.IPAllowed(clientIP(r)) {
		return nil, errAuthFailed
	}
	return t, nil
}

func credentialsFromRequest(r *http.Request) (username, password string) {
	q := r.URL.Query()
	username = firstNonEmpty(q.Get("username"), q.Get("user"))
	password = firstNonEmpty(q.Get("password"), q.Get("pass"))
	if r.Method == http.MethodPost {
		if h := r.Header.Get("X-Kannel-Username"); h != "" {
			username = h
		}
		if h := r.Header.Get("X-Kannel-Password"); h != "" {
			password = h
		}
	}
	return username, password
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// clientIP returns the request's remote address with any port stripped,
// falling back to the raw RemoteAddr if it does not contain one.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
