// Package ingress implements the sendsms/sendota HTTP ingress (C8): the
// entry point third parties use to submit mobile-terminated messages and
// OTA provisioning payloads directly, bypassing the MO obey loop.
package ingress

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kannel-go/smsbox/internal/bearerbox"
	"github.com/kannel-go/smsbox/internal/counters"
	"github.com/kannel-go/smsbox/internal/urltrans"
)

// Config carries the ingress-wide settings read from the global
// configuration group, as opposed to per-translation settings.
type Config struct {
	GlobalSender string
	NumberChars  string
	WhiteList    []string
	BlackList    []string
	OTA          map[string]OTAConfig
}

// CredentialValidator authenticates the special "pam" translation
// delegated username/password pair. The real gateway shells out to the
// system PAM stack; that is out of scope here, so the default validator
// always refuses and callers inject their own when they need it.
type CredentialValidator interface {
	Validate(ctx context.Context, username, password string) (bool, error)
}

type noopValidator struct{}

func (noopValidator) Validate(ctx context.Context, username, password string) (bool, error) {
	return false, nil
}

// Server holds the dependencies the sendsms/sendota handlers need.
type Server struct {
	translations *urltrans.List
	link         *bearerbox.Link
	cat          *counters.Catenation
	cfg          Config
	validator    CredentialValidator
	log          *zap.Logger
}

// NewServer builds a Server. validator may be nil, in which case the
// "pam" translation always fails authentication.
func NewServer(translations *urltrans.List, link *bearerbox.Link, cat *counters.Catenation, cfg Config, validator CredentialValidator, log *zap.Logger) *Server {
	if validator == nil {
		validator = noopValidator{}
	}
	return &Server{
		translations: translations,
		link:         link,
		cat:          cat,
		cfg:          cfg,
		validator:    validator,
		log:          log,
	}
}

// Router builds the chi mux exposing the three recognized paths.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/cgi-bin/sendsms", s.handleSendsms)
	r.Post("/cgi-bin/sendsms", s.handleSendsms)
	r.Get("/sendsms", s.handleSendsms)
	r.Post("/sendsms", s.handleSendsms)
	r.Get("/cgi-bin/sendota", s.handleSendota)
	r.Post("/cgi-bin/sendota", s.handleSendota)
	return r
}
