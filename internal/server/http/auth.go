package httpserver

import (
	"net"
	"net/http"

	"github.com/and161185/efiling/internal/errs"
	"github.com/and161185/efiling/internal/policy"
)

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	tok, u, err := s.auth.Login(r.Context(), req.Email, req.Password, clientIP(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		tokensView
		User userView `json:"user"`
	}{toTokens(tok), toUser(u)})
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	tok, err := s.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTokens(tok))
}

// logout accepts an optional body carrying the refresh token to revoke too.
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	actor, ok := policy.ActorFromCtx(r.Context())
	if !ok {
		s.fail(w, r, errs.ErrUnauthorized)
		return
	}
	var req logoutRequest
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	if err := s.auth.Logout(r.Context(), actor, req.RefreshToken); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	actor, ok := policy.ActorFromCtx(r.Context())
	if !ok {
		s.fail(w, r, errs.ErrUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, actorView{UserID: actor.UserID, Role: actor.Role, Name: actor.Name})
}
