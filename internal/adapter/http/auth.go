package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/couchcryptid/field-health-service/internal/adapter/identity"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signupRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

type authResponse struct {
	Success bool           `json:"success"`
	Token   string         `json:"token,omitempty"`
	User    *identity.User `json:"user,omitempty"`
	Error   string         `json:"error,omitempty"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decodeAuth(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, authResponse{Error: "email and password are required"})
		return
	}

	session, err := s.deps.Identity.Login(r.Context(), req.Email, req.Password)
	s.writeSession(w, session, err)
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !s.decodeAuth(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	switch {
	case req.Email == "" || req.Password == "":
		writeJSON(w, http.StatusBadRequest, authResponse{Error: "email and password are required"})
		return
	case req.Password != req.ConfirmPassword:
		writeJSON(w, http.StatusBadRequest, authResponse{Error: "passwords do not match"})
		return
	}

	session, err := s.deps.Identity.Signup(r.Context(), req.Name, req.Email, req.Password)
	s.writeSession(w, session, err)
}

// decodeAuth reads the request body into v. It writes the error response and
// returns false when the request cannot proceed.
func (s *Server) decodeAuth(w http.ResponseWriter, r *http.Request, v any) bool {
	if s.deps.Identity == nil {
		writeJSON(w, http.StatusServiceUnavailable, authResponse{Error: "authentication is not configured"})
		return false
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, authResponse{Error: "invalid JSON body"})
		return false
	}
	return true
}

func (s *Server) writeSession(w http.ResponseWriter, session identity.Session, err error) {
	if err != nil {
		status := http.StatusUnauthorized
		if !errors.Is(err, identity.ErrAuthFailed) {
			status = http.StatusInternalServerError
		}
		writeJSON(w, status, authResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Success: true, Token: session.Token, User: &session.User})
}
