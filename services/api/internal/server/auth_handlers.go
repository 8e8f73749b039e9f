package server

import (
	"net/http"
	"strings"

	"mangareader/services/api/internal/app"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, s.registerLimiter) {
		return
	}
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	account, err := s.app.Register(r.Context(), app.AccountInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		s.audit(r, "auth.register", "failure", "username", req.Username, "reason", err.Error())
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "auth.register", "success", "user_id", account.ID)
	writeJSON(w, http.StatusCreated, account)
}

func (s *Server) handleRegisterAllowed(w http.ResponseWriter, r *http.Request) {
	allowed, err := s.app.RegistrationAllowed(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"registration_allowed": allowed})
}

// handleLogin accepts form fields like an OAuth2 password grant, or JSON.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, s.loginLimiter) {
		return
	}
	var req loginRequest
	if isJSON(r) {
		if !decodeJSON(w, r, &req) {
			return
		}
	} else {
		r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
		if err := r.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, "invalid form body")
			return
		}
		req.Username = r.PostFormValue("username")
		req.Password = r.PostFormValue("password")
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}
	token, account, err := s.app.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		s.audit(r, "auth.login", "failure", "username", req.Username, "reason", err.Error())
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "auth.login", "success", "user_id", account.ID)
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int64(s.app.TokenTTL().Seconds()),
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	account, ok := s.currentAccount(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	account, ok := s.currentAccount(w, r)
	if !ok {
		return
	}
	if !s.allowRate(w, r, s.passwordLimiter) {
		return
	}
	var req changePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.app.ChangePassword(r.Context(), account, req.CurrentPassword, req.NewPassword); err != nil {
		s.audit(r, "auth.password_change", "failure", "user_id", account.ID, "reason", err.Error())
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "auth.password_change", "success", "user_id", account.ID)
	writeMessage(w, "Password changed successfully")
}

func (s *Server) handleDeleteOwnAccount(w http.ResponseWriter, r *http.Request) {
	account, ok := s.currentAccount(w, r)
	if !ok {
		return
	}
	if err := s.app.DeleteOwnAccount(r.Context(), account); err != nil {
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "auth.account_delete", "success", "user_id", account.ID)
	writeMessage(w, "Account deleted successfully")
}
