package server

import (
	"net/http"
	"strconv"
	"strings"

	"mangareader/services/api/internal/app"
)

type createUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type updateUserRequest struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`
	Role     *string `json:"role"`
	IsActive *bool   `json:"is_active"`
	Password *string `json:"password"`
}

type configRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type registrationRequest struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) handleAdminCreateUser(w http.ResponseWriter, r *http.Request) {
	admin, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}
	var req createUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	account, err := s.app.CreateAccount(r.Context(), app.AccountInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "admin.user_create", "success", "admin_id", admin.ID, "user_id", account.ID, "role", string(account.Role))
	writeJSON(w, http.StatusCreated, account)
}

func (s *Server) handleAdminListUsers(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}
	accounts, err := s.app.ListAccounts(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (s *Server) handleAdminUpdateUser(w http.ResponseWriter, r *http.Request) {
	admin, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req updateUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	account, err := s.app.UpdateAccount(r.Context(), admin, id, app.AccountUpdate{
		Username: req.Username,
		Email:    req.Email,
		Role:     req.Role,
		IsActive: req.IsActive,
		Password: req.Password,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "admin.user_update", "success", "admin_id", admin.ID, "user_id", account.ID)
	writeJSON(w, http.StatusOK, account)
}

func (s *Server) handleAdminDeleteUser(w http.ResponseWriter, r *http.Request) {
	admin, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.app.DeleteAccount(r.Context(), admin, id); err != nil {
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "admin.user_delete", "success", "admin_id", admin.ID, "user_id", id)
	writeMessage(w, "User deleted successfully")
}

func (s *Server) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}
	stats, err := s.app.Stats(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleAdminGetConfig(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}
	all, err := s.app.AllConfig(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, all)
}

func (s *Server) handleAdminGetConfigKey(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}
	entry, err := s.app.GetConfig(r.Context(), r.PathValue("key"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// handleAdminSetConfig takes key and value from the query string or a JSON body.
func (s *Server) handleAdminSetConfig(w http.ResponseWriter, r *http.Request) {
	admin, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}
	req := configRequest{Key: r.URL.Query().Get("key"), Value: r.URL.Query().Get("value")}
	if req.Key == "" && isJSON(r) {
		if !decodeJSON(w, r, &req) {
			return
		}
	}
	if err := s.app.SetConfig(r.Context(), req.Key, req.Value); err != nil {
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "admin.config_set", "success", "admin_id", admin.ID, "key", req.Key)
	writeJSON(w, http.StatusOK, map[string]string{"key": strings.TrimSpace(req.Key), "value": req.Value})
}

func (s *Server) handleAdminGetRegistration(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}
	enabled, err := s.app.RegistrationAllowed(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"registration_enabled": enabled})
}

// handleAdminSetRegistration takes enabled from the query string or a JSON body.
func (s *Server) handleAdminSetRegistration(w http.ResponseWriter, r *http.Request) {
	admin, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}
	var enabled bool
	if raw := r.URL.Query().Get("enabled"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "enabled must be a boolean")
			return
		}
		enabled = parsed
	} else {
		var req registrationRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Enabled == nil {
			writeError(w, http.StatusBadRequest, "enabled is required")
			return
		}
		enabled = *req.Enabled
	}
	if err := s.app.SetRegistrationEnabled(r.Context(), enabled); err != nil {
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "admin.registration_set", "success", "admin_id", admin.ID, "enabled", enabled)
	writeJSON(w, http.StatusOK, map[string]bool{"registration_enabled": enabled})
}
