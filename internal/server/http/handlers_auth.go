package httpserver

import (
	"net/http"

	"github.com/and161185/passvault/internal/convert"
)

type registerReq struct {
	Username       string `json:"username"`
	Email          string `json:"email"`
	MasterPassword string `json:"master_password"`
}

type loginReq struct {
	Username       string `json:"username"`
	MasterPassword string `json:"master_password"`
}

type changePasswordReq struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type deleteAccountReq struct {
	MasterPassword string `json:"master_password"`
}

type authResp struct {
	Message string       `json:"message,omitempty"`
	Token   string       `json:"token"`
	User    convert.User `json:"user"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in registerReq
	if !decodeJSON(w, r, &in) {
		return
	}
	u, token, err := s.auth.Register(r.Context(), in.Username, in.Email, in.MasterPassword)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, authResp{Message: "User registered successfully", Token: token, User: convert.ToUser(*u)})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in loginReq
	if !decodeJSON(w, r, &in) {
		return
	}
	u, token, err := s.auth.Login(r.Context(), in.Username, in.MasterPassword, remoteIP(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, authResp{Message: "Login successful", Token: token, User: convert.ToUser(*u)})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	u, err := s.auth.Me(r.Context(), mustUser(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true, "user": convert.ToUser(*u)})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var in changePasswordReq
	if !decodeJSON(w, r, &in) {
		return
	}
	if err := s.auth.ChangePassword(r.Context(), mustUser(r), in.CurrentPassword, in.NewPassword); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password changed successfully"})
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	var in deleteAccountReq
	if !decodeJSON(w, r, &in) {
		return
	}
	if err := s.auth.DeleteAccount(r.Context(), mustUser(r), in.MasterPassword); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Account deleted successfully"})
}
