package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/workpass-app/workpass/internal/common"
	"github.com/workpass-app/workpass/internal/server/models"
)

type userView struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Avatar   string `json:"avatar"`
}

func viewOf(u *models.User) userView {
	return userView{ID: u.ID, Username: u.Username, Name: u.Name, Avatar: u.Avatar}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type loginRequest struct {
	Code string `json:"code"`
}

func decodeLoginCode(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return "", false
	}
	return req.Code, true
}

// findOrCreateUser resolves a platform account to a local user, creating
// and linking one on first login.
func (s *Server) findOrCreateUser(r *http.Request, provider, openID string, profile *models.User, data string) (*models.User, error) {
	ctx := r.Context()

	user, err := s.users.FindByOpenID(ctx, provider, openID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}

	user, err = s.users.CreateWithIdentity(ctx, profile, provider, openID, data)
	if err != nil {
		return nil, err
	}
	s.log.Info(ctx, "created user from platform login",
		"request_id", RequestIDFromContext(ctx), "provider", provider, "user_id", user.ID)
	return user, nil
}

func (s *Server) handleLoginDingtalk(w http.ResponseWriter, r *http.Request) {
	code, ok := decodeLoginCode(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	userID, err := s.dingtalk.UserIDFromCode(ctx, code)
	if err != nil {
		s.log.Warn(ctx, "dingtalk code exchange failed",
			"request_id", RequestIDFromContext(ctx), "error", err)
		writeError(w, http.StatusBadGateway, "platform error")
		return
	}
	info, err := s.dingtalk.UserInfo(ctx, userID)
	if err != nil {
		s.log.Warn(ctx, "dingtalk profile fetch failed",
			"request_id", RequestIDFromContext(ctx), "error", err)
		writeError(w, http.StatusBadGateway, "platform error")
		return
	}

	data, _ := json.Marshal(info)
	profile := &models.User{Username: info.UserID, Name: info.Name, Avatar: info.Avatar}
	user, err := s.findOrCreateUser(r, "dingtalk", info.UserID, profile, string(data))
	if err != nil {
		s.log.Error(ctx, "user lookup failed",
			"request_id", RequestIDFromContext(ctx), "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if err := IdentityFromContext(ctx).Login(ctx, user); err != nil {
		s.log.Error(ctx, "login failed",
			"request_id", RequestIDFromContext(ctx), "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": viewOf(user)})
}

func (s *Server) handleLoginWechat(w http.ResponseWriter, r *http.Request) {
	code, ok := decodeLoginCode(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	session, err := s.wechat.CodeToSession(ctx, code)
	if err != nil {
		s.log.Warn(ctx, "wechat code exchange failed",
			"request_id", RequestIDFromContext(ctx), "error", err)
		writeError(w, http.StatusBadGateway, "platform error")
		return
	}

	data, _ := json.Marshal(map[string]string{"unionid": session.UnionID})
	profile := &models.User{Username: session.OpenID}
	user, err := s.findOrCreateUser(r, "wechat", session.OpenID, profile, string(data))
	if err != nil {
		s.log.Error(ctx, "user lookup failed",
			"request_id", RequestIDFromContext(ctx), "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if err := IdentityFromContext(ctx).Login(ctx, user); err != nil {
		s.log.Error(ctx, "login failed",
			"request_id", RequestIDFromContext(ctx), "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": viewOf(user)})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := IdentityFromContext(ctx).Logout(ctx); err != nil {
		s.log.Error(ctx, "logout failed",
			"request_id", RequestIDFromContext(ctx), "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := IdentityFromContext(ctx)
	if !identity.IsLogin() {
		writeError(w, http.StatusUnauthorized, "not logged in")
		return
	}

	user := identity.User(ctx)
	if user == nil {
		// session is valid but the user row is gone or unreadable
		writeError(w, http.StatusUnauthorized, "not logged in")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": viewOf(user)})
}
