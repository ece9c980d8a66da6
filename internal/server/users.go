package server

import (
	"net/http"
	"strconv"
	"strings"

	"cropadviser/internal/app"
	"cropadviser/pkg/domain"
	"cropadviser/pkg/store"
)

type registerRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	UserLevel string `json:"userlevel"`
	Phone     string `json:"phone"`
	District  string `json:"district"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	user, err := s.app.Register(r.Context(), app.RegisterInput{
		Name:      req.Name,
		Email:     req.Email,
		Password:  req.Password,
		UserLevel: domain.UserLevel(req.UserLevel),
		Phone:     req.Phone,
		District:  req.District,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, user)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.app.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSession(w, res)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.app.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSession(w, res)
}

// writeSession is the login/refresh envelope: the user plus top-level token
// material and the role home path.
func writeSession(w http.ResponseWriter, res app.LoginResult) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"data":         res.User,
		"token":        res.Token,
		"refreshToken": res.RefreshToken,
		"homePath":     res.HomePath,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, r, app.ErrUnauthorized)
		return
	}
	var req refreshRequest
	// The refresh token is optional; an empty body still logs out the
	// access token.
	_ = decodeBody(r, &req)
	if err := s.app.Logout(r.Context(), token, req.RefreshToken); err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request, actor domain.User) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	user, err := s.app.GetUser(r.Context(), actor, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, user)
}

type updateProfileRequest struct {
	Name     *string `json:"name"`
	Phone    *string `json:"phone"`
	District *string `json:"district"`
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request, actor domain.User) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req updateProfileRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	user, err := s.app.UpdateProfile(r.Context(), actor, id, app.UpdateProfileInput{
		Name:     req.Name,
		Phone:    req.Phone,
		District: req.District,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, user)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request, actor domain.User) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req changePasswordRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.app.ChangePassword(r.Context(), actor, id, req.CurrentPassword, req.NewPassword); err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"message": "password updated"})
}

func (s *Server) handleUploadAvatar(w http.ResponseWriter, r *http.Request, actor domain.User) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	upload, err := s.formFile(w, r, "avatar")
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer upload.close()
	user, err := s.app.UploadAvatar(r.Context(), actor, id, upload.FileUpload)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, user)
}

type setUserLevelRequest struct {
	UserLevel *string `json:"userlevel"`
	Status    *string `json:"status"`
}

func (s *Server) handleSetUserLevel(w http.ResponseWriter, r *http.Request, actor domain.User) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req setUserLevelRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	in := app.SetUserLevelInput{}
	if req.UserLevel != nil {
		level := domain.UserLevel(strings.ToLower(strings.TrimSpace(*req.UserLevel)))
		in.UserLevel = &level
	}
	if req.Status != nil {
		status := domain.UserStatus(strings.ToLower(strings.TrimSpace(*req.Status)))
		in.Status = &status
	}
	user, err := s.app.SetUserLevel(r.Context(), actor, id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, user)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request, actor domain.User) {
	q := r.URL.Query()
	page, pageSize := pagination(q.Get("page"), q.Get("pageSize"))
	result, err := s.app.ListUsers(r.Context(), actor, store.UserFilter{
		Level:    domain.UserLevel(strings.ToLower(strings.TrimSpace(q.Get("userlevel")))),
		Query:    q.Get("q"),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writePage(w, result.Users, page, pageSize, result.Total)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request, actor domain.User) {
	stats, err := s.app.Stats(r.Context(), actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, stats)
}

func pagination(rawPage, rawSize string) (int, int) {
	page, _ := strconv.Atoi(rawPage)
	if page < 1 {
		page = 1
	}
	size, _ := strconv.Atoi(rawSize)
	if size < 1 || size > 200 {
		size = 20
	}
	return page, size
}
