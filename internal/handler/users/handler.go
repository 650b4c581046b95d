package users

import (
	"errors"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/voice-interview/client/internal/service/accounts"
	"github.com/zhouzirui/voice-interview/client/pkg/utils"
)

// Handler 候选人账号相关的HTTP处理器
type Handler struct {
	accounts *accounts.Service
}

// New 创建账号处理器
func New(svc *accounts.Service) *Handler {
	return &Handler{accounts: svc}
}

// RegisterRoutes 注册 users/* 路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/users/login", h.handleLogin)
	r.Get("/users/getuser", h.handleGetUser)
	r.Post("/users/logout", h.handleLogout)
	r.Post("/users/phone", h.handlePhone)
}

func decode(r *http.Request, v any) error {
	return sonic.ConfigDefault.NewDecoder(r.Body).Decode(v)
}

// handleLogin 登录，业务结果通过 status_code 返回
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decode(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tokens, err := h.accounts.Login(r.Context(), payload.Email, payload.Password)
	if err != nil {
		utils.RespondStatus(w, http.StatusUnauthorized, "Invalid email or password", nil)
		return
	}
	utils.RespondStatus(w, http.StatusOK, "", map[string]any{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
	})
}

func (h *Handler) handleGetUser(w http.ResponseWriter, r *http.Request) {
	acct, err := h.accounts.Authenticate(r.Context(), utils.BearerToken(r))
	if err != nil {
		utils.RespondError(w, http.StatusUnauthorized, "Authentication failed")
		return
	}
	utils.RespondStatus(w, http.StatusOK, "", map[string]any{
		"id":           acct.ID,
		"email":        acct.Email,
		"name":         acct.Name,
		"phone_number": acct.Phone,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := decode(r, &payload); err != nil || payload.RefreshToken == "" {
		utils.RespondError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}
	h.accounts.Logout(r.Context(), payload.RefreshToken)
	utils.RespondStatus(w, http.StatusOK, "Logged out", nil)
}

func (h *Handler) handlePhone(w http.ResponseWriter, r *http.Request) {
	acct, err := h.accounts.Authenticate(r.Context(), utils.BearerToken(r))
	if err != nil {
		utils.RespondError(w, http.StatusUnauthorized, "Authentication failed")
		return
	}

	var payload struct {
		Phone string `json:"phone_number"`
	}
	if err := decode(r, &payload); err != nil || strings.TrimSpace(payload.Phone) == "" {
		utils.RespondError(w, http.StatusBadRequest, "phone_number is required")
		return
	}

	if err := h.accounts.SavePhone(r.Context(), acct.Email, strings.TrimSpace(payload.Phone)); err != nil {
		if errors.Is(err, accounts.ErrPhoneTaken) {
			utils.RespondStatus(w, http.StatusConflict, "Phone number already registered", nil)
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.RespondStatus(w, http.StatusCreated, "Phone number saved", nil)
}
