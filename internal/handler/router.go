package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/voice-interview/client/internal/handler/interview"
	"github.com/zhouzirui/voice-interview/client/internal/handler/users"
	"github.com/zhouzirui/voice-interview/client/internal/service/accounts"
	"github.com/zhouzirui/voice-interview/client/pkg/utils"
)

// NewRouter wires the development backend routes.
func NewRouter(accountSvc *accounts.Service, questions []string, monitor *interview.Monitor) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondStatus(w, http.StatusOK, "ok", nil)
	})

	users.New(accountSvc).RegisterRoutes(r)
	interview.New(accountSvc, questions, monitor).RegisterRoutes(r)

	return r
}
