package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/voice-interview/client/internal/config"
	"github.com/zhouzirui/voice-interview/client/internal/handler"
	"github.com/zhouzirui/voice-interview/client/internal/handler/interview"
	"github.com/zhouzirui/voice-interview/client/internal/service/accounts"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	accountSvc := accounts.NewService()
	if cfg.Server.DatabaseURL != "" {
		repo, err := accounts.OpenPostgres(ctx, cfg.Server.DatabaseURL)
		if err != nil {
			log.Fatalf("failed to open account database: %v", err)
		}
		defer repo.Close()
		accountSvc = accounts.NewServiceWithRepository(repo)
		log.Println("accounts stored in postgres")
	}
	if _, err := accountSvc.Register(ctx, cfg.Server.DevEmail, cfg.Server.DevPassword, "Dev Candidate"); err != nil {
		log.Fatalf("failed to seed candidate account: %v", err)
	}
	log.Printf("seeded candidate account %s", cfg.Server.DevEmail)

	questions := cfg.Server.Questions
	if len(questions) == 0 {
		questions = interview.DefaultQuestions
	}
	log.Printf("interview script has %d questions", len(questions))

	router := handler.NewRouter(accountSvc, questions, interview.NewMonitor())
	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("interview dev server listening on %s", serverCfg.Addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
