package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/paperhub/course-chat/internal/chat"
	"github.com/paperhub/course-chat/internal/config"
	"github.com/paperhub/course-chat/internal/database"
	"github.com/paperhub/course-chat/internal/server"
)

type CourseChatApp struct {
	log            *log.Logger
	db             database.CourseChatRepository
	chat           *chat.Service
	cs             *server.ChatServer
	mux            *http.Server
	signingKey     []byte
	allowedOrigins []string
}

func NewCourseChatApp(mux *http.ServeMux, logger *log.Logger, cs *server.ChatServer,
	db database.CourseChatRepository, chatSvc *chat.Service, cfg *config.Config) *CourseChatApp {

	s := &CourseChatApp{
		log:            logger,
		db:             db,
		chat:           chatSvc,
		cs:             cs,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("POST /api/auth/register", s.createAccount)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("GET /api/auth/session", s.authMiddleware(s.session))
	mux.Handle("GET /api/chat/rooms", s.authMiddleware(s.getRooms))
	mux.Handle("POST /api/chat/rooms", s.authMiddleware(s.createRoom))
	mux.Handle("GET /api/chat/rooms/{id}/messages", s.authMiddleware(s.getMessages))
	mux.Handle("POST /api/chat/rooms/{id}/messages", s.authMiddleware(s.sendMessage))
	mux.Handle("POST /api/chat/rooms/{id}/end", s.authMiddleware(s.endChat))
	mux.Handle("POST /api/chat/rooms/{id}/summary/retry", s.authMiddleware(s.retrySummary))
	mux.Handle("GET /api/chat/summaries", s.authMiddleware(s.listSummaries))
	mux.Handle("POST /api/chat/upload", s.authMiddleware(s.upload))
	mux.Handle("GET /ws", s.authMiddleware(s.serveWs))
	mux.HandleFunc("GET /healthz", s.healthCheck)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *CourseChatApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *CourseChatApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
