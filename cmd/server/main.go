package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/paperhub/course-chat/internal/api"
	"github.com/paperhub/course-chat/internal/attach"
	"github.com/paperhub/course-chat/internal/chat"
	"github.com/paperhub/course-chat/internal/config"
	"github.com/paperhub/course-chat/internal/database"
	"github.com/paperhub/course-chat/internal/server"
	"github.com/paperhub/course-chat/internal/stats"
	"github.com/paperhub/course-chat/internal/storage"
	"github.com/paperhub/course-chat/internal/summary"
)

const defaultSigningKey = "kQ4cWfdVyN0ohgM3H9zkXkd2hLUM3p/aVJ5DnRbB+Do="

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	configPath     string
	addr           string
	dsn            string
	signingKey     string
	allowedOrigins stringSliceFlag
)

func main() {
	flag.StringVar(&configPath, "config", "", "path to YAML config file")
	flag.StringVar(&addr, "addr", "localhost:8000", "server address")
	flag.StringVar(&dsn, "dsn", "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable", "database connection string")
	flag.StringVar(&signingKey, "signing-key", defaultSigningKey, "base64 encoded signing key")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	logger := log.New(os.Stderr, "[course-chat] ", log.LstdFlags)

	cfg, err := config.NewConfig(configPath, addr, dsn, signingKey, allowedOrigins)
	if err != nil {
		logger.Fatal("config:", err)
	}

	dbConn, err := database.NewPgCourseChatRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open:", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Fatal("db close:", err)
		}
	}()

	store, err := storage.NewMinioStore(
		cfg.ObjectStore.Endpoint,
		cfg.ObjectStore.AccessKey,
		cfg.ObjectStore.SecretKey,
		cfg.ObjectStore.Bucket,
		cfg.ObjectStore.PublicURL,
		cfg.ObjectStore.UseSSL,
	)
	if err != nil {
		logger.Fatal("object store:", err)
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	chatServer, err := server.NewChatServer(logger, dbConn, statsUpdater)
	if err != nil {
		logger.Fatal("new chat server:", err)
	}

	admitter := attach.NewAdmitter(logger, dbConn, store)

	sweeper := attach.NewSweeper(logger, dbConn, store)
	sweeper.Run()
	defer sweeper.Stop()

	summarizer := summary.NewOllamaSummarizer(cfg.Summarizer.URL, cfg.Summarizer.Model, 60*time.Second)

	chatSvc := chat.NewService(logger, dbConn, admitter, summarizer, chatServer, statsUpdater)

	srv := api.NewCourseChatApp(mux, logger, chatServer, dbConn, chatSvc, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go chatServer.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("shutting down chat server...")
	if err := chatServer.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("chat server shutdown:", err)
	}

	logger.Println("shutdown complete")
}
