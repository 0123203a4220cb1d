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

	"github.com/redis/go-redis/v9"

	"user-auth-service/internal/audit"
	auditrepo "user-auth-service/internal/audit/repository"
	"user-auth-service/internal/auth"
	"user-auth-service/internal/config"
	"user-auth-service/internal/db"
	"user-auth-service/internal/events"
	"user-auth-service/internal/ratelimit"
	"user-auth-service/internal/security"
	"user-auth-service/internal/server"
	sessionrepo "user-auth-service/internal/session/repository"
	otelsetup "user-auth-service/internal/telemetry/otel"
	userrepo "user-auth-service/internal/user/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()

	providers, err := otelsetup.NewProviders(ctx, cfg.OTLPEndpoint, "user-auth-service", cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = providers.Shutdown(shutdownCtx)
	}()

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}
	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer database.Close()

	tokens, err := buildTokenProvider(cfg)
	if err != nil {
		log.Fatalf("jwt keys: %v", err)
	}
	hasher := security.NewHasher(cfg.BcryptCost)

	var limiter auth.LoginLimiter
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer client.Close()
		limiter = ratelimit.New(client, ratelimit.Config{
			MaxLoginAttempts: cfg.MaxLoginAttempts,
			LoginCooldown:    cfg.LoginCooldownDuration(),
		})
		log.Printf("login rate limiter enabled (redis %s)", cfg.RedisAddr)
	}

	// Auth events go to Kafka when brokers are configured; otherwise they ride
	// the OTel log pipeline, which is a no-op without an OTLP endpoint.
	var producer events.Producer
	kafkaProducer, err := events.NewKafkaProducer(cfg.KafkaBrokersList(), cfg.KafkaTopic)
	if err != nil {
		log.Fatalf("kafka: %v", err)
	}
	if kafkaProducer != nil {
		producer = kafkaProducer
		defer kafkaProducer.Close()
		log.Printf("auth event stream enabled (topic %s)", cfg.KafkaTopic)
	} else {
		producer = otelsetup.NewLogProducer(providers.LoggerProvider)
	}

	auditor := audit.NewLogger(auditrepo.NewPostgresRepository(database))

	svc := auth.NewService(
		userrepo.NewPostgresRepository(database),
		sessionrepo.NewPostgresRepository(database),
		hasher,
		tokens,
		cfg.SessionTTLDuration(),
		cfg.SessionRememberTTLDuration(),
		limiter,
		auditor,
		producer,
	)

	engine := server.New(svc, tokens, server.Options{
		CORSOrigins: cfg.CORSOriginsList(),
		ServiceName: "user-auth-service",
		Tracing:     cfg.OTLPEndpoint != "",
	})
	srv := server.NewHTTPServer(cfg.HTTPAddr, engine)

	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	log.Println("HTTP server stopped")
}

// buildTokenProvider parses the configured signing key pair. The config values
// may be inline PEM or paths to key files.
func buildTokenProvider(cfg *config.Config) (*security.TokenProvider, error) {
	priv, err := security.ParsePrivateKey(cfg.JWTPrivateKey)
	if err != nil {
		return nil, err
	}
	pub, err := security.ParsePublicKey(cfg.JWTPublicKey)
	if err != nil {
		return nil, err
	}
	return security.NewTokenProvider(priv, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL()), nil
}
