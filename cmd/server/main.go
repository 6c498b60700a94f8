package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"hayaoshi/internal/config"
	"hayaoshi/internal/database"
	"hayaoshi/internal/game"
	"hayaoshi/internal/handlers"
	"hayaoshi/internal/identity"
	"hayaoshi/internal/models"
	"hayaoshi/internal/progression"
	"hayaoshi/internal/questions"
	"hayaoshi/internal/repository"
	"hayaoshi/internal/security"
	"hayaoshi/internal/storage"
)

func main() {
	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Serve probes while storage connects
	startup := handlers.NewStartup(handlers.StepLocalDatabase, handlers.StepRemoteStorage, handlers.StepQuestions, handlers.StepServer)

	addr := ":" + cfg.ServerPort
	server := &http.Server{
		Addr:         addr,
		Handler:      handlers.Logging(startup),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on http://localhost%s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	startup.SetCurrentStep(handlers.StepLocalDatabase)
	// Local store backs history and stats whenever the remote cannot
	db, err := database.Initialize(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to initialize local database: %v", err)
	}
	defer db.Close()

	log.Printf("Local database ready at %s", cfg.DatabasePath)
	startup.CompleteStep(handlers.StepLocalDatabase)
	startup.SetCurrentStep(handlers.StepRemoteStorage)

	local := storage.NewLocal(repository.NewKVRepository(db), cfg.LocalHistoryCap, nil)

	remote, err := repository.OpenRemote(ctx, cfg)
	if err != nil {
		// The game stays playable on local storage
		log.Printf("Warning: remote storage unavailable, playing locally: %v", err)
		remote = nil
	}
	if remote != nil {
		log.Printf("Remote storage connected (engine: %s)", cfg.RemoteEngine)
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := remote.Close(closeCtx); err != nil {
				log.Printf("Error closing remote storage: %v", err)
			}
		}()
	}

	startup.CompleteStep(handlers.StepRemoteStorage)
	startup.SetCurrentStep(handlers.StepQuestions)

	backend := storage.New(remote, local, storage.Options{
		Timeout:      cfg.RemoteTimeout,
		HistoryLimit: cfg.RemoteHistoryLimit,
	})

	fallback, err := loadQuestions(cfg.QuestionsPath)
	if err != nil {
		log.Fatalf("Failed to load questions: %v", err)
	}
	log.Printf("Loaded %d bundled questions", len(fallback))
	startup.CompleteStep(handlers.StepQuestions)

	gameCfg := game.Config{
		RoundSize:     cfg.RoundSize,
		QuestionTime:  cfg.QuestionTime,
		FeedbackDelay: cfg.FeedbackDelay,
		Mode:          game.ModeForward,
	}
	if cfg.ReverseMode {
		gameCfg.Mode = game.ModeReverse
	}
	// Reject an unusable round configuration before serving
	if _, err := game.New(gameCfg, game.Deps{}); err != nil {
		log.Fatalf("Invalid round configuration: %v", err)
	}

	resolver, err := newResolver(cfg)
	if err != nil {
		log.Fatalf("Failed to configure identity: %v", err)
	}

	sessionSecret := cfg.SessionSecret
	if sessionSecret == "" {
		sessionSecret = randomSecret()
		log.Println("Warning: SESSION_SECRET not set, guest cookies will not survive a restart")
	}

	tracker := progression.NewTracker(progression.DefaultRewards())
	limiter := security.NewRateLimiter(cfg.RateLimit, cfg.RateWindow)
	proxies, err := security.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Fatalf("Invalid TRUSTED_PROXIES: %v", err)
	}
	limiter.TrustProxies(proxies)

	// Initialize handlers
	middleware := handlers.NewMiddleware(resolver, security.NewSigner(sessionSecret))
	gameHandler := handlers.NewGameHandler(ctx, backend, tracker, fallback, gameCfg, cfg.TickInterval)
	statsHandler := handlers.NewStatsHandler(gameHandler.Sessions(), tracker)

	// Setup routes
	mux := http.NewServeMux()
	handlers.RegisterRoutes(mux, middleware, gameHandler, statsHandler, limiter)

	// Background cleanup of idle sessions and rate limit entries
	go gameHandler.Sessions().Run(ctx)
	go limiter.Run(ctx)

	startup.MarkReady(mux)
	log.Println("Server ready")

	<-ctx.Done()
	log.Println("Server shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}
}

// loadQuestions reads the fallback question set from path, or the embedded
// set when path is empty
func loadQuestions(path string) ([]models.Question, error) {
	if path == "" {
		return questions.Bundled()
	}
	return questions.LoadFile(path)
}

func newResolver(cfg *config.Config) (identity.Resolver, error) {
	switch cfg.AuthMode {
	case config.AuthJWT:
		return identity.NewJWTResolver(cfg.JWTSecret, cfg.JWTIssuer), nil
	case config.AuthGoogle:
		return identity.NewGoogleResolver(cfg.GoogleUserInfoURL), nil
	case config.AuthNone, "":
		return identity.None{}, nil
	default:
		return nil, errors.New("unsupported auth mode: " + cfg.AuthMode)
	}
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		log.Fatalf("Failed to generate session secret: %v", err)
	}
	return hex.EncodeToString(b)
}
