package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/mvailland/cyrano/internal/api/handler"
	customMiddleware "github.com/mvailland/cyrano/internal/api/middleware"
	"github.com/mvailland/cyrano/internal/config"
	"github.com/mvailland/cyrano/internal/llm"
	"github.com/mvailland/cyrano/internal/llm/anthropic"
	"github.com/mvailland/cyrano/internal/llm/deepseek"
	"github.com/mvailland/cyrano/internal/llm/gemini"
	"github.com/mvailland/cyrano/internal/llm/ollama"
	"github.com/mvailland/cyrano/internal/llm/openai"
	"github.com/mvailland/cyrano/internal/metrics"
	"github.com/mvailland/cyrano/internal/notify"
	"github.com/mvailland/cyrano/internal/pipeline"
	"github.com/mvailland/cyrano/internal/repository/postgres"
	"github.com/mvailland/cyrano/internal/repository/redis"
	"github.com/mvailland/cyrano/internal/security"
	"github.com/mvailland/cyrano/internal/service"
	"github.com/mvailland/cyrano/internal/ws"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// NewRouter wires the full engine and returns the HTTP entry point. The
// context bounds the background workers: the hub, the side-effect pool and
// the reminder sweep all stop when it is cancelled.
func NewRouter(ctx context.Context, cfg *config.Config, db *postgres.DB, redisClient *redis.Client, profileCipher *security.ProfileCipher) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(customMiddleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Initialize security components
	recorder := metrics.NewRecorder(prometheus.DefaultRegisterer)
	jwtManager := security.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)

	// Initialize repositories
	userRepo := postgres.NewUserRepository(db.Pool)
	sessionRepo := postgres.NewSessionRepository(db.Pool)
	messageRepo := postgres.NewMessageRepository(db.Pool)
	profileRepo := postgres.NewProfileRepository(db.Pool, profileCipher)
	settingsRepo := postgres.NewSettingsRepository(db.Pool)
	eventRepo := postgres.NewEventRepository(db.Pool)

	// Initialize Redis stores
	sessionCache := redis.NewSessionCache(redisClient)
	userCache := redis.NewUserCache(redisClient)
	quotaStore := redis.NewQuotaStore(redisClient)
	locker := redis.NewLocker(redisClient)
	rateLimiter := redis.NewRateLimiter(
		redisClient,
		cfg.Security.RateLimit.RequestsPerMinute,
		cfg.Security.RateLimit.Burst,
	)

	verifier := security.NewTokenVerifier(jwtManager, userRepo, userCache)

	// Initialize LLM Router with providers
	llmRouter := llm.NewRouter(cfg.LLM.DefaultProvider)

	log.Info().Msgf("Initializing LLM providers. Default: %s", cfg.LLM.DefaultProvider)

	if cfg.LLM.Ollama.Host != "" {
		log.Info().Str("host", cfg.LLM.Ollama.Host).Msg("Registering Ollama provider")
		llmRouter.RegisterProvider(ollama.NewProvider(cfg.LLM.Ollama.Host, cfg.LLM.Ollama.DefaultModel))
	}
	if cfg.LLM.OpenAI.APIKey != "" {
		llmRouter.RegisterProvider(openai.NewProvider(cfg.LLM.OpenAI.APIKey, cfg.LLM.OpenAI.Model))
	}
	if cfg.LLM.Anthropic.APIKey != "" {
		llmRouter.RegisterProvider(anthropic.NewProvider(cfg.LLM.Anthropic.APIKey, cfg.LLM.Anthropic.Model))
	}
	if cfg.LLM.DeepSeek.APIKey != "" {
		llmRouter.RegisterProvider(deepseek.NewProvider(cfg.LLM.DeepSeek.APIKey, cfg.LLM.DeepSeek.Model))
	}
	if cfg.LLM.Gemini.APIKey != "" {
		llmRouter.RegisterProvider(gemini.NewProvider(cfg.LLM.Gemini))
	} else {
		log.Warn().Msg("Gemini API Key is empty, skipping registration")
	}

	prompts := llm.NewPromptBuilder(llm.NewTokenEstimator(), cfg.Chat.HistoryBudgetTokens)

	// Initialize services
	guard := service.NewQuotaGuard(userRepo, messageRepo, quotaStore, userCache, recorder, cfg.Quota)
	chatService := service.NewChatService(sessionRepo, messageRepo, profileRepo, sessionCache, cfg.Chat.HistoryDepth)
	eventService := service.NewEventService(eventRepo)

	// The hub doubles as the broadcaster every service publishes through
	hub := ws.NewHub(recorder)

	notifier := notify.NewLogNotifier()
	jobs := pipeline.NewJobs(
		sessionRepo,
		messageRepo,
		settingsRepo,
		profileRepo,
		eventRepo,
		sessionCache,
		userCache,
		locker,
		llmRouter,
		notifier,
		cfg.Pipeline,
	)
	queue := pipeline.NewQueue(jobs, recorder, cfg.Pipeline)

	responder := service.NewResponder(
		chatService,
		guard,
		sessionRepo,
		messageRepo,
		settingsRepo,
		sessionCache,
		userCache,
		locker,
		llmRouter,
		prompts,
		queue,
		hub,
		recorder,
		cfg.Chat,
	)
	mediaService := service.NewMediaService(chatService, guard, sessionRepo, messageRepo, sessionCache, hub)

	gateway := ws.NewGateway(hub, responder, chatService, verifier, cfg.WS)

	// Background workers, bounded by the server context
	go hub.Run(ctx)
	go queue.Run(ctx)
	go jobs.RunReminders(ctx)

	// Initialize handlers
	sessionHandler := handler.NewSessionHandler(chatService)
	eventHandler := handler.NewEventHandler(eventService)
	mediaHandler := handler.NewMediaHandler(mediaService, responder)

	// Auth middleware
	authMiddleware := customMiddleware.NewAuthMiddleware(verifier)
	rateLimitMiddleware := customMiddleware.NewRateLimitMiddleware(rateLimiter)

	// Probes and metrics stay outside the API group
	r.Get("/healthz", handler.HealthCheck)
	r.Get("/readyz", handler.ReadyCheck(db))
	if cfg.Metrics.Enabled {
		r.Method(http.MethodGet, cfg.Metrics.Path, promhttp.Handler())
	}

	// The gateway registers outside the timeout middleware; socket
	// connections are long-lived
	gateway.RegisterRoutes(r)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(cfg.Server.MiddlewareTimeout))

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)
			r.Use(rateLimitMiddleware.Limit)

			// LLM providers
			r.Get("/llm-providers", handler.ListLLMProviders(llmRouter))

			// Cache management
			r.Post("/cache/flush", handler.FlushCache(sessionCache))

			// Chat routes
			r.Route("/chats", func(r chi.Router) {
				r.Get("/", sessionHandler.List)
				r.Post("/", sessionHandler.Create)
				r.Delete("/", sessionHandler.DeleteAll)

				r.Route("/{conversationID}", func(r chi.Router) {
					r.Get("/", sessionHandler.Get)
					r.Delete("/", sessionHandler.Delete)
					r.Get("/history", sessionHandler.GetHistory)
					r.Patch("/rename", sessionHandler.Rename)
					r.Post("/rebuild-preview", sessionHandler.RebuildPreview)
					r.Post("/media", mediaHandler.Upload)
				})
			})

			// Detected events
			r.Route("/events", func(r chi.Router) {
				r.Get("/", eventHandler.List)
				r.Post("/{eventID}/confirm", eventHandler.Confirm)
				r.Post("/{eventID}/cancel", eventHandler.Cancel)
			})

			// Extraction worker intake
			r.Post("/media/results", mediaHandler.Results)
		})
	})

	return r
}
