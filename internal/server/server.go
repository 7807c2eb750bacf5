// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"playhub/internal/cache"
	"playhub/internal/competition"
	"playhub/internal/config"
	"playhub/internal/database"
	"playhub/internal/events"
	"playhub/internal/gamecommand"
	"playhub/internal/jobqueue"
	"playhub/internal/mailer"
	"playhub/internal/middleware"
	"playhub/internal/models"
	"playhub/internal/notifications"
	"playhub/internal/oauth"
	"playhub/internal/repository"
	"playhub/internal/service"
	"playhub/internal/upload"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// wireableHub is implemented by every WebSocket hub that can be wired to
// Redis pub/sub and gracefully shut down.
type wireableHub interface {
	Name() string
	StartWiring(ctx context.Context, n *notifications.Notifier) error
	Shutdown(ctx context.Context) error
}

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc

	userRepo repository.UserRepository
	gameRepo repository.GameRepository

	notifier *notifications.Notifier
	hub      *notifications.Hub
	gameHub  *notifications.GameHub
	hubs     []wireableHub // all hubs for wiring/shutdown iteration

	userService *service.UserService
	gameService *service.GameService

	uploadService  *upload.Service
	competitionSvc *competition.Service
	oauthServer    *oauth.Server

	eventsProducer *events.Producer
	lobbyHandler   *gamecommand.Handler
	jobQueue       *jobqueue.Queue
	jobWorker      *jobqueue.Worker
	mailSender     *mailer.Mailer
}

// NewServer creates a new server instance with all dependencies
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)
	redisClient := cache.GetClient()

	return NewServerWithDeps(cfg, db, redisClient)
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Use this in tests or when a bootstrap layer establishes DB/Redis and optionally
// performs explicit seeding.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	userRepo := repository.NewUserRepository(db)
	gameRepo := repository.NewGameRepository(db)

	prom := fiberprometheus.New("playhub-api")

	server := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: prom,
		userRepo:       userRepo,
		gameRepo:       gameRepo,
	}

	server.userService = service.NewUserService(server.userRepo)
	server.gameService = service.NewGameService(server.gameRepo)
	server.jobQueue = jobqueue.NewQueue(db, cfg)
	server.jobWorker = jobqueue.NewWorker(server.jobQueue, cfg)
	server.uploadService = upload.NewService(db, cfg, server.jobQueue)
	server.competitionSvc = competition.NewService(db)
	server.oauthServer = oauth.NewServer(db, cfg)
	server.mailSender = mailer.New(cfg)
	registerJobHandlers(server)

	// NOTE: seeding is intentionally NOT performed here. Seeding should be
	// explicit during runtime bootstrap (cmd) or test setup.

	if redisClient != nil {
		server.notifier = notifications.NewNotifier(redisClient)
		server.eventsProducer = events.NewProducer(redisClient, "games.events", 8, "playhub-api")

		server.hub = notifications.NewHub(redisClient)
		server.gameHub = notifications.NewGameHub(db, server.notifier)
		server.hubs = []wireableHub{server.hub, server.gameHub}
	}

	server.lobbyHandler = gamecommand.NewHandler(db, server.eventsProducer, cfg)

	if server.hub != nil {
		// The account-level presence layer (internal/notifications.Hub,
		// backed by ConnectionManager) is upstream of any one room's
		// transport: a dropped connection is detected there first. Wire its
		// online/offline callbacks into the room engine's own disconnect
		// grace window / auto-play arbitration instead of letting the two
		// layers disagree about who is actually present.
		server.hub.SetPresenceCallbacks(
			func(userID uint) { server.lobbyHandler.HandlePresenceOnline(context.Background(), userID) },
			func(userID uint) { server.lobbyHandler.HandlePresenceOffline(context.Background(), userID) },
		)
	}

	return server, nil
}

// CreateUserJobPayload is the create_user job's payload shape. Password
// carries the already-bcrypt-hashed value — the job handler only persists,
// it never sees a plaintext password. Username has no counterpart in the
// job contract's {email, password, first_name, last_name} shape, but
// models.User requires one (unique, not null), so callers must supply it.
type CreateUserJobPayload struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// registerJobHandlers wires the background job names enqueued elsewhere in
// the module to their processing functions.
func registerJobHandlers(s *Server) {
	s.jobWorker.Register("create_user", func(ctx context.Context, payload json.RawMessage) (jobqueue.Outcome, string, string) {
		var req CreateUserJobPayload
		if err := json.Unmarshal(payload, &req); err != nil {
			return jobqueue.Failed, "", err.Error()
		}
		user := &models.User{
			Username:  req.Username,
			Email:     req.Email,
			Password:  req.Password,
			FirstName: req.FirstName,
			LastName:  req.LastName,
		}
		if err := s.userRepo.Create(ctx, user); err != nil {
			return jobqueue.Failed, "", err.Error()
		}
		result, _ := json.Marshal(fiber.Map{"id": user.ID})
		return jobqueue.Success, string(result), ""
	})

	s.jobWorker.Register("send_email", func(ctx context.Context, payload json.RawMessage) (jobqueue.Outcome, string, string) {
		var req struct {
			To        string            `json:"to"`
			Template  string            `json:"template"`
			Variables map[string]string `json:"variables"`
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			return jobqueue.Failed, "", err.Error()
		}
		if err := s.mailSender.Send(req.To, mailer.Template(req.Template), req.Variables); err != nil {
			if mailer.IsRetryable(err) {
				return jobqueue.Retry, "", err.Error()
			}
			return jobqueue.Failed, "", err.Error()
		}
		return jobqueue.Success, "", ""
	})

	s.jobWorker.Register("resize_image", func(ctx context.Context, payload json.RawMessage) (jobqueue.Outcome, string, string) {
		var req upload.ResizeImagePayload
		if err := json.Unmarshal(payload, &req); err != nil {
			return jobqueue.Failed, "", err.Error()
		}
		if err := s.uploadService.ProcessVariants(ctx, req); err != nil {
			return jobqueue.Retry, "", err.Error()
		}
		return jobqueue.Success, "", ""
	})

	s.jobWorker.Register("delete_user", func(ctx context.Context, payload json.RawMessage) (jobqueue.Outcome, string, string) {
		var req struct {
			ID uint `json:"id"`
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			return jobqueue.Failed, "", err.Error()
		}
		if err := s.userRepo.Delete(ctx, req.ID); err != nil {
			return jobqueue.Retry, "", err.Error()
		}
		return jobqueue.Success, "", ""
	})

	s.jobWorker.Register("delete_upload", func(ctx context.Context, payload json.RawMessage) (jobqueue.Outcome, string, string) {
		var req struct {
			UploadUUID string `json:"upload_uuid"`
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			return jobqueue.Failed, "", err.Error()
		}
		// This domain carries no site_config.logo/favicon rows to cascade
		// against; the nearest equivalent is a user's own avatar pointing
		// at the upload being deleted, so that reference is cleared first.
		var target models.Upload
		if err := s.db.WithContext(ctx).Where("uuid = ?", req.UploadUUID).First(&target).Error; err == nil {
			_ = s.db.WithContext(ctx).Model(&models.User{}).
				Where("avatar_upload_id = ?", target.ID).
				Update("avatar_upload_id", nil).Error
		}
		if err := s.uploadService.Delete(ctx, req.UploadUUID); err != nil {
			return jobqueue.Retry, "", err.Error()
		}
		return jobqueue.Success, "", ""
	})

	s.jobWorker.Register("bulk_delete_users", func(ctx context.Context, payload json.RawMessage) (jobqueue.Outcome, string, string) {
		var req struct {
			IDs []uint `json:"ids"`
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			return jobqueue.Failed, "", err.Error()
		}
		deleted, missing := 0, 0
		for _, id := range req.IDs {
			if err := s.userRepo.Delete(ctx, id); err != nil {
				missing++
				continue
			}
			deleted++
		}
		result, _ := json.Marshal(fiber.Map{"deleted": deleted, "missing": missing})
		return jobqueue.Success, string(result), ""
	})

	s.jobWorker.Register("bulk_delete_uploads", func(ctx context.Context, payload json.RawMessage) (jobqueue.Outcome, string, string) {
		var req struct {
			IDs []string `json:"ids"`
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			return jobqueue.Failed, "", err.Error()
		}
		deleted, missing := 0, 0
		for _, uuid := range req.IDs {
			if err := s.uploadService.Delete(ctx, uuid); err != nil {
				missing++
				continue
			}
			deleted++
		}
		result, _ := json.Marshal(fiber.Map{"deleted": deleted, "missing": missing})
		return jobqueue.Success, string(result), ""
	})

	s.jobWorker.Register("bulk_user_action", func(ctx context.Context, payload json.RawMessage) (jobqueue.Outcome, string, string) {
		var req struct {
			Action      string `json:"action"`
			UserIDs     []uint `json:"user_ids"`
			Permissions int    `json:"permissions"`
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			return jobqueue.Failed, "", err.Error()
		}
		switch req.Action {
		case "delete":
			deleted, missing := 0, 0
			for _, id := range req.UserIDs {
				if err := s.userRepo.Delete(ctx, id); err != nil {
					missing++
					continue
				}
				deleted++
			}
			result, _ := json.Marshal(fiber.Map{"deleted": deleted, "missing": missing})
			return jobqueue.Success, string(result), ""
		case "set_permissions":
			switch req.Permissions {
			case models.PermissionUser, models.PermissionAdmin, models.PermissionModerator, models.PermissionSuperAdmin:
			default:
				return jobqueue.Failed, "", fmt.Sprintf("invalid permissions %d", req.Permissions)
			}
			updated := 0
			for _, id := range req.UserIDs {
				user, err := s.userRepo.GetByID(ctx, id)
				if err != nil {
					continue
				}
				user.Permissions = req.Permissions
				user.IsAdmin = req.Permissions >= models.PermissionAdmin
				if err := s.userRepo.Update(ctx, user); err == nil {
					updated++
				}
			}
			result, _ := json.Marshal(fiber.Map{"updated": updated})
			return jobqueue.Success, string(result), ""
		default:
			return jobqueue.Failed, "", "unknown bulk_user_action action " + req.Action
		}
	})

	oauthRPC := func(fn func(ctx context.Context, req oauthRPCRequest) oauth.RPCResult) jobqueue.JobFunc {
		return func(ctx context.Context, payload json.RawMessage) (jobqueue.Outcome, string, string) {
			var req oauthRPCRequest
			if err := json.Unmarshal(payload, &req); err != nil {
				return jobqueue.Failed, "", err.Error()
			}
			res := fn(ctx, req)
			body, err := json.Marshal(res)
			if err != nil {
				return jobqueue.Failed, "", err.Error()
			}
			switch {
			case res.StatusCode >= 500:
				return jobqueue.Retry, string(body), fmt.Sprintf("status %d", res.StatusCode)
			case res.StatusCode >= 400:
				return jobqueue.Failed, string(body), fmt.Sprintf("status %d", res.StatusCode)
			default:
				return jobqueue.Success, string(body), ""
			}
		}
	}

	s.jobWorker.Register("oauth_list_galleries", oauthRPC(func(ctx context.Context, req oauthRPCRequest) oauth.RPCResult {
		return s.oauthServer.RPCListGalleries(req.ClientID, req.UserID)
	}))
	s.jobWorker.Register("oauth_list_gallery_images", oauthRPC(func(ctx context.Context, req oauthRPCRequest) oauth.RPCResult {
		return s.oauthServer.RPCListGalleryImages(req.ClientID, req.UserID, req.Limit, req.Offset)
	}))
	s.jobWorker.Register("oauth_delete_gallery", oauthRPC(func(ctx context.Context, req oauthRPCRequest) oauth.RPCResult {
		galleryID, _ := strconv.ParseUint(req.firstID(), 10, 32)
		return s.oauthServer.RPCDeleteGallery(req.ClientID, req.UserID, uint(galleryID))
	}))
	s.jobWorker.Register("oauth_delete_picture", oauthRPC(func(ctx context.Context, req oauthRPCRequest) oauth.RPCResult {
		deleter := func(uuid string) error { return s.uploadService.Delete(ctx, uuid) }
		return s.oauthServer.RPCDeletePicture(req.ClientID, req.UserID, req.firstID(), deleter)
	}))
}

// oauthRPCRequest is the shared payload shape for the oauth_* job kinds:
// {ids, client_id, user_id, limit?, offset?}.
type oauthRPCRequest struct {
	IDs      []string `json:"ids"`
	ClientID string   `json:"client_id"`
	UserID   uint     `json:"user_id"`
	Limit    int      `json:"limit"`
	Offset   int      `json:"offset"`
}

func (r oauthRPCRequest) firstID() string {
	if len(r.IDs) == 0 {
		return ""
	}
	return r.IDs[0]
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Store environment in locals for use in utility functions (like error responses)
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("env", s.config.Env)
		return c.Next()
	})

	// Panic recovery
	app.Use(recover.New())

	// Tracing (OTEL)
	app.Use(middleware.TracingMiddleware())

	// Request ID for tracing
	app.Use(requestid.New())

	// Context Middleware to propagate Request ID and User ID
	app.Use(middleware.ContextMiddleware())

	// Prometheus Metrics
	if s.promMiddleware != nil {
		app.Use(s.promMiddleware.Middleware)
	}

	// Security headers
	app.Use(helmet.New())

	// Structured Logging middleware (after requestid and context middleware)
	app.Use(middleware.StructuredLogger())

	// CORS middleware should run before middlewares that can short-circuit (e.g. limiter)
	// so browser clients still receive CORS headers on error responses.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	// Global rate limiting (100 requests per minute per IP); disabled in development/test/stress so workflows are not throttled.
	if s.config.Env != "development" && s.config.Env != "test" && s.config.Env != "stress" {
		app.Use(limiter.New(limiter.Config{
			Max:        100,
			Expiration: 1 * time.Minute,
			// Never rate-limit preflight requests; they should be handled by CORS.
			Next: func(c *fiber.Ctx) bool {
				return c.Method() == fiber.MethodOptions
			},
			KeyGenerator: func(c *fiber.Ctx) string {
				return c.IP()
			},
			LimitReached: func(c *fiber.Ctx) error {
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
					"error": "Too many requests, please try again later.",
				})
			},
		}))
	}
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	api := app.Group("/api")

	// Health checks
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)
	api.Get("/", s.HealthCheck)

	// Metrics endpoint for Prometheus
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}
	api.Get("/metrics/dashboard", monitor.New(monitor.Config{
		Title: "PlayHub Backend Metrics Dashboard",
	}))

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/signup", middleware.RateLimitWithPolicy(
		s.redis, 3, 10*time.Minute, middleware.FailClosed, "signup"), s.Signup)
	auth.Post("/login", middleware.RateLimitWithPolicy(
		s.redis, 10, 5*time.Minute, middleware.FailClosed, "login"), s.Login)
	auth.Post("/refresh", s.Refresh)
	auth.Post("/logout", s.AuthRequired(), s.Logout)

	// Public upload serving
	uploads := api.Group("/uploads")
	uploads.Get("/:uuid/:variant?", s.ServeUpload)

	// Protected routes
	protected := api.Group("", s.AuthRequired())

	// User routes
	users := protected.Group("/users")
	users.Get("/me", s.GetMyProfile)
	users.Put("/me", s.UpdateMyProfile)
	users.Get("/search", s.SearchUsers)
	users.Get("/", s.GetAllUsers)
	users.Post("/:id/promote-admin", s.AdminRequired(), s.PromoteToAdmin)
	users.Post("/:id/demote-admin", s.AdminRequired(), s.DemoteFromAdmin)
	users.Get("/:id", s.GetUserProfile)

	// WebSocket ticket issuance
	api.Post("/ws/ticket", s.AuthRequired(), s.IssueWSTicket)

	// Uploads (protected ingest)
	protected.Post("/uploads", s.UploadFile)
	protected.Delete("/uploads/:uuid", s.DeleteUpload)
	chunked := protected.Group("/uploads/chunked")
	chunked.Post("/", s.StartChunkedUpload)
	chunked.Put("/:session_id/:index", s.PutChunk)
	chunked.Post("/:session_id/complete", s.CompleteChunkedUpload)
	protected.Patch("/admin/uploads/:uuid/metadata", s.AdminRequired(), s.MigrateUploadMetadata)

	// Board game routes (teacher's original synchronous two-player games)
	games := protected.Group("/games")
	games.Post("/rooms", s.CreateGameRoom)
	games.Get("/rooms/active", s.GetActiveGameRooms)
	games.Post("/rooms/:id/leave", s.LeaveGameRoom)
	games.Get("/stats/:type", s.GetGameStats)
	games.Get("/rooms/:id", s.GetGameRoom)

	// Competitions
	competitions := protected.Group("/competitions")
	competitions.Get("/:id/entries", s.ListCompetitionEntries)
	competitions.Post("/:id/entries", s.SubmitCompetitionEntry)
	competitions.Post("/:id/finalize", s.FinalizeCompetition)
	competitions.Post("/entries/:entryId/like", s.LikeCompetitionEntry)
	competitions.Post("/entries/:entryId/admin-vote", s.AdminVoteCompetitionEntry)

	// OAuth authorization-code + PKCE flow
	oauthGroup := api.Group("/oauth")
	oauthGroup.Get("/authorize", s.AuthRequired(), s.oauthServer.Authorize)
	oauthGroup.Post("/consent", s.AuthRequired(), s.oauthServer.Consent)
	oauthGroup.Post("/token", s.oauthServer.Token)
	oauthGroup.Post("/revoke", s.oauthServer.Revoke)
	oauthGroup.Post("/products/enable", s.AuthRequired(), s.oauthServer.EnableProduct)
	oauthGroup.Post("/products/disable", s.AuthRequired(), s.oauthServer.DisableProduct)
	oauthGroup.Post("/scopes/revoke", s.AuthRequired(), s.oauthServer.RevokeScope)
	oauthGalleries := oauthGroup.Group("/galleries")
	oauthGalleries.Get("/", s.oauthServer.ScopeRequired("galleries.read"), s.oauthServer.ListGalleries)
	oauthGalleries.Post("/", s.oauthServer.ScopeRequired("galleries.write"), s.oauthServer.CreateGallery)
	oauthGalleries.Delete("/:id", s.oauthServer.ScopeRequired("galleries.delete"), s.oauthServer.DeleteGallery)

	// Websocket endpoints - protected by AuthRequired
	ws := api.Group("/ws", s.AuthRequired())
	ws.Get("/", s.WebsocketHandler())           // General notifications
	ws.Get("/game", s.WebSocketGameHandler())   // Two-player board games
	ws.Get("/lobby", s.WebSocketLobbyHandler()) // Multiplayer lobby engine
}

// HealthCheck is a legacy/simple alias for ReadinessCheck
func (s *Server) HealthCheck(c *fiber.Ctx) error {
	return s.ReadinessCheck(c)
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	} else {
		redisStatus = "unavailable"
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" || redisStatus != "healthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"message": "PlayHub",
		"version": "1.0.0",
		"status":  overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// AdminRequired returns middleware that rejects non-admin users with 403.
// Must be placed after AuthRequired so that userID is available in locals.
func (s *Server) AdminRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals("userID").(uint)

		admin, err := s.isAdmin(c, userID)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusInternalServerError, err)
		}
		if !admin {
			return models.RespondWithError(c, fiber.StatusForbidden,
				models.NewUnauthorizedError("Admin access required"))
		}

		return c.Next()
	}
}

// AuthRequired returns the authentication middleware
func (s *Server) AuthRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		path := c.Path()
		isWSPath := strings.HasPrefix(path, "/api/ws")

		// 1. Try WebSocket ticket first (short-lived, single-use). On WS paths
		// we only peek the ticket (Get, not GetDel) so Fiber's two-pass
		// upgrade handshake can validate it twice; the handler consumes it
		// explicitly via consumeWSTicket once the connection is established.
		// Non-WS requests consume it immediately via atomic GETDEL.
		ticket := c.Query("ticket")
		if ticket != "" && s.redis != nil {
			key := fmt.Sprintf("ws_ticket:%s", ticket)

			var userID uint
			var ticketValid bool

			var userIDStr string
			var err error
			if isWSPath {
				userIDStr, err = s.redis.Get(c.Context(), key).Result()
			} else {
				userIDStr, err = s.redis.GetDel(c.Context(), key).Result()
			}
			if err == nil {
				parsed, parseErr := strconv.ParseUint(userIDStr, 10, 32)
				if parseErr == nil {
					userID = uint(parsed)
					ticketValid = true
					log.Printf("[WS Auth] Ticket validated for user %d, path=%s", userID, path)
				} else {
					log.Printf("[WS Auth] Ticket found but userID parse failed: %v, path=%s", parseErr, path)
				}
			}

			if ticketValid {
				c.Locals("userID", userID)
				c.Locals("wsTicket", ticket)
				ctx := context.WithValue(c.UserContext(), middleware.UserIDKey, userID)
				c.SetUserContext(ctx)
				banned, berr := s.isBannedByUserID(c.UserContext(), userID)
				if berr != nil {
					return models.RespondWithError(c, fiber.StatusInternalServerError, berr)
				}
				if banned {
					return models.RespondWithError(c, fiber.StatusForbidden,
						models.NewForbiddenError("Account is banned"))
				}
				return c.Next()
			}
			// If ticket was provided but invalid/expired, we fail if it's a WS path
			if isWSPath {
				log.Printf("[WS Auth] Invalid or expired ticket for WebSocket path=%s", path)
				return models.RespondWithError(c, fiber.StatusUnauthorized,
					models.NewUnauthorizedError("Invalid or expired WebSocket ticket"))
			}
		}

		// 2. Fall back to JWT (Bearer token or query param)
		authHeader := c.Get("Authorization")
		tokenString := ""
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				tokenString = parts[1]
			}
		}

		// Reject token in query param for WS routes (must use ticket)
		if tokenString == "" && !isWSPath {
			tokenString = c.Query("token")
		}

		if tokenString == "" {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Authorization required"))
		}

		// Parse and validate token
		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
			// Validate signing method
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fiber.NewError(fiber.StatusUnauthorized, "Invalid signing method")
			}
			return []byte(s.config.JWTSecret), nil
		})

		if err != nil || !token.Valid {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid or expired token"))
		}

		// Extract claims
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid token claims"))
		}

		// Validate issuer and audience
		if issuer, issuerOk := claims["iss"].(string); !issuerOk || issuer != "playhub-api" {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid token issuer"))
		}
		if audience, audienceOk := claims["aud"].(string); !audienceOk || audience != "playhub-client" {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid token audience"))
		}

		// Extract user ID from subject claim
		sub, ok := claims["sub"].(string)
		if !ok {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid subject claim"))
		}

		userID, err := strconv.ParseUint(sub, 10, 32)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid user ID in token"))
		}

		// Check JTI for revocation
		if jti, exists := claims["jti"].(string); exists && jti != "" {
			if s.redis != nil {
				isBlacklisted, err := s.redis.Exists(c.Context(), "blacklist:"+jti).Result()
				if err == nil && isBlacklisted > 0 {
					return models.RespondWithError(c, fiber.StatusUnauthorized,
						models.NewUnauthorizedError("Token has been revoked"))
				}
			}
		}

		// Store user ID in context
		c.Locals("userID", uint(userID))
		// Sync to UserContext for logging and downstream services
		ctx := context.WithValue(c.UserContext(), middleware.UserIDKey, uint(userID))
		c.SetUserContext(ctx)
		banned, berr := s.isBannedByUserID(c.UserContext(), uint(userID))
		if berr != nil {
			return models.RespondWithError(c, fiber.StatusInternalServerError, berr)
		}
		if banned {
			return models.RespondWithError(c, fiber.StatusForbidden,
				models.NewForbiddenError("Account is banned"))
		}

		return c.Next()
	}
}

// consumeWSTicket deletes a WebSocket ticket from Redis once the connection it
// authorized has actually been established. WS-path requests only peek the
// ticket during AuthRequired (to survive Fiber's two-pass upgrade handshake),
// so the handler must consume it explicitly after the upgrade succeeds.
func (s *Server) consumeWSTicket(ctx context.Context, ticketVal any) {
	if ticketVal == nil || s.redis == nil {
		return
	}
	ticket, ok := ticketVal.(string)
	if !ok || ticket == "" {
		return
	}
	if err := s.redis.Del(ctx, fmt.Sprintf("ws_ticket:%s", ticket)).Err(); err != nil {
		log.Printf("failed to consume ws ticket: %v", err)
	}
}

// optionalUserID attempts to extract userID from Authorization header but does not enforce it.
func (s *Server) optionalUserID(c *fiber.Ctx) (uint, bool) {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return 0, false
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return 0, false
	}

	tokenString := parts[1]
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fiber.NewError(fiber.StatusUnauthorized, "Invalid signing method")
		}
		return []byte(s.config.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return 0, false
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, false
	}

	sub, ok := claims["sub"].(string)
	if !ok {
		return 0, false
	}
	userID, err := strconv.ParseUint(sub, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint(userID), true
}

// Start starts the server
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	app := fiber.New(fiber.Config{
		AppName: "PlayHub API",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Default status code
			code := fiber.StatusInternalServerError

			// If it's a fiber.Error, use its status code
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}

			// Log the error
			log.Printf("Error [%d]: %v", code, err)

			return models.RespondWithError(c, code, err)
		},
	})
	s.app = app

	s.SetupMiddleware(app)
	s.SetupRoutes(app)

	go s.jobWorker.Run(s.shutdownCtx)
	go s.sweepLobbyDisconnects(s.shutdownCtx)
	go s.purgeExpiredUploadSessions(s.shutdownCtx)

	// Wire all hubs to Redis subscriber if available
	if s.notifier != nil {
		for _, h := range s.hubs {
			h := h
			go func() {
				if err := h.StartWiring(s.shutdownCtx, s.notifier); err != nil {
					log.Printf("failed to start %s wiring: %v", h.Name(), err)
				}
			}()
		}
	}

	log.Printf("Server starting on port %s...", s.config.Port)
	return app.Listen(":" + s.config.Port)
}

// sweepLobbyDisconnects periodically clears disconnect grace windows that
// have expired, auto-deselecting any player who never reconnected.
func (s *Server) sweepLobbyDisconnects(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.lobbyHandler.SweepExpiredDisconnects(ctx); err != nil {
				log.Printf("lobby disconnect sweep failed: %v", err)
			}
		}
	}
}

// purgeExpiredUploadSessions periodically reaps chunked-upload sessions
// whose TTL elapsed without completion.
func (s *Server) purgeExpiredUploadSessions(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.uploadService.PurgeExpiredSessions(ctx); err != nil {
				log.Printf("upload session purge failed: %v", err)
			}
		}
	}
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	// Cancel the server-scoped context to stop all wiring goroutines
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	// Shutdown the HTTP/WS server
	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			log.Printf("error shutting down HTTP server: %v", err)
		}
	}

	// Close WebSocket connections gracefully
	for _, h := range s.hubs {
		if err := h.Shutdown(ctx); err != nil {
			log.Printf("error shutting down %s: %v", h.Name(), err)
		}
	}

	// Close database connection
	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			log.Printf("error closing sql DB: %v", cerr)
		}
	}

	// Close Redis connection
	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			log.Printf("error closing redis: %v", rerr)
		}
	}

	log.Println("Server shutdown complete")
	return nil
}
