package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/techtuto2024/techtuto-backend/internal/auth"
	"github.com/techtuto2024/techtuto-backend/internal/config"
	"github.com/techtuto2024/techtuto-backend/internal/directory"
	"github.com/techtuto2024/techtuto-backend/internal/metrics"
	"github.com/techtuto2024/techtuto-backend/internal/model"
	"github.com/techtuto2024/techtuto-backend/internal/notify"
	"github.com/techtuto2024/techtuto-backend/internal/payment"
	"github.com/techtuto2024/techtuto-backend/internal/schedule"
)

type Payments interface {
	CreateOrder(ctx context.Context, order payment.OrderRequest) (string, error)
	VerifyCallback(orderID, paymentID, signature string) bool
}

type Avatars interface {
	Save(ctx context.Context, data []byte) (model.Avatar, error)
	Delete(ctx context.Context, avatar model.Avatar) error
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the handlers call into. All are required
// except Avatars, which disables multipart uploads when nil.
type Deps struct {
	Directory *directory.Directory
	Schedule  *schedule.Service
	Mailer    notify.Mailer
	Renderer  *notify.Renderer
	Payments  Payments
	Avatars   Avatars
	Store     Pinger
	Logger    *slog.Logger
}

type Server struct {
	cfg      config.Config
	deps     Deps
	issuer   *auth.Issuer
	delivery auth.DeliveryMode
	cookies  auth.CookieOptions
	logger   *slog.Logger
}

func NewServer(cfg config.Config, deps Deps) (*Server, error) {
	issuer, err := auth.NewIssuer(cfg.JWTSecret, cfg.JWTIssuer, cfg.SessionTTL)
	if err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:      cfg,
		deps:     deps,
		issuer:   issuer,
		delivery: auth.ParseDeliveryMode(cfg.SessionDelivery),
		cookies:  auth.CookieOptions{Secure: cfg.CookieSecure},
		logger:   logger,
	}, nil
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())
	if dir := s.cfg.AvatarDir; dir != "" {
		r.Handle("/avatars/*", http.StripPrefix("/avatars/", http.FileServer(http.Dir(dir))))
	}

	timeout := s.cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(timeout))
		s.routes(r)
		r.Route("/api/v1/user", s.routes)
	})
	return r
}

func (s *Server) routes(r chi.Router) {
	r.Post("/register", handle(s.logger, s.handleRegister))
	r.Post("/signup", handle(s.logger, s.handleRegister))
	r.Post("/login", handle(s.logger, s.handleLogin))
	r.Delete("/logout", handle(s.logger, s.handleLogout))
	r.With(s.authMiddleware).Get("/currentuser", handle(s.logger, s.handleCurrentUser))
	r.With(s.authMiddleware).Get("/verifytoken", handle(s.logger, s.handleVerifyToken))
	r.With(s.authMiddleware, s.requireRole(model.RoleManager)).Post("/sendClassDetails", handle(s.logger, s.handleSendClassDetails))
	r.Post("/requestResetPassword", handle(s.logger, s.handleRequestPasswordReset))
	r.Put("/resetPassword/{token}", handle(s.logger, s.handleResetPassword))
	r.Get("/classdetails", handle(s.logger, s.handleClassDetails))
	r.Post("/createorder", handle(s.logger, s.handleCreateOrder))
	r.Post("/verifypayment", handle(s.logger, s.handleVerifyPayment))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Store.Ping(ctx); err != nil {
			s.logger.Warn("health check failed", slog.Any("err", err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
