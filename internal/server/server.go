// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/reaktivstudios/external-purchase-api/internal/auditlog"
	"github.com/reaktivstudios/external-purchase-api/internal/catalog"
	"github.com/reaktivstudios/external-purchase-api/internal/config"
	"github.com/reaktivstudios/external-purchase-api/internal/directory"
	"github.com/reaktivstudios/external-purchase-api/internal/download"
	"github.com/reaktivstudios/external-purchase-api/internal/idgen"
	"github.com/reaktivstudios/external-purchase-api/internal/ledger"
	"github.com/reaktivstudios/external-purchase-api/internal/logging"
	"github.com/reaktivstudios/external-purchase-api/internal/mail"
	"github.com/reaktivstudios/external-purchase-api/internal/purchase"
	"github.com/reaktivstudios/external-purchase-api/internal/traces"
	"github.com/reaktivstudios/external-purchase-api/internal/whitelist"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg     *config.Config
	service *purchase.Service
	signer  *download.Signer
	db      *sql.DB // nil if using in-memory
	router  *gin.Engine
	httpSrv *http.Server
	logger  *slog.Logger

	shutdownTracer func(context.Context) error

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}

	for _, opt := range opts {
		opt(s)
	}

	// Storage backends (Postgres if DATABASE_URL set, otherwise in-memory)
	var (
		dirStore directory.Store
		catStore catalog.Store
		payStore ledger.Store
		logStore auditlog.Store
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		s.db = db
		dirStore = directory.NewPostgresStore(db)
		catStore = catalog.NewPostgresStore(db)
		payStore = ledger.NewPostgresStore(db)
		logStore = auditlog.NewPostgresStore(db)
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))
	} else {
		dirStore = directory.NewMemoryStore()
		catStore = catalog.NewMemoryStore()
		payStore = ledger.NewMemoryStore()
		logStore = auditlog.NewMemoryStore()
		s.logger.Warn("DATABASE_URL not set, using in-memory storage (data is lost on restart)")
	}

	dir := directory.New(dirStore)
	cat := catalog.New(catStore)
	led := ledger.New(payStore)
	audit := auditlog.New(logStore, cfg.AuditLogEnabled)
	guard := whitelist.NewGuard(cfg.WhitelistEnforce, cfg.Whitelist)
	s.signer = download.NewSigner(cfg.StoreURL, cfg.DownloadSecret, cfg.DownloadTTL)

	var mailer mail.Mailer
	if cfg.SMTPAddr != "" {
		mailer = mail.NewSMTPMailer(cfg.SMTPAddr, cfg.SMTPUser, cfg.SMTPPassword, cfg.MailFrom)
	} else {
		s.logger.Warn("SMTP_ADDR not set, outbound mail disabled")
		mailer = mail.NoopMailer{}
	}
	notifier := mail.NewNotifier(mailer, cfg.StoreName, cfg.AdminEmail, cfg.RefundNoticeEmail)

	validator := purchase.NewValidator(dir, guard, cat, led, cfg.RequireSSL)
	s.service = purchase.NewService(validator, dir, cat, led, audit, notifier, s.signer, cfg.Currency)

	s.setupRouter()
	s.healthy.Store(true)

	return s, nil
}

func (s *Server) setupRouter() {
	if s.cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestContext())

	// Health and observability
	r.GET("/healthz", s.handleHealthz)
	r.GET("/readyz", s.handleReadyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// The API endpoint. POST form fields are canonical; query parameters
	// are accepted as a fallback for legacy callers.
	r.POST("/edd-external-purchase", s.handleTransaction)
	r.GET("/edd-external-purchase", s.handleTransaction)

	// Signed download link verification
	r.GET("/download", s.handleDownload)

	s.router = r
}

// requestContext threads a request id and the server logger through the
// request's context so every layer logs with the same correlation id.
func (s *Server) requestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" {
			reqID = idgen.New()
		}
		ctx := logging.WithLogger(c.Request.Context(), s.logger)
		ctx = logging.WithRequestID(ctx, reqID)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Request-ID", reqID)
		c.Next()
	}
}

// handleTransaction is the single API boundary. Whatever happens inside,
// the response is HTTP 200 with a JSON body; logical failure travels in
// the success flag and error_code. Integrators depend on this contract.
func (s *Server) handleTransaction(c *gin.Context) {
	field := func(name string) string {
		if v := c.PostForm(name); v != "" {
			return v
		}
		return c.Query(name)
	}

	params := purchase.Params{
		TransType:  field("trans_type"),
		Key:        field("key"),
		Token:      field("token"),
		ProductID:  field("product_id"),
		PaymentID:  field("payment_id"),
		Price:      field("price"),
		FirstName:  field("first_name"),
		LastName:   field("last_name"),
		Email:      field("email"),
		SourceName: field("source_name"),
		SourceURL:  field("source_url"),
		Receipt:    field("receipt"),
		Date:       field("date"),
		Secure:     requestIsSecure(c),
	}

	resp := s.service.Process(c.Request.Context(), params)

	c.Header("Content-Type", "application/json; charset=utf-8")
	c.JSON(http.StatusOK, resp)
}

// requestIsSecure checks TLS directly or via the proxy's forwarded proto.
func requestIsSecure(c *gin.Context) bool {
	if c.Request.TLS != nil {
		return true
	}
	return strings.EqualFold(c.GetHeader("X-Forwarded-Proto"), "https")
}

// handleDownload verifies a signed link minted by the manifest builder.
// On success the file is handed off to the front proxy via
// X-Accel-Redirect; this service never streams file bytes itself.
func (s *Server) handleDownload(c *gin.Context) {
	key := c.Query("key")
	file := c.Query("file")
	expires, err := parseInt64(c.Query("expires"))
	sig := c.Query("sig")

	if err != nil || key == "" || file == "" || sig == "" ||
		!s.signer.Verify(key, file, expires, sig, time.Now()) {
		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"message": "The download link is invalid or has expired.",
		})
		return
	}

	c.Header("X-Accel-Redirect", "/protected/"+file)
	c.Status(http.StatusOK)
}

func parseInt64(s string) (int64, error) {
	var n int64
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}

func (s *Server) handleHealthz(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleReadyz(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
		return
	}
	if s.db != nil {
		if err := s.db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "database unreachable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// Run starts the server and blocks until shutdown
func (s *Server) Run(ctx context.Context) error {
	shutdownTracer, err := traces.Init(ctx, s.cfg.OTLPEndpoint, s.logger)
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	s.shutdownTracer = shutdownTracer

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	s.ready.Store(true)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if s.shutdownTracer != nil {
		if err := s.shutdownTracer(ctx); err != nil {
			s.logger.Warn("tracer shutdown failed", "error", err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Warn("database close failed", "error", err)
		}
	}
	s.logger.Info("server stopped")
	return nil
}

// Router exposes the gin engine (used by tests)
func (s *Server) Router() http.Handler {
	return s.router
}

// maskDSN hides credentials in a connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.User("***")
	}
	return u.String()
}
