// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/blockso/blockso/internal/importer"
	"github.com/blockso/blockso/internal/models"
	"github.com/blockso/blockso/internal/types"
	"github.com/gorilla/mux"
)

// Service interfaces for dependency injection and testing

// ProfileServiceInterface defines the profile operations the server needs
type ProfileServiceInterface interface {
	GetOrCreate(ctx context.Context, address string) (*models.Profile, error)
	GetByAddress(ctx context.Context, address string) (*models.Profile, error)
	RecordLogin(ctx context.Context, address string) (*models.Profile, error)
	WatchedAddresses(ctx context.Context) ([]string, error)
}

// PostServiceInterface defines the post operations the server needs
type PostServiceInterface interface {
	Create(ctx context.Context, post *models.Post) error
	GetByID(ctx context.Context, id int64) (*models.Post, error)
	ListByAuthor(ctx context.Context, authorID int64, limit, offset int) ([]*models.Post, error)
	ListFeed(ctx context.Context, profileID int64, limit, offset int) ([]*models.Post, error)
	CountByRefTx(ctx context.Context, txID int64) (int, error)
}

// NotificationServiceInterface defines the notification operations the server needs
type NotificationServiceInterface interface {
	ListByProfile(ctx context.Context, profileID int64, limit, offset int) ([]*models.Notification, error)
	UnviewedCount(ctx context.Context, profileID int64) (int, error)
	MarkViewed(ctx context.Context, id string, profileID int64) error
}

// ActivityProcessorInterface handles webhook activity batches
type ActivityProcessorInterface interface {
	ProcessBatch(ctx context.Context, items []importer.ActivityItem) int
}

// HistoryGateInterface gates and enqueues history fetches
type HistoryGateInterface interface {
	ShouldFetch(ctx context.Context, address string) (bool, error)
	EnqueueIfNeeded(ctx context.Context, address string, limit int) (bool, error)
	Status(ctx context.Context, address string) (types.JobStatus, error)
}

// WebhookSyncerInterface pushes the watchlist to the notification provider
type WebhookSyncerInterface interface {
	UpdateWebhookAddresses(ctx context.Context, addresses []string) error
}

// Server represents the HTTP API server.
type Server struct {
	router        *mux.Router
	httpServer    *http.Server
	profiles      ProfileServiceInterface
	posts         PostServiceInterface
	notifications NotificationServiceInterface
	activity      ActivityProcessorInterface
	gate          HistoryGateInterface
	webhookSync   WebhookSyncerInterface
	signingKey    string
	config        *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RequestsPerSec  int
	// HistoryLimit bounds how many transactions a triggered import pulls
	HistoryLimit int
}

// NewServer creates a new API server instance.
func NewServer(
	config *ServerConfig,
	profiles ProfileServiceInterface,
	posts PostServiceInterface,
	notifications NotificationServiceInterface,
	activity ActivityProcessorInterface,
	gate HistoryGateInterface,
	webhookSync WebhookSyncerInterface,
	signingKey string,
) *Server {
	s := &Server{
		router:        mux.NewRouter(),
		profiles:      profiles,
		posts:         posts,
		notifications: notifications,
		activity:      activity,
		gate:          gate,
		webhookSync:   webhookSync,
		signingKey:    signingKey,
		config:        config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.RequestsPerSec)

	// Middleware order matters
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)
	s.router.Use(RateLimitMiddleware(rateLimiter))
	s.router.Use(CompressionMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()

	// Profile endpoints
	api.HandleFunc("/profiles/{address}", s.handleGetProfile).Methods("GET")
	api.HandleFunc("/profiles/{address}/login", s.handleLogin).Methods("POST")
	api.HandleFunc("/profiles/{address}/posts", s.handleListPosts).Methods("GET")
	api.HandleFunc("/profiles/{address}/feed", s.handleGetFeed).Methods("GET")
	api.HandleFunc("/profiles/{address}/notifications", s.handleListNotifications).Methods("GET")
	api.HandleFunc("/profiles/{address}/notifications/{id}/viewed", s.handleMarkNotificationViewed).Methods("PUT")

	// Post endpoints
	api.HandleFunc("/posts", s.handleCreatePost).Methods("POST")
	api.HandleFunc("/posts/{id}", s.handleGetPost).Methods("GET")

	// History import trigger and status
	api.HandleFunc("/history/{address}", s.handleTriggerHistory).Methods("POST")
	api.HandleFunc("/history/{address}", s.handleHistoryStatus).Methods("GET")

	// Alchemy Notify webhook endpoint
	s.router.HandleFunc("/webhooks/alchemy", s.handleAlchemyWebhook).Methods("POST")
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "blockso",
	})
}

// Router exposes the configured router, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	log.Printf("Starting API server on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down API server...")
	return s.httpServer.Shutdown(ctx)
}
