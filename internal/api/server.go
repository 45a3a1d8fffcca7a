// Package api exposes the scan engine over a small HTTP surface: start a
// scan, poll its status, request cancellation, and read the contact
// snapshot a completed scan produced.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/inboxgraph/inboxgraph/internal/auth"
	"github.com/inboxgraph/inboxgraph/internal/model"
	"github.com/inboxgraph/inboxgraph/internal/scanner"
)

// ClientProvider exchanges a stored refresh token for a mail client.
type ClientProvider interface {
	GetMailClient(ctx context.Context, refreshToken string) (*auth.MailClient, error)
}

// ContactStore is the snapshot slice of the persistence layer the API
// reads and writes.
type ContactStore interface {
	MergeContactSnapshot(ctx context.Context, snapshot model.ContactSnapshot) error
	GetContactSnapshot(ctx context.Context, accountEmail string) (*model.ContactSnapshot, error)
}

// Server wires the scan engine, its backends, and the snapshot store into
// HTTP handlers.
type Server struct {
	engine   *scanner.Engine
	backends map[scanner.Kind]scanner.Scanner
	contacts ContactStore
	clients  ClientProvider
	log      *slog.Logger
}

// NewServer creates the API server with its injected collaborators.
func NewServer(
	engine *scanner.Engine,
	backends map[scanner.Kind]scanner.Scanner,
	contacts ContactStore,
	clients ClientProvider,
	log *slog.Logger,
) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		engine:   engine,
		backends: backends,
		contacts: contacts,
		clients:  clients,
		log:      log,
	}
}

// Router builds the gin engine with middleware and routes attached.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(RequestID())
	router.Use(Recovery(s.log))
	router.Use(RequestLogger(s.log))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	apiGroup := router.Group("/api")
	{
		apiGroup.POST("/scan/start", s.StartScan)
		apiGroup.GET("/scan/status/:id", s.ScanStatus)
		apiGroup.POST("/scan/stop/:id", s.StopScan)
		apiGroup.GET("/contacts/:account", s.Contacts)
	}

	return router
}

// startScanRequest selects a backend and tuning for a new scan. Either a
// refresh token (exchanged for a mail client) or an access token plus
// account email must be supplied.
type startScanRequest struct {
	Kind         string `json:"kind" binding:"required"`
	Preset       string `json:"preset"`
	RefreshToken string `json:"refresh_token"`
	AccessToken  string `json:"access_token"`
	AccountEmail string `json:"account_email"`

	BatchSize             *int  `json:"batch_size"`
	MaxMessages           *int  `json:"max_messages"`
	DelayBetweenBatchesMS *int  `json:"delay_between_batches_ms"`
	UsePersistence        *bool `json:"use_persistence"`
}

// StartScan accepts a scan request, registers a pending job, and launches
// the scan loop in the background. The response only acknowledges
// acceptance; the outcome is observed by polling the status endpoint.
func (s *Server) StartScan(c *gin.Context) {
	var req startScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	backend, ok := s.backends[scanner.Kind(req.Kind)]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown scanner kind: " + req.Kind})
		return
	}

	cfg, err := scanner.PresetConfig(backend.Kind(), req.Preset)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cfg = cfg.Apply(overridesFromRequest(req))

	client, err := s.resolveClient(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	jobID := uuid.New().String()
	s.engine.Jobs().Update(jobID, model.JobUpdate{})

	go s.runScan(jobID, client, backend, cfg)

	c.JSON(http.StatusAccepted, gin.H{
		"job_id":  jobID,
		"account": client.AccountEmail,
		"kind":    req.Kind,
		"state":   model.JobStatePending,
	})
}

// runScan drives one scan to completion and folds the result into the
// account's contact snapshot. It runs detached from the request context;
// cancellation flows through the job registry.
func (s *Server) runScan(
	jobID string,
	client *auth.MailClient,
	backend scanner.Scanner,
	cfg scanner.Config,
) {
	ctx := context.Background()

	result, err := s.engine.ScanAsync(ctx, client, jobID, backend, cfg)
	if err != nil {
		// ScanAsync already marked the job failed and logged the error.
		return
	}

	err = s.contacts.MergeContactSnapshot(ctx, model.ContactSnapshot{
		AccountEmail:       client.AccountEmail,
		Senders:            result.Senders,
		Recipients:         result.Recipients,
		Merged:             result.Merged,
		MessageSampleCount: result.Scanned,
	})
	if err != nil {
		s.log.Error("merging contact snapshot failed",
			"job_id", jobID, "account", client.AccountEmail, "err", err)
	}
}

// ScanStatus returns the current job record.
func (s *Server) ScanStatus(c *gin.Context) {
	job, ok := s.engine.Jobs().Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown job id"})
		return
	}
	c.JSON(http.StatusOK, jobResponse(job))
}

// StopScan marks a job cancelled. The scan loop observes the state at the
// top of its next iteration; whatever was scanned so far is kept.
func (s *Server) StopScan(c *gin.Context) {
	jobID := c.Param("id")
	if _, ok := s.engine.Jobs().Get(jobID); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown job id"})
		return
	}

	state := model.JobStateCancelled
	job := s.engine.Jobs().Update(jobID, model.JobUpdate{State: &state})
	c.JSON(http.StatusOK, jobResponse(job))
}

// Contacts returns the stored contact snapshot for an account.
func (s *Server) Contacts(c *gin.Context) {
	account := c.Param("account")

	snap, err := s.contacts.GetContactSnapshot(c.Request.Context(), account)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if snap == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no contact snapshot for " + account})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"account":              snap.AccountEmail,
		"senders":              snap.Senders,
		"recipients":           snap.Recipients,
		"merged":               snap.Merged,
		"message_sample_count": snap.MessageSampleCount,
		"updated_at":           snap.UpdatedAt,
	})
}

func (s *Server) resolveClient(ctx context.Context, req startScanRequest) (*auth.MailClient, error) {
	if req.RefreshToken != "" && s.clients != nil {
		return s.clients.GetMailClient(ctx, req.RefreshToken)
	}
	if req.AccessToken != "" && req.AccountEmail != "" {
		return auth.NewStaticMailClient(req.AccountEmail, req.AccessToken), nil
	}
	return nil, errMissingCredentials
}

var errMissingCredentials = &credentialsError{}

type credentialsError struct{}

func (*credentialsError) Error() string {
	return "either refresh_token or access_token with account_email is required"
}

func overridesFromRequest(req startScanRequest) scanner.Overrides {
	o := scanner.Overrides{
		BatchSize:      req.BatchSize,
		MaxMessages:    req.MaxMessages,
		UsePersistence: req.UsePersistence,
	}
	if req.DelayBetweenBatchesMS != nil {
		d := time.Duration(*req.DelayBetweenBatchesMS) * time.Millisecond
		o.DelayBetweenBatches = &d
	}
	return o
}

func jobResponse(job model.ScanJob) gin.H {
	resp := gin.H{
		"job_id":             job.ID,
		"state":              job.State,
		"processed_messages": job.ProcessedMessages,
		"percent_complete":   job.PercentComplete,
		"contacts_found":     job.ContactsFound,
		"message":            job.Message,
		"created_at":         job.CreatedAt,
	}
	if job.StartedAt != nil {
		resp["started_at"] = job.StartedAt
	}
	if job.Error != "" {
		resp["error"] = job.Error
	}
	return resp
}
