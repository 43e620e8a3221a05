package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"lexplain/backend/internal/ai"
	"lexplain/backend/internal/analysis"
	"lexplain/backend/internal/extract"
	"lexplain/backend/internal/store"
	"lexplain/backend/internal/summary"
)

const defaultMaxJobs = 4

// Config defines server dependencies.
type Config struct {
	DB             *store.Database
	Pipeline       *analysis.Pipeline
	Extractor      extract.Extractor
	Guard          *ai.Guard
	AllowedOrigins []string
	MaxUploadBytes int
	// MaxJobs bounds concurrently running asynchronous jobs.
	MaxJobs   int
	AIEnabled bool
	CacheKind string
}

// Server wires HTTP handlers with the analysis pipeline and persistence.
type Server struct {
	db             *store.Database
	pipeline       *analysis.Pipeline
	extractor      extract.Extractor
	guard          *ai.Guard
	allowedOrigins []string
	maxUpload      int
	maxJobs        int
	aiEnabled      bool
	cacheKind      string
	notifier       *JobNotifier

	jobMu  sync.Mutex
	jobs   map[string]*analysisJob
	jobsWG sync.WaitGroup
}

// NewServer constructs the API server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.DB == nil {
		return nil, errors.New("database required")
	}
	if cfg.Pipeline == nil {
		return nil, errors.New("pipeline required")
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = extract.DefaultMaxBytes
	}
	extractor := cfg.Extractor
	if extractor == nil {
		extractor = extract.NewService(maxUpload)
	}
	maxJobs := cfg.MaxJobs
	if maxJobs <= 0 {
		maxJobs = defaultMaxJobs
	}
	return &Server{
		db:             cfg.DB,
		pipeline:       cfg.Pipeline,
		extractor:      extractor,
		guard:          cfg.Guard,
		allowedOrigins: cfg.AllowedOrigins,
		maxUpload:      maxUpload,
		maxJobs:        maxJobs,
		aiEnabled:      cfg.AIEnabled,
		cacheKind:      cfg.CacheKind,
		notifier:       NewJobNotifier(),
		jobs:           make(map[string]*analysisJob),
	}, nil
}

// Router configures gin routes.
func (s *Server) Router() *gin.Engine {
	r := gin.Default()

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowCredentials = true
	if len(s.allowedOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = s.allowedOrigins
	}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	corsCfg.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	r.Use(cors.New(corsCfg))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/api/healthz", s.handleHealth)
	r.GET("/api/config", s.handleConfig)

	api := r.Group("/api")
	{
		api.POST("/analyze", s.handleAnalyze)
		api.POST("/documents", s.handleAnalyze)
		api.GET("/documents", s.handleListDocuments)
		api.GET("/documents/:id", s.handleGetDocument)
		api.POST("/jobs", s.handleStartJob)
		api.GET("/jobs", s.handleListJobs)
		api.GET("/jobs/stream", s.handleJobStream)
		api.GET("/jobs/:id", s.handleGetJob)
		api.DELETE("/jobs/:id", s.handleCancelJob)
	}
	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok", "ai_breaker": s.guard.State()}
	if err := s.db.Ping(); err != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
		body["database"] = err.Error()
	}
	c.JSON(status, body)
}

func (s *Server) handleConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ai_enabled":       s.aiEnabled,
		"cache":            s.cacheKind,
		"max_upload_bytes": s.maxUpload,
		"max_jobs":         s.maxJobs,
		"mime_types": []string{
			extract.MimePlain, extract.MimeMarkdown, extract.MimeHTML, extract.MimeXHTML, extract.MimeDOCX,
		},
		"summary_sections": summary.Sections,
	})
}

func (s *Server) handleJobStream(c *gin.Context) {
	upgrader := websocket.Upgrader{
		HandshakeTimeout:  5 * time.Second,
		EnableCompression: true,
		CheckOrigin: func(r *http.Request) bool {
			if len(s.allowedOrigins) == 0 {
				return true
			}
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			for _, allowed := range s.allowedOrigins {
				if strings.EqualFold(origin, allowed) {
					return true
				}
			}
			return false
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Warn("upgrade websocket")
		return
	}

	client := s.notifier.Register(conn)
	remote := conn.RemoteAddr().String()
	logrus.WithField("remote", remote).Info("job websocket connected")
	defer s.notifier.Unregister(client)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logrus.WithError(err).WithField("remote", remote).Warn("job websocket unexpected close")
			} else {
				logrus.WithField("remote", remote).Info("job websocket closed")
			}
			return
		}
	}
}

func (s *Server) renderError(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"error": err.Error()})
}

func queryInt(c *gin.Context, key string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(c.Query(key)))
	if err != nil {
		return fallback
	}
	return v
}
