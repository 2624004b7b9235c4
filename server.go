package main

import (
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/datadrive/analysis-backend/internal"
	"github.com/datadrive/analysis-backend/internal/analysis"
	"github.com/datadrive/analysis-backend/internal/config"
	"github.com/datadrive/analysis-backend/internal/dispatch"
	"github.com/datadrive/analysis-backend/internal/provider"
	"github.com/datadrive/analysis-backend/internal/store"
)

// maxFiles bounds how many data files one session may hold.
const maxFiles = 50

type server struct {
	store      *store.SessionStore
	dispatcher *dispatch.Dispatcher
	provider   provider.CompletionProvider
	logger     *zap.Logger
	corsOrigin string
}

func newServer(cfg config.Config, s *store.SessionStore, p provider.CompletionProvider, logger *zap.Logger) *server {
	return &server{
		store:      s,
		dispatcher: dispatch.NewDispatcher(s, p, logger),
		provider:   p,
		logger:     logger,
		corsOrigin: cfg.CORSOrigin,
	}
}

func (s *server) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLog())
	r.Use(s.cors())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "time": time.Now().Format(time.RFC3339)})
	})
	r.GET("/api/model", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"model": s.provider.Model()})
	})

	r.GET("/api/messages", s.listMessages)
	r.POST("/api/query", s.submitQuery)
	r.POST("/api/reset", s.resetChat)

	r.GET("/api/files", s.listFiles)
	r.POST("/api/files", s.uploadFile)
	r.DELETE("/api/files/:id", s.removeFile)
	r.PUT("/api/files/:id/activate", s.activateFile)

	r.GET("/api/config", s.getConfig)
	r.PATCH("/api/config", s.patchConfig)

	r.POST("/api/ai-analysis", s.aiAnalysis)
	return r
}

func (s *server) cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", s.corsOrigin)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "*")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)))
	}
}

func (s *server) listMessages(c *gin.Context) {
	c.JSON(http.StatusOK, internal.ChatHistory{Messages: s.store.Messages()})
}

func (s *server) submitQuery(c *gin.Context) {
	var req internal.QueryRequest
	if err := c.BindJSON(&req); err != nil || req.Query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}
	reply, err := s.dispatcher.SubmitQuery(c.Request.Context(), req.Query)
	switch {
	case errors.Is(err, dispatch.ErrNoActiveFile):
		c.JSON(http.StatusBadRequest, gin.H{"error": "select a data file first"})
		return
	case errors.Is(err, dispatch.ErrQueryInFlight):
		c.JSON(http.StatusConflict, gin.H{"error": "a query is already in flight"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, internal.QueryResponse{Reply: reply, Model: s.provider.Model()})
}

func (s *server) resetChat(c *gin.Context) {
	s.store.ClearChat()
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *server) listFiles(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"files": s.store.Files()})
}

func (s *server) uploadFile(c *gin.Context) {
	var req internal.UploadFileRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid or empty JSON"})
		return
	}
	if req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}
	if len(s.store.Files()) >= maxFiles {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file limit reached", "max": maxFiles})
		return
	}

	columns, rows := req.Columns, req.Rows
	size := len(req.Text)
	if len(rows) == 0 && req.Text != "" {
		var err error
		columns, rows, err = analysis.ParseCSV(req.Text)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if len(rows) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "rows or text is required"})
		return
	}
	if len(columns) == 0 {
		columns = columnsFromRows(rows)
	}

	file := internal.DataFile{
		ID:         uuid.NewString(),
		Name:       req.Name,
		Size:       size,
		Columns:    columns,
		Rows:       rows,
		UploadedAt: time.Now(),
		Summary:    analysis.Summarize(columns, rows),
	}
	s.store.AddFile(file)
	s.logger.Info("file uploaded",
		zap.String("name", file.Name),
		zap.Int("rows", len(file.Rows)))
	c.JSON(http.StatusOK, internal.UploadFileResponse{File: file, Total: len(s.store.Files())})
}

func (s *server) removeFile(c *gin.Context) {
	s.store.RemoveFile(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"total": len(s.store.Files())})
}

func (s *server) activateFile(c *gin.Context) {
	s.store.SetActiveFile(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *server) getConfig(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.Config())
}

func (s *server) patchConfig(c *gin.Context) {
	var patch internal.ConfigPatch
	if err := c.BindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid or empty JSON"})
		return
	}
	c.JSON(http.StatusOK, s.store.SetConfig(patch))
}

// aiAnalysis is the stateless analysis endpoint: the caller supplies the
// file payload inline, nothing is written to the session.
func (s *server) aiAnalysis(c *gin.Context) {
	var req internal.AnalysisRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid or empty JSON"})
		return
	}
	if req.Query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}
	if req.FileData == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "fileData is required"})
		return
	}

	fd := req.FileData
	summary := fd.Summary
	if summary == nil {
		summary = analysis.Summarize(fd.Columns, fd.Data)
	}
	sample := fd.Data
	if len(sample) > analysis.SampleRows {
		sample = sample[:analysis.SampleRows]
	}
	fileCtx := analysis.FileContext{
		Name:     fd.Name,
		Columns:  fd.Columns,
		RowCount: len(fd.Data),
		Sample:   sample,
		Summary:  summary,
	}

	cfg := internal.DefaultConfig()
	if v := req.Settings.ConfidenceLevel; v != nil {
		cfg.ConfidenceLevel = *v
	}
	if v := req.Settings.ForecastPeriods; v != nil {
		cfg.ForecastHorizon = *v
	}
	if v := req.Settings.IncludeSeasonality; v != nil {
		cfg.IncludeSeasonality = *v
	}

	prompt := analysis.BuildPrompt(req.Query, fileCtx, req.Context, cfg)
	raw, err := s.provider.Complete(c.Request.Context(), analysis.SystemPrompt, prompt)
	if err != nil {
		s.logger.Error("analysis completion failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "analysis request failed"})
		return
	}

	interp := analysis.Interpret(raw)
	c.JSON(http.StatusOK, internal.AnalysisResponse{
		Response:  interp.Content,
		Analysis:  interp.Analysis,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// columnsFromRows recovers a column list when the upload carries pre-parsed
// rows without one. Row maps have no order, so the result is sorted.
func columnsFromRows(rows []map[string]any) []string {
	seen := make(map[string]bool)
	for _, row := range rows {
		for k := range row {
			seen[k] = true
		}
	}
	columns := make([]string, 0, len(seen))
	for k := range seen {
		columns = append(columns, k)
	}
	sort.Strings(columns)
	return columns
}
