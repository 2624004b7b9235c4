package main

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/datadrive/analysis-backend/internal"
	"github.com/datadrive/analysis-backend/internal/analysis"
	"github.com/datadrive/analysis-backend/internal/config"
	"github.com/datadrive/analysis-backend/internal/provider"
	"github.com/datadrive/analysis-backend/internal/store"
)

func newLogger(level string) *zap.Logger {
	lvl := zapcore.InfoLevel
	if parsed, err := zapcore.ParseLevel(level); err == nil {
		lvl = parsed
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// newProvider picks the completion provider from config, falling back to the
// offline mock when credentials are missing so the service stays usable in
// development.
func newProvider(cfg config.Config, logger *zap.Logger) provider.CompletionProvider {
	switch cfg.LLMProvider {
	case config.ProviderAnthropic:
		p, err := provider.NewAnthropicProvider(cfg.APIKey, cfg.BaseURL, cfg.Model)
		if err == nil {
			return p
		}
		logger.Warn("anthropic provider unavailable, using mock", zap.Error(err))
	case config.ProviderOpenAI:
		p, err := provider.NewOpenAIProvider(cfg.APIKey, cfg.BaseURL, cfg.Model)
		if err == nil {
			return p
		}
		logger.Warn("openai provider unavailable, using mock", zap.Error(err))
	case config.ProviderMock:
	default:
		logger.Warn("unknown LLM provider, using mock", zap.String("provider", cfg.LLMProvider))
	}
	return provider.MockProvider{}
}

// preloadSeedCSVs loads .csv files from dir into the session at startup so a
// fresh instance has data to analyze. Returns the number of files added.
func preloadSeedCSVs(dir string, s *store.SessionStore, logger *zap.Logger) int {
	if dir == "" {
		return 0
	}
	if st, err := os.Stat(dir); err != nil || !st.IsDir() {
		return 0
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Warn("seed dir unreadable", zap.String("dir", dir), zap.Error(err))
		return 0
	}

	added := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".csv") {
			continue
		}
		if len(s.Files()) >= maxFiles {
			break
		}
		path := filepath.Join(dir, e.Name())
		b, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("seed file unreadable", zap.String("path", path), zap.Error(err))
			continue
		}
		columns, rows, err := analysis.ParseCSV(string(b))
		if err != nil {
			logger.Warn("seed file skipped", zap.String("path", path), zap.Error(err))
			continue
		}
		s.AddFile(internal.DataFile{
			ID:         uuid.NewString(),
			Name:       e.Name(),
			Size:       len(b),
			Columns:    columns,
			Rows:       rows,
			UploadedAt: time.Now(),
			Summary:    analysis.Summarize(columns, rows),
		})
		added++
	}
	if added > 0 {
		logger.Info("seed files loaded", zap.Int("count", added), zap.String("dir", dir))
	}
	return added
}

func main() {
	cfg := config.Load()
	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()

	sessionStore := store.NewSessionStore()
	sessionStore.AddMessage(internal.Message{
		Role:    internal.RoleAssistant,
		Content: "Hi! Upload a data file and ask me anything about it.",
	})
	preloadSeedCSVs(cfg.SeedDir, sessionStore, logger)

	chat := newProvider(cfg, logger)
	logger.Info("starting analysis backend",
		zap.String("port", cfg.Port),
		zap.String("model", chat.Model()))

	srv := newServer(cfg, sessionStore, chat, logger)
	if err := srv.router().Run(":" + cfg.Port); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}
