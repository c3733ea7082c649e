package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"

	"github.com/ent0n29/financeai/internal/accounts"
	"github.com/ent0n29/financeai/internal/assistant"
	"github.com/ent0n29/financeai/internal/chat"
	"github.com/ent0n29/financeai/internal/config"
	"github.com/ent0n29/financeai/internal/finance"
	"github.com/ent0n29/financeai/internal/httpapi"
	"github.com/ent0n29/financeai/internal/memory"
	"github.com/ent0n29/financeai/internal/observability"
	"github.com/ent0n29/financeai/internal/profiles"
	"github.com/ent0n29/financeai/internal/session"
)

type BuildResult struct {
	Config    config.Config
	API       *httpapi.Server
	Sessions  *session.Manager
	Chat      *chat.Service
	Metrics   *observability.Metrics
	StoreMode string

	// Cleanup should be called on shutdown to release external resources.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*BuildResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	provider, err := finance.NewProvider(finance.ProviderConfig{
		Mode:    cfg.FinanceProviderMode,
		URL:     cfg.FinanceProviderURL,
		Timeout: cfg.FinanceProviderTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("finance provider init failed: %w", err)
	}
	brain, err := assistant.NewBrain(assistant.BrainConfig{
		Mode:    cfg.AssistantBrain,
		URL:     cfg.AssistantHTTPURL,
		APIKey:  cfg.AssistantAPIKey,
		Model:   cfg.AssistantModel,
		Timeout: cfg.AssistantTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("assistant brain init failed: %w", err)
	}

	var closers []func() error
	cleanup := func() error {
		var errs []string
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				errs = append(errs, err.Error())
			}
		}
		if len(errs) > 0 {
			return errors.New(strings.Join(errs, "; "))
		}
		return nil
	}

	stateStore, err := memory.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("session state store init failed: %w", err)
	}
	closers = append(closers, stateStore.Close)

	accountStore, err := accounts.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		_ = cleanup()
		return nil, fmt.Errorf("account store init failed: %w", err)
	}
	closers = append(closers, accountStore.Close)

	profileStore, err := profiles.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		_ = cleanup()
		return nil, fmt.Errorf("profile store init failed: %w", err)
	}
	closers = append(closers, profileStore.Close)

	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	chatSvc, err := chat.NewService(chat.Options{
		Sessions:     sessions,
		Store:        stateStore,
		Provider:     provider,
		Engine:       assistant.NewEngine(brain),
		Metrics:      metrics,
		Logger:       logger.With("component", "chat"),
		Tracer:       otel.Tracer("github.com/ent0n29/financeai/internal/chat"),
		HistoryLimit: cfg.ChatHistoryLimit,
	})
	if err != nil {
		_ = cleanup()
		return nil, err
	}
	sessions.SetExpireHook(func(s *session.Session) {
		chatSvc.Forget(s)
		if s.EndReason == session.EndedByInactivity {
			metrics.SessionEvents.WithLabelValues("expired").Inc()
		}
		metrics.ActiveSessions.Set(float64(sessions.ActiveCount()))
	})

	var google *accounts.GoogleLogin
	if cfg.GoogleOAuthEnabled() {
		google = accounts.NewGoogleLogin(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURI)
	}

	storeMode := "in-memory"
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		storeMode = "postgres"
	}

	api := httpapi.New(httpapi.Deps{
		Config:    cfg,
		Sessions:  sessions,
		Chat:      chatSvc,
		Accounts:  accounts.NewService(accountStore),
		Profiles:  profiles.NewService(profileStore),
		Google:    google,
		Metrics:   metrics,
		Logger:    logger.With("component", "http"),
		StoreMode: storeMode,
	})

	return &BuildResult{
		Config:    cfg,
		API:       api,
		Sessions:  sessions,
		Chat:      chatSvc,
		Metrics:   metrics,
		StoreMode: storeMode,
		Cleanup:   cleanup,
	}, nil
}

// Migrate creates every Postgres table the service uses and returns.
func Migrate(ctx context.Context, databaseURL string) error {
	if strings.TrimSpace(databaseURL) == "" {
		return errors.New("DATABASE_URL is required for migrate")
	}
	stateStore, err := memory.NewPostgresStore(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("session state schema: %w", err)
	}
	defer stateStore.Close()
	accountStore, err := accounts.NewPostgresStore(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("accounts schema: %w", err)
	}
	defer accountStore.Close()
	profileStore, err := profiles.NewPostgresStore(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("financial profile schema: %w", err)
	}
	defer profileStore.Close()
	return nil
}
