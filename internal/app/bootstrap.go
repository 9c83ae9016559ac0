package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/odyssey-erp/msbot/internal/access"
	"github.com/odyssey-erp/msbot/internal/handler"
	"github.com/odyssey-erp/msbot/internal/identity"
	"github.com/odyssey-erp/msbot/internal/platform/cache"
	"github.com/odyssey-erp/msbot/internal/platform/db"
	"github.com/odyssey-erp/msbot/internal/rbac"
)

// OpenMedium builds the identity medium selected by STORE_BACKEND. The
// returned func releases any connection the medium holds.
func OpenMedium(ctx context.Context, cfg *Config) (identity.Medium, func(), error) {
	noop := func() {}
	switch cfg.StoreBackend {
	case StoreMemory:
		return identity.NewMemoryMedium(), noop, nil
	case StoreFile, "":
		return identity.NewFileMedium(cfg.StorePath), noop, nil
	case StoreRedis:
		client, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr})
		if err != nil {
			return nil, noop, err
		}
		return identity.NewRedisMedium(client, cfg.StoreKey), func() { _ = client.Close() }, nil
	case StorePostgres:
		pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: 4})
		if err != nil {
			return nil, noop, err
		}
		medium := identity.NewPostgresMedium(pool)
		if err := medium.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, noop, err
		}
		return medium, pool.Close, nil
	}
	return nil, noop, fmt.Errorf("app: unknown store backend %q", cfg.StoreBackend)
}

// OpenStore loads the identity store and seeds the default admin. A load
// failure is fatal so a broken medium is never overwritten by an empty one.
func OpenStore(ctx context.Context, cfg *Config, logger *slog.Logger, opts ...identity.StoreOption) (*identity.Store, func(), error) {
	medium, release, err := OpenMedium(ctx, cfg)
	if err != nil {
		return nil, release, fmt.Errorf("app: open identity medium: %w", err)
	}
	store := identity.NewStore(medium, logger, opts...)
	if err := store.Load(ctx); err != nil {
		release()
		return nil, func() {}, fmt.Errorf("app: load identity store: %w", err)
	}
	seeded, err := store.SeedDefaultAdmin(ctx, identity.Principal{
		ID:      cfg.DefaultAdminUserID,
		Name:    "Default Admin",
		Email:   cfg.DefaultAdminEmail,
		Role:    rbac.RoleAdmin,
		AddedBy: "system",
	})
	if err != nil {
		logger.Warn("default admin not persisted", slog.Any("error", err))
	}
	if !seeded && store.Len() == 0 {
		logger.Warn("identity store is empty and DEFAULT_ADMIN_USER_ID is unset; nobody can use the bot")
	}
	logger.Info("identity store ready",
		slog.String("medium", store.MediumName()),
		slog.Int("principals", store.Len()))
	return store, release, nil
}

// LoadHandlers registers handlers from HANDLERS_FILE, or the built-in
// manifest when no file is configured.
func LoadHandlers(cfg *Config, reg *handler.Registry, opts handler.BuildOptions) error {
	manifest := handler.DefaultManifest()
	if path := strings.TrimSpace(cfg.HandlersFile); path != "" {
		loaded, err := handler.LoadManifest(path)
		if err != nil {
			return err
		}
		manifest = loaded
	}
	return handler.Build(reg, manifest, opts)
}

// StatsReport renders principal and handler counts for the stats handler.
func StatsReport(ctrl *access.Controller, reg *handler.Registry) handler.ReportFunc {
	return func(ctx context.Context) (string, error) {
		stats := ctrl.Stats(ctx)
		var b strings.Builder
		b.WriteString("Bot statistics\n")
		fmt.Fprintf(&b, "Principals: %d\n", stats.TotalPrincipals)
		for _, role := range rbac.Roles() {
			fmt.Fprintf(&b, "  %s: %d\n", role.Title(), stats.PerRole[role])
		}
		fmt.Fprintf(&b, "Active sessions: %d\n", stats.ActiveSessions)
		enabled := 0
		infos := reg.List()
		for _, info := range infos {
			if info.Enabled {
				enabled++
			}
		}
		fmt.Fprintf(&b, "Handlers: %d registered, %d enabled", len(infos), enabled)
		return b.String(), nil
	}
}
