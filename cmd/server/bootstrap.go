package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/authcore/internal/api"
	"github.com/charlesng35/authcore/internal/app"
	"github.com/charlesng35/authcore/internal/app/maintenance"
	iauth "github.com/charlesng35/authcore/internal/auth"
	"github.com/charlesng35/authcore/internal/database"
	"github.com/charlesng35/authcore/internal/database/migrate"
	"github.com/charlesng35/authcore/internal/monitoring"
	"github.com/charlesng35/authcore/internal/monitoring/checks"
	"github.com/charlesng35/authcore/internal/permissions"
	"github.com/charlesng35/authcore/pkg/logger"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB      *gorm.DB
	Pool    *pgxpool.Pool
	Store   iauth.SessionStore
	Rotator *iauth.SessionRotator
	Health  *monitoring.HealthManager
	Tracker *monitoring.JobTracker
	Cleaner *maintenance.Cleaner
	Router  *gin.Engine
}

// bootstrapRuntime initialises the database, session store, auth services and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mod
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	env, err := cfg.ParsedEnvironment()
	if err != nil {
		return nil, err
	}

	defaults, err := permissions.DefaultRoleTable()
	if err != nil {
		return nil, fmt.Errorf("build role table: %w", err)
	}

	stack.DB, err = initialiseDatabase(ctx, cfg, permissions.Seeder(defaults))
	if err != nil {
		return nil, err
	}

	table, err := permissions.LoadRoleTable(ctx, stack.DB, permissions.DefaultCatalog())
	if err != nil {
		return nil, fmt.Errorf("load role table: %w", err)
	}

	stack.Store, stack.Pool, err = initialiseSessionStore(ctx, cfg, stack.DB)
	if err != nil {
		return nil, err
	}

	codecCfg, err := cfg.Auth.TokenCodecConfig(nil)
	if err != nil {
		return nil, err
	}
	codec, err := iauth.NewTokenCodec(codecCfg)
	if err != nil {
		return nil, fmt.Errorf("initialise token codec: %w", err)
	}

	hasher, err := cfg.Auth.RefreshHasher()
	if err != nil {
		return nil, fmt.Errorf("initialise refresh hasher: %w", err)
	}

	resolver, err := permissions.NewResolver(table, nil)
	if err != nil {
		return nil, fmt.Errorf("initialise permission resolver: %w", err)
	}
	roles := permissions.NewGormAssignmentReader(stack.DB)
	checker, err := permissions.NewChecker(roles, resolver)
	if err != nil {
		return nil, fmt.Errorf("initialise permission checker: %w", err)
	}

	stack.Rotator, err = iauth.NewSessionRotator(codec, stack.Store, hasher,
		iauth.NewGormSubjectLoader(stack.DB, checker), cfg.Auth.RotatorConfig(nil))
	if err != nil {
		return nil, fmt.Errorf("initialise session rotator: %w", err)
	}

	stack.Tracker = monitoring.NewJobTracker(nil)
	stack.Health = monitoring.NewHealthManager(cfg.Monitoring.Health.Timeout)
	stack.Health.RegisterLiveness(monitoring.NewCheck("process", func(context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{Status: monitoring.StatusUp}
	}))
	stack.Health.RegisterReadiness(checks.Database(stack.DB))
	if stack.Pool != nil {
		stack.Health.RegisterReadiness(checks.Pool(stack.Pool))
	}

	if cfg.Maintenance.Enabled {
		stack.Cleaner = maintenance.NewCleaner(stack.Store,
			maintenance.WithRoleJanitor(roles),
			maintenance.WithTracker(stack.Tracker),
			maintenance.WithSessionRetention(cfg.Maintenance.SessionRetention),
			maintenance.WithSessionSchedule(cfg.Maintenance.SessionSchedule),
			maintenance.WithRoleSchedule(cfg.Maintenance.RoleSchedule),
		)
		if err := stack.Cleaner.Start(); err != nil {
			return nil, fmt.Errorf("start maintenance jobs: %w", err)
		}
		stack.Health.RegisterReadiness(checks.Maintenance(stack.Tracker, cfg.Maintenance.StaleAfter))
	}

	stack.Router, err = api.NewRouter(api.Dependencies{
		Config:   cfg,
		Codec:    codec,
		Rotator:  stack.Rotator,
		Policy:   iauth.NewCookiePolicy(cfg.Auth.CookiePolicyConfig(env)),
		Guard:    iauth.NewCSRFGuard(),
		Resolver: resolver,
		Checker:  checker,
		Health:   stack.Health,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	log.Info("runtime ready",
		zap.String("environment", string(env)),
		zap.String("session_store", sessionStoreName(cfg)),
		zap.Bool("csrf", cfg.Auth.CSRF.Enabled),
		zap.Bool("maintenance", cfg.Maintenance.Enabled),
	)

	success = true
	return stack, nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		select {
		case <-s.Cleaner.Stop().Done():
		case <-ctx.Done():
		}
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	if s.Pool != nil {
		s.Pool.Close()
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

// initialiseDatabase opens the gorm handle. With the pgx session store the schema is owned by
// the embedded SQL migrations, otherwise gorm migrates it.
func initialiseDatabase(ctx context.Context, cfg *app.Config, seeders ...database.Seeder) (*gorm.DB, error) {
	dbCfg := convertDatabaseConfig(cfg)

	if sessionStoreName(cfg) == app.StorePgx {
		dsn, err := database.PostgresURL(dbCfg)
		if err != nil {
			return nil, fmt.Errorf("resolve migration dsn: %w", err)
		}
		if err := migrate.Run(dsn, migrate.Up); err != nil {
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
	}

	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if sessionStoreName(cfg) == app.StorePgx {
		err = database.Seed(ctx, db, seeders...)
	} else {
		err = database.AutoMigrateAndSeed(ctx, db, seeders...)
	}
	if err != nil {
		closeDatabase(db, logger.WithModule("database"))
		return nil, fmt.Errorf("prepare database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", dbCfg.Driver))

	return db, nil
}

func initialiseSessionStore(ctx context.Context, cfg *app.Config, db *gorm.DB) (iauth.SessionStore, *pgxpool.Pool, error) {
	if sessionStoreName(cfg) != app.StorePgx {
		return iauth.NewGormSessionStore(db), nil, nil
	}

	dbCfg := convertDatabaseConfig(cfg)
	dsn, err := database.PostgresURL(dbCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve session store dsn: %w", err)
	}
	dbCfg.DSN = dsn

	pool, err := database.OpenPool(ctx, dbCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open session store pool: %w", err)
	}
	return iauth.NewPostgresSessionStore(pool), pool, nil
}

func sessionStoreName(cfg *app.Config) string {
	store := strings.ToLower(strings.TrimSpace(cfg.Auth.Session.Store))
	if store == "" {
		return app.StoreGorm
	}
	return store
}

func convertDatabaseConfig(cfg *app.Config) database.Config {
	dbCfg := database.Config{
		Driver:          strings.ToLower(strings.TrimSpace(cfg.Database.Driver)),
		Path:            strings.TrimSpace(cfg.Database.Path),
		DSN:             strings.TrimSpace(cfg.Database.DSN),
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}

	switch dbCfg.Driver {
	case "", "sqlite":
		dbCfg.Driver = "sqlite"
	case "postgres", "postgresql":
		dbCfg.Driver = "postgres"
		dbCfg.Host = strings.TrimSpace(cfg.Database.Postgres.Host)
		dbCfg.Port = cfg.Database.Postgres.Port
		dbCfg.Name = strings.TrimSpace(cfg.Database.Postgres.Database)
		dbCfg.User = strings.TrimSpace(cfg.Database.Postgres.Username)
		dbCfg.Password = strings.TrimSpace(cfg.Database.Postgres.Password)
	case "mysql":
		dbCfg.Host = strings.TrimSpace(cfg.Database.MySQL.Host)
		dbCfg.Port = cfg.Database.MySQL.Port
		dbCfg.Name = strings.TrimSpace(cfg.Database.MySQL.Database)
		dbCfg.User = strings.TrimSpace(cfg.Database.MySQL.Username)
		dbCfg.Password = strings.TrimSpace(cfg.Database.MySQL.Password)
	default:
		// Leave driver as-is to surface unsupported driver error during open.
	}

	return dbCfg
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
