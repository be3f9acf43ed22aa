package app

import (
	"context"
	"fmt"

	"github.com/shopauth/shopauth/config"
	"github.com/shopauth/shopauth/middleware"
	"github.com/shopauth/shopauth/repositories"
	"github.com/shopauth/shopauth/repositories/postgres"
	"github.com/shopauth/shopauth/services"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB
	Logger *zap.Logger

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Users     repositories.UserRepository
	Shops     repositories.ShopRepository
	TxManager repositories.TransactionManager

	// Services
	TokenService *services.TokenService
	AuthService  *services.AuthService
	ShopService  *services.ShopService

	// Middleware
	AuthMiddleware *middleware.AuthMiddleware
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := deps.initRepositories(); err != nil {
		return nil, fmt.Errorf("failed to initialize repositories: %w", err)
	}

	if err := deps.initServices(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initDatabase initializes the PostgreSQL connection, factory and schema
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	factory, err := postgres.NewRepositoryFactory(cfg, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}

	d.RepoFactory = factory
	d.DB = factory.GetDB()

	if err := d.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	if err := d.DB.InitSchema(ctx); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	d.Logger.Info("database connection established",
		zap.String("connection", cfg.Database.LogString()))

	return nil
}

// initRepositories initializes all repository instances
func (d *Dependencies) initRepositories() error {
	repos := d.RepoFactory.NewRepositories()

	d.Users = repos.Users
	d.Shops = repos.Shops
	d.TxManager = d.RepoFactory.GetTransactionManager()

	d.Logger.Info("repositories initialized")
	return nil
}

// initServices initializes domain services and auth middleware
func (d *Dependencies) initServices(cfg *config.Config) error {
	tokenService, err := services.NewTokenService(cfg.Auth)
	if err != nil {
		return fmt.Errorf("failed to create token service: %w", err)
	}

	d.TokenService = tokenService
	d.AuthService = services.NewAuthService(d.Users, d.Shops, d.TxManager, tokenService, cfg.Auth.BCryptCost, d.Logger)
	d.ShopService = services.NewShopService(d.Shops, d.Users, d.Logger)
	d.AuthMiddleware = middleware.NewAuthMiddleware(tokenService, d.Users, d.Logger)

	d.Logger.Info("services initialized")
	return nil
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
