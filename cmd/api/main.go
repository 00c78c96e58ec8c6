// Command api serves the site administration API: memberships, invitations, goals, funnels
// and feature toggles.
//
// @title Analytics Admin API
// @version 1.0
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"analyticsadmin/config"
	"analyticsadmin/internal/adapters/auth"
	"analyticsadmin/internal/adapters/email"
	"analyticsadmin/internal/adapters/events"
	httpdelivery "analyticsadmin/internal/delivery/http"
	"analyticsadmin/internal/delivery/http/controllers"
	"analyticsadmin/internal/repository/postgres"
	"analyticsadmin/internal/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	logger := config.NewLogger(cfg)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("postgres", cfg.DBUrl)
	if err != nil {
		return err
	}
	defer db.Close()

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ContextTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return err
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		return err
	}
	logger.Info("database ready")

	mailer, err := email.NewMailer(email.MailerConfig{
		Provider:    cfg.Email.Provider,
		FromAddress: cfg.Email.FromAddress,
		FromName:    cfg.Email.FromName,
		SES: email.SESConfig{
			Region:             cfg.Email.AWSRegion,
			AccessKeyID:        cfg.Email.AWSAccessKeyID,
			SecretAccessKey:    cfg.Email.AWSSecretAccessKey,
			InsecureSkipVerify: cfg.Email.SESInsecureSkipVerify,
		},
		SendGrid: email.SendGridConfig{APIKey: cfg.Email.SendGridAPIKey},
	}, logger)
	if err != nil {
		return err
	}
	renderer, err := email.NewTemplateRenderer()
	if err != nil {
		return err
	}
	publisher := events.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Error("failed to close event publisher", "err", err)
		}
	}()

	// Repositories
	txManager := postgres.NewTxManager(db)
	userRepo := postgres.NewUserRepository(db)
	siteRepo := postgres.NewSiteRepository(db)
	membershipRepo := postgres.NewMembershipRepository(db)
	invitationRepo := postgres.NewInvitationRepository(db)
	subscriptionRepo := postgres.NewSubscriptionRepository(db)
	goalRepo := postgres.NewGoalRepository(db)
	funnelRepo := postgres.NewFunnelRepository(db)

	// Services
	timeout := cfg.ContextTimeout
	emailService := services.NewEmailService(mailer, renderer, logger)
	billing := services.NewBillingService(subscriptionRepo, cfg.Selfhost)
	siteLocker := services.NewSiteLocker(siteRepo, userRepo, billing, emailService, logger)
	access := services.NewSiteAccess(membershipRepo, timeout)
	membershipService := services.NewMembershipService(txManager, membershipRepo, invitationRepo, userRepo, siteRepo,
		billing, siteLocker, emailService, publisher, logger, timeout)
	goalService := services.NewGoalService(txManager, goalRepo, funnelRepo, siteRepo, membershipRepo, userRepo,
		billing, publisher, logger, timeout)
	funnelService := services.NewFunnelService(txManager, funnelRepo, goalRepo, siteRepo, membershipRepo, userRepo,
		billing, timeout)
	featureService := services.NewFeatureService(txManager, siteRepo, membershipRepo, userRepo, billing, timeout)

	router := httpdelivery.NewRouter(httpdelivery.Controllers{
		Memberships: controllers.NewMembershipController(logger, membershipService, access, cfg.Selfhost),
		Goals:       controllers.NewGoalController(logger, goalService, access),
		Funnels:     controllers.NewFunnelController(logger, funnelService, access),
		Features:    controllers.NewFeatureController(logger, featureService, access),
	}, httpdelivery.RouterConfig{
		Verifier:       auth.NewJWTVerifier(cfg.JWTSecret),
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "port", cfg.Port, "selfhost", cfg.Selfhost)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
