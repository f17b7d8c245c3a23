package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	cron "github.com/robfig/cron/v3"
	"github.com/rs/cors"

	"github.com/TOOL2U/Application---Property-Management--sub002/internal/app"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/config"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/constants"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/controllers"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/metrics"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/utils"
)

func main() {
	utils.InitLogger(appName())
	cfg := config.LoadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	application, err := app.Connect(ctx, cfg, nil)
	if err != nil {
		utils.Logger.Fatal("Failed to initialize jobsync-service: ", err)
	}
	defer application.Close()

	eng := application.Engine

	c := cron.New()
	_, expireErr := c.AddFunc(constants.ExpireOffersSchedule, func() {
		sweepCtx, cancel := context.WithTimeout(context.Background(), constants.SweepTimeout)
		defer cancel()
		if _, e := eng.ExpireOffers(sweepCtx); e != nil {
			utils.Logger.WithError(e).Error("Offer expiry sweep failed")
		}
	})
	if expireErr != nil {
		utils.Logger.WithError(expireErr).Fatal("Failed to schedule offer expiry cron")
	}
	_, relocateErr := c.AddFunc(constants.RelocateCompletedSchedule, func() {
		sweepCtx, cancel := context.WithTimeout(context.Background(), constants.SweepTimeout)
		defer cancel()
		if _, e := eng.RelocateCompleted(sweepCtx); e != nil {
			utils.Logger.WithError(e).Error("Completed-job relocation sweep failed")
		}
	})
	if relocateErr != nil {
		utils.Logger.WithError(relocateErr).Fatal("Failed to schedule relocation cron")
	}
	c.Start()
	defer c.Stop()

	router := controllers.NewRouter(eng, application, cfg.RSAPublicKey, metrics.Handler())

	allowedOrigins := []string{}
	if cfg.AppUrl != "" {
		allowedOrigins = append(allowedOrigins, cfg.AppUrl)
	}
	if !cfg.LDFlag_CORSHighSecurity {
		allowedOrigins = append(allowedOrigins, utils.CORSLowSecurityAllowedOriginLocalhost)
	}

	co := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "Last-Event-ID"},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           co.Handler(router),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		utils.Logger.Info("Shutdown signal received, stopping HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	utils.Logger.Infof("Starting %s on port: %s", cfg.AppName, cfg.AppPort)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		utils.Logger.Fatal("jobsync-service failed to start: ", err)
	}
}

func appName() string {
	if config.AppName != "" {
		return config.AppName
	}
	return config.DefaultAppName
}
