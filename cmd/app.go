package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/qrave1/LiveRoom/internal/application/config"
	"github.com/qrave1/LiveRoom/internal/application/constant"
	"github.com/qrave1/LiveRoom/internal/application/metric"
	"github.com/qrave1/LiveRoom/internal/domain"
	"github.com/qrave1/LiveRoom/internal/infra/adapters/credential"
	"github.com/qrave1/LiveRoom/internal/infra/adapters/device"
	"github.com/qrave1/LiveRoom/internal/infra/adapters/memory"
	"github.com/qrave1/LiveRoom/internal/infra/adapters/signaling"
	"github.com/qrave1/LiveRoom/internal/infra/ports/http/handlers"
	"github.com/qrave1/LiveRoom/internal/infra/ports/http/server"
	"github.com/qrave1/LiveRoom/internal/usecase"
)

func runApp() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.New()
	if err != nil {
		slog.Error("parse config", slog.Any(constant.Error, err))
		os.Exit(1)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}

	slog.SetDefault(
		slog.New(
			slog.NewJSONHandler(
				os.Stdout,
				&slog.HandlerOptions{Level: level},
			),
		),
	)

	slog.Info(
		"Running app",
		slog.Bool("debug", cfg.Debug),
		slog.String("transport", cfg.Transport),
		slog.String(constant.UserID, cfg.Session.UserID),
		slog.String(constant.RoomID, cfg.Session.RoomID),
	)

	role, _ := domain.ParseRole(cfg.Session.Role)

	var (
		credentials usecase.CredentialService
		transport   usecase.Transport
		hub         *memory.RoomHub
		issuer      *credential.Issuer
		local       *credential.LocalService
	)

	if cfg.Credential.DevSecret != "" {
		issuer = credential.NewIssuer(cfg.Credential.DevSecret, cfg.Credential.DevServerURL, cfg.Credential.TTL)
		local = credential.NewLocalService(issuer)
		local.SetProfile(cfg.Session.UserID, credential.Profile{Name: cfg.Session.Name, Role: role})
	}

	if cfg.Credential.URL != "" {
		credentials = credential.NewClient(cfg.Credential.URL, cfg.Credential.AuthToken, cfg.Credential.Timeout)
	} else {
		credentials = local
	}

	switch cfg.Transport {
	case config.TransportMemory:
		hub = memory.NewRoomHub(issuer.Grant)
		transport = memory.NewTransport(hub)
	default:
		transport = signaling.NewTransport(cfg.Signaling, cfg.ICEServers)
	}

	flagsRepo := memory.NewModerationFlagsRepository()

	connUsecase := usecase.NewConnectionUsecase(credentials, transport, flagsRepo, usecase.WithLocalRole(role))
	mediaUsecase := usecase.NewMediaUsecase(device.NewProvider(cfg.Devices))
	moderationUsecase := usecase.NewModerationUsecase(connUsecase, flagsRepo, mediaUsecase)
	sessionUsecase := usecase.NewSessionUsecase(
		usecase.SessionParams{UserID: cfg.Session.UserID, RoomID: cfg.Session.RoomID},
		connUsecase,
		mediaUsecase,
		moderationUsecase,
	)

	var bots []usecase.SessionUsecase
	if hub != nil && cfg.Memory.DemoPeers > 0 {
		bots = startDemoPeers(ctx, hub, local, cfg.Session.RoomID, cfg.Memory.DemoPeers)
	}

	sessionHandler := handlers.NewSessionHandler(sessionUsecase)
	mediaHandler := handlers.NewMediaHandler(mediaUsecase)
	moderationHandler := handlers.NewModerationHandler(moderationUsecase)
	iceHandler := handlers.NewIceHandler(cfg)
	wsHandler := handlers.NewRosterWebSocketHandler(cfg, connUsecase)

	echoSrv := server.New(sessionHandler, mediaHandler, moderationHandler, iceHandler, wsHandler)
	metricSrv := metric.NewServer(func() (string, bool) {
		state := connUsecase.State()
		return state.Status.String(), !state.Terminal()
	})

	srvCh := make(chan error, 2)
	go func() {
		srvCh <- echoSrv.Start(":" + cfg.Port)
	}()
	go func() {
		srvCh <- metricSrv.Start(":" + cfg.MetricPort)
	}()

	if cfg.Session.AutoJoin {
		if err := sessionUsecase.Join(ctx); err != nil {
			slog.Error("auto join", slog.Any(constant.Error, err))
		}
	}

	select {
	case <-ctx.Done():
		slog.Info("Shutting down due to context cancel")
	case err := <-srvCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", slog.Any(constant.Error, err))
		}
	}

	timeoutCtx, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer timeoutCancel()

	if err := echoSrv.Shutdown(timeoutCtx); err != nil {
		slog.Error("Failed to gracefully shutdown server", slog.Any(constant.Error, err))
	}

	if err := metricSrv.Shutdown(timeoutCtx); err != nil {
		slog.Error("Failed to shutdown metric server", slog.Any(constant.Error, err))
	}

	if err := sessionUsecase.Close(timeoutCtx); err != nil {
		slog.Error("close session", slog.Any(constant.Error, err))
	}

	for _, bot := range bots {
		if err := bot.Close(timeoutCtx); err != nil {
			slog.Warn("close demo peer", slog.Any(constant.Error, err))
		}
	}
}
