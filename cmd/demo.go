package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/qrave1/LiveRoom/internal/application/constant"
	"github.com/qrave1/LiveRoom/internal/domain"
	"github.com/qrave1/LiveRoom/internal/infra/adapters/credential"
	"github.com/qrave1/LiveRoom/internal/infra/adapters/memory"
	"github.com/qrave1/LiveRoom/internal/usecase"
)

// startDemoPeers заводит в комнату в памяти студентов со своими сессиями.
// Они слушаются команд модератора так же, как настоящий клиент.
func startDemoPeers(
	ctx context.Context,
	hub *memory.RoomHub,
	credentials *credential.LocalService,
	roomID string,
	n int,
) []usecase.SessionUsecase {
	bots := make([]usecase.SessionUsecase, 0, n)

	for i := range n {
		userID := fmt.Sprintf("demo-student-%d", i+1)
		credentials.SetProfile(userID, credential.Profile{
			Name: fmt.Sprintf("Student %d", i+1),
			Role: domain.RoleStudent,
		})

		flagsRepo := memory.NewModerationFlagsRepository()
		conn := usecase.NewConnectionUsecase(credentials, memory.NewTransport(hub), flagsRepo)
		media := usecase.NewMediaUsecase(memory.NewDevices())
		moderation := usecase.NewModerationUsecase(conn, flagsRepo, media)
		bot := usecase.NewSessionUsecase(usecase.SessionParams{UserID: userID, RoomID: roomID}, conn, media, moderation)

		if err := bot.Join(ctx); err != nil {
			slog.Error("demo peer join", slog.String(constant.UserID, userID), slog.Any(constant.Error, err))
			_ = bot.Close(ctx)
			continue
		}

		// Бот сразу говорит, чтобы было кого мьютить
		if _, err := media.RequestMicrophoneAccess(ctx); err == nil {
			media.ToggleMicrophone()
		}

		bots = append(bots, bot)
	}

	slog.Info("demo peers joined", slog.String(constant.RoomID, roomID), slog.Int(constant.Count, len(bots)))

	return bots
}
