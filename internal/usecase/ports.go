package usecase

import (
	"context"

	"github.com/qrave1/LiveRoom/internal/domain"
)

// CredentialService - внешний сервис выдачи кредов на комнату
type CredentialService interface {
	RequestCredential(ctx context.Context, userID, roomID string) (domain.RoomCredential, error)
}

// Transport - клиентская сторона конференц-бэкенда.
//
// OnEvent регистрируется один раз за жизнь менеджера. Обработчик не должен
// вызываться под внутренними локами транспорта.
type Transport interface {
	OnEvent(handler func(domain.RoomEvent))

	Connect(ctx context.Context, serverURL, token string) error
	Disconnect(ctx context.Context) error

	LocalPeer() domain.Peer
	RemotePeers() []domain.Peer

	Publish(ctx context.Context, track domain.MediaTrack) error
	Unpublish(ctx context.Context, trackID string) error
	UpdateTrackState(ctx context.Context, trackID string, muted bool) error

	// SendData returns domain.ErrDataChannelUnavailable when the transport cannot carry data.
	SendData(ctx context.Context, payload []byte) error
}

// DeviceProvider - доступ к микрофону, камере и захвату экрана.
// Может ждать пользователя (окно разрешений) сколько угодно, поэтому принимает ctx.
type DeviceProvider interface {
	UserMedia(ctx context.Context, constraints domain.MediaConstraints) (*domain.MediaStream, error)
	DisplayMedia(ctx context.Context, constraints domain.DisplayConstraints) (*domain.MediaStream, error)
}
