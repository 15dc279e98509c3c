package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/qrave1/LiveRoom/internal/application/constant"
	"github.com/qrave1/LiveRoom/internal/domain"
)

const defaultTrackOpTimeout = 5 * time.Second

// SessionUsecase связывает подключение, устройства и модерацию одного пользователя в одной комнате
type SessionUsecase interface {
	Join(ctx context.Context) error
	Leave(ctx context.Context) error
	Close(ctx context.Context) error
	Snapshot() domain.SessionSnapshot

	Connection() ConnectionUsecase
	Media() MediaUsecase
	Moderation() ModerationUsecase
}

type SessionParams struct {
	UserID string
	RoomID string
}

type sessionUsecase struct {
	params     SessionParams
	conn       ConnectionUsecase
	media      MediaUsecase
	moderation ModerationUsecase
	opTimeout  time.Duration

	mu        sync.Mutex
	lastMuted *bool
}

func NewSessionUsecase(
	params SessionParams,
	conn ConnectionUsecase,
	media MediaUsecase,
	moderation ModerationUsecase,
) SessionUsecase {
	s := &sessionUsecase{
		params:     params,
		conn:       conn,
		media:      media,
		moderation: moderation,
		opTimeout:  defaultTrackOpTimeout,
	}

	media.SetObserver(s)

	return s
}

func (s *sessionUsecase) Connection() ConnectionUsecase {
	return s.conn
}

func (s *sessionUsecase) Media() MediaUsecase {
	return s.media
}

func (s *sessionUsecase) Moderation() ModerationUsecase {
	return s.moderation
}

func (s *sessionUsecase) Join(ctx context.Context) error {
	cred, err := s.conn.RequestCredential(ctx, s.params.UserID, s.params.RoomID)
	if err != nil {
		return fmt.Errorf("request credential: %w", err)
	}

	if err = s.conn.Connect(ctx, cred); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	slog.Info(
		"joined room",
		slog.String(constant.UserID, s.params.UserID),
		slog.String(constant.RoomID, s.params.RoomID),
	)

	s.publishHeld(ctx)

	return nil
}

func (s *sessionUsecase) Leave(ctx context.Context) error {
	s.mu.Lock()
	s.lastMuted = nil
	s.mu.Unlock()

	if err := s.conn.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}

	slog.Info(
		"left room",
		slog.String(constant.UserID, s.params.UserID),
		slog.String(constant.RoomID, s.params.RoomID),
	)

	return nil
}

// Close освобождает устройства и закрывает подключение
func (s *sessionUsecase) Close(ctx context.Context) error {
	s.media.Close()

	return s.conn.Close(ctx)
}

func (s *sessionUsecase) Snapshot() domain.SessionSnapshot {
	roster := s.conn.Snapshot()

	return domain.SessionSnapshot{
		UserID: s.params.UserID,
		RoomID: s.params.RoomID,
		State:  roster.State,
		Media:  s.media.State(),
		Roster: roster,
	}
}

// publishHeld публикует треки, полученные до подключения
func (s *sessionUsecase) publishHeld(ctx context.Context) {
	state := s.media.State()

	for _, stream := range []*domain.MediaStream{state.LocalStream, state.ScreenStream} {
		if stream == nil {
			continue
		}

		for _, t := range stream.Tracks() {
			s.publish(ctx, t)
		}
	}

	s.syncMute(ctx, state, true)
	s.conn.Refresh()
}

func (s *sessionUsecase) TrackAcquired(track domain.MediaTrack) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opTimeout)
	defer cancel()

	s.publish(ctx, track)
}

func (s *sessionUsecase) TrackReleased(track domain.MediaTrack) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opTimeout)
	defer cancel()

	err := s.conn.Unpublish(ctx, track.ID())
	if err != nil && !errors.Is(err, domain.ErrNotConnected) {
		slog.Warn(
			"unpublish track failed",
			slog.String(constant.TrackID, track.ID()),
			slog.Any(constant.Error, err),
		)
	}
}

func (s *sessionUsecase) StateChanged(state domain.LocalMediaState) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opTimeout)
	defer cancel()

	s.syncMute(ctx, state, false)
	s.conn.Refresh()
}

func (s *sessionUsecase) publish(ctx context.Context, track domain.MediaTrack) {
	err := s.conn.Publish(ctx, track)
	if err == nil {
		slog.Debug(
			"track published",
			slog.String(constant.TrackID, track.ID()),
			slog.String(constant.TrackKind, string(track.Kind())),
		)
		return
	}

	if errors.Is(err, domain.ErrNotConnected) || errors.Is(err, domain.ErrConnectionClosed) {
		return
	}

	slog.Warn(
		"publish track failed",
		slog.String(constant.TrackID, track.ID()),
		slog.Any(constant.Error, err),
	)
}

// syncMute сообщает транспорту состояние микрофона, только если оно поменялось
func (s *sessionUsecase) syncMute(ctx context.Context, state domain.LocalMediaState, force bool) {
	if state.LocalStream == nil {
		return
	}

	s.mu.Lock()
	if !force && s.lastMuted != nil && *s.lastMuted == state.IsMuted {
		s.mu.Unlock()
		return
	}

	muted := state.IsMuted
	s.lastMuted = &muted
	s.mu.Unlock()

	for _, t := range state.LocalStream.AudioTracks() {
		err := s.conn.UpdateTrackState(ctx, t.ID(), muted)
		if err != nil && !errors.Is(err, domain.ErrNotConnected) {
			slog.Warn(
				"update track state failed",
				slog.String(constant.TrackID, t.ID()),
				slog.Any(constant.Error, err),
			)
		}
	}
}
