package memory

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/qrave1/LiveRoom/internal/application/constant"
	"github.com/qrave1/LiveRoom/internal/domain"
)

var ErrUnknownParticipant = errors.New("participant is not in the room")

// Grant - то, что транспорт узнает из токена
type Grant struct {
	Identity string
	Name     string
	Metadata string
	RoomID   string
}

// TokenVerifier проверяет токен и возвращает права на вход
type TokenVerifier func(token string) (Grant, error)

// RoomHub - конференц-бэкенд в памяти процесса. Каждый Transport - один клиент.
// Используется в тестах и в режиме TRANSPORT=memory.
type RoomHub struct {
	verify TokenVerifier

	mu    sync.Mutex
	rooms map[string][]*Transport

	failNext error
	gate     chan struct{}
}

func NewRoomHub(verify TokenVerifier) *RoomHub {
	return &RoomHub{
		verify: verify,
		rooms:  make(map[string][]*Transport),
	}
}

// FailNextConnect makes the next Connect return err.
func (h *RoomHub) FailNextConnect(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.failNext = err
}

// HoldConnects blocks every Connect until the returned release func is called.
func (h *RoomHub) HoldConnects() func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	gate := make(chan struct{})
	h.gate = gate

	var once sync.Once

	return func() {
		once.Do(func() {
			h.mu.Lock()
			if h.gate == gate {
				h.gate = nil
			}
			h.mu.Unlock()

			close(gate)
		})
	}
}

// Members возвращает identity участников комнаты в порядке входа
func (h *RoomHub) Members(roomID string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	ids := make([]string, 0, len(h.rooms[roomID]))
	for _, t := range h.rooms[roomID] {
		ids = append(ids, t.identity())
	}

	return ids
}

// Drop имитирует потерю сети у участника: он получает Reconnecting
func (h *RoomHub) Drop(roomID, identity string) error {
	t, err := h.member(roomID, identity)
	if err != nil {
		return err
	}

	t.setDropped(true)
	t.emit(domain.RoomEvent{Kind: domain.EventReconnecting})

	return nil
}

// Restore завершает переподключение после Drop
func (h *RoomHub) Restore(roomID, identity string) error {
	t, err := h.member(roomID, identity)
	if err != nil {
		return err
	}

	t.setDropped(false)
	t.emit(domain.RoomEvent{Kind: domain.EventReconnected})

	return nil
}

// Kick удаляет участника: у него терминальный Disconnected, у остальных ParticipantLeft
func (h *RoomHub) Kick(roomID, identity, reason string) error {
	t, err := h.member(roomID, identity)
	if err != nil {
		return err
	}

	h.leave(t)
	t.markDisconnected()
	t.emit(domain.RoomEvent{Kind: domain.EventDisconnected, Reason: reason})

	return nil
}

func (h *RoomHub) SetSpeaking(roomID, identity string, speaking bool) error {
	t, err := h.member(roomID, identity)
	if err != nil {
		return err
	}

	t.setSpeaking(speaking)
	h.broadcast(roomID, nil, domain.RoomEvent{Kind: domain.EventActiveSpeakersChanged, ParticipantID: identity})

	return nil
}

func (h *RoomHub) SetQuality(roomID, identity string, quality domain.ConnectionQuality) error {
	if _, err := h.member(roomID, identity); err != nil {
		return err
	}

	h.broadcast(roomID, nil, domain.RoomEvent{
		Kind:          domain.EventConnectionQualityChanged,
		ParticipantID: identity,
		Quality:       quality,
	})

	return nil
}

func (h *RoomHub) SetMetadata(roomID, identity, metadata string) error {
	t, err := h.member(roomID, identity)
	if err != nil {
		return err
	}

	t.setMetadata(metadata)
	h.broadcast(roomID, nil, domain.RoomEvent{Kind: domain.EventParticipantMetadataChanged, ParticipantID: identity})

	return nil
}

func (h *RoomHub) join(t *Transport, grant Grant) error {
	h.mu.Lock()

	if h.failNext != nil {
		err := h.failNext
		h.failNext = nil
		h.mu.Unlock()

		return err
	}

	var replaced *Transport

	members := h.rooms[grant.RoomID]
	for i, m := range members {
		if m.identity() == grant.Identity {
			replaced = m
			members = slices.Delete(members, i, i+1)
			break
		}
	}

	h.rooms[grant.RoomID] = append(members, t)
	others := slices.Clone(h.rooms[grant.RoomID][:len(h.rooms[grant.RoomID])-1])
	h.mu.Unlock()

	if replaced != nil {
		slog.Warn("duplicate identity joined, replacing", slog.String(constant.ParticipantID, grant.Identity))

		replaced.markDisconnected()
		replaced.emit(domain.RoomEvent{Kind: domain.EventDisconnected, Reason: domain.ReasonDuplicateJoin})
	}

	for _, m := range others {
		m.emit(domain.RoomEvent{Kind: domain.EventParticipantJoined, ParticipantID: grant.Identity})
	}

	return nil
}

func (h *RoomHub) leave(t *Transport) {
	roomID := t.roomID()

	h.mu.Lock()
	members := h.rooms[roomID]
	idx := slices.Index(members, t)
	if idx < 0 {
		h.mu.Unlock()
		return
	}

	members = slices.Delete(members, idx, idx+1)
	if len(members) == 0 {
		delete(h.rooms, roomID)
	} else {
		h.rooms[roomID] = members
	}

	others := slices.Clone(members)
	h.mu.Unlock()

	for _, m := range others {
		m.emit(domain.RoomEvent{Kind: domain.EventParticipantLeft, ParticipantID: t.identity()})
	}
}

// remotes возвращает участников комнаты кроме t в порядке входа
func (h *RoomHub) remotes(t *Transport) []*Transport {
	h.mu.Lock()
	defer h.mu.Unlock()

	members := h.rooms[t.roomID()]
	out := make([]*Transport, 0, len(members))

	for _, m := range members {
		if m != t {
			out = append(out, m)
		}
	}

	return out
}

// broadcast рассылает событие всем, кроме except. Вызывается без локов.
func (h *RoomHub) broadcast(roomID string, except *Transport, ev domain.RoomEvent) {
	h.mu.Lock()
	members := slices.Clone(h.rooms[roomID])
	h.mu.Unlock()

	for _, m := range members {
		if m == except {
			continue
		}
		m.emit(ev)
	}
}

func (h *RoomHub) member(roomID, identity string) (*Transport, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, t := range h.rooms[roomID] {
		if t.identity() == identity {
			return t, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownParticipant, identity)
}

func (h *RoomHub) waitGate() chan struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.gate
}
