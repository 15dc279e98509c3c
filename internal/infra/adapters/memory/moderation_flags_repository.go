package memory

import (
	"maps"
	"sync"

	"github.com/qrave1/LiveRoom/internal/domain"
)

// ModerationFlagsRepository хранит флаги модерации по id участника
type ModerationFlagsRepository interface {
	Get(participantID string) domain.ModerationFlags
	Snapshot() map[string]domain.ModerationFlags

	// Set* возвращают true, если флаг действительно изменился
	SetMuted(participantID string, muted bool) bool
	SetPicked(participantID string, picked bool) bool
	SetHandRaised(participantID string, raised bool) bool

	// SetMutedMany меняет флаг для всех id под одним локом
	SetMutedMany(participantIDs []string, muted bool) int

	Clear()
}

type moderationFlagsRepository struct {
	// flags хранит map[participant_id]flags
	flags map[string]domain.ModerationFlags
	mu    sync.RWMutex
}

func NewModerationFlagsRepository() ModerationFlagsRepository {
	return &moderationFlagsRepository{
		flags: make(map[string]domain.ModerationFlags),
	}
}

func (r *moderationFlagsRepository) Get(participantID string) domain.ModerationFlags {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.flags[participantID]
}

func (r *moderationFlagsRepository) Snapshot() map[string]domain.ModerationFlags {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return maps.Clone(r.flags)
}

func (r *moderationFlagsRepository) SetMuted(participantID string, muted bool) bool {
	return r.update(participantID, func(f *domain.ModerationFlags) bool {
		if f.Muted == muted {
			return false
		}
		f.Muted = muted
		return true
	})
}

func (r *moderationFlagsRepository) SetPicked(participantID string, picked bool) bool {
	return r.update(participantID, func(f *domain.ModerationFlags) bool {
		if f.Picked == picked {
			return false
		}
		f.Picked = picked
		return true
	})
}

func (r *moderationFlagsRepository) SetHandRaised(participantID string, raised bool) bool {
	return r.update(participantID, func(f *domain.ModerationFlags) bool {
		if f.HandRaised == raised {
			return false
		}
		f.HandRaised = raised
		return true
	})
}

func (r *moderationFlagsRepository) SetMutedMany(participantIDs []string, muted bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	changed := 0
	for _, id := range participantIDs {
		f := r.flags[id]
		if f.Muted == muted {
			continue
		}
		f.Muted = muted
		r.store(id, f)
		changed++
	}

	return changed
}

func (r *moderationFlagsRepository) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	clear(r.flags)
}

func (r *moderationFlagsRepository) update(participantID string, fn func(*domain.ModerationFlags) bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	f := r.flags[participantID]
	if !fn(&f) {
		return false
	}

	r.store(participantID, f)

	return true
}

// store не держит в мапе пустые записи
func (r *moderationFlagsRepository) store(participantID string, f domain.ModerationFlags) {
	if f == (domain.ModerationFlags{}) {
		delete(r.flags, participantID)
		return
	}

	r.flags[participantID] = f
}
