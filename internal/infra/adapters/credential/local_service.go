package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/qrave1/LiveRoom/internal/domain"
)

// Profile - имя и роль, которые попадут в токен
type Profile struct {
	Name string
	Role domain.Role
}

// LocalService выдает креды без внешнего сервиса, подписывая их Issuer
type LocalService struct {
	issuer *Issuer

	mu       sync.RWMutex
	profiles map[string]Profile
}

func NewLocalService(issuer *Issuer) *LocalService {
	return &LocalService{
		issuer:   issuer,
		profiles: make(map[string]Profile),
	}
}

func (s *LocalService) SetProfile(userID string, profile Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.profiles[userID] = profile
}

func (s *LocalService) RequestCredential(ctx context.Context, userID, roomID string) (domain.RoomCredential, error) {
	if err := ctx.Err(); err != nil {
		return domain.RoomCredential{}, err
	}

	s.mu.RLock()
	profile := s.profiles[userID]
	s.mu.RUnlock()

	metadata := ""
	if profile.Role != "" {
		raw, err := json.Marshal(domain.PeerMetadata{Role: profile.Role})
		if err != nil {
			return domain.RoomCredential{}, fmt.Errorf("marshal metadata: %w", err)
		}

		metadata = string(raw)
	}

	return s.issuer.Issue(userID, roomID, profile.Name, metadata)
}
