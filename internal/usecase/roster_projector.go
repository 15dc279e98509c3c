package usecase

import (
	"github.com/qrave1/LiveRoom/internal/domain"
)

const (
	defaultLocalName  = "You"
	defaultRemoteName = "Anonymous"
)

// ProjectionOptions - то, чего нет в хендлах транспорта
type ProjectionOptions struct {
	LocalRole domain.Role
	Quality   map[string]domain.ConnectionQuality
}

// ProjectRoster строит ростер заново из живых хендлов транспорта.
//
// Локальный участник первым, дальше удаленные в порядке перечисления транспортом.
// Повторный id сохраняет позицию первого вхождения и данные последнего.
// Удаленный участник с identity локального отбрасывается.
func ProjectRoster(
	local domain.Peer,
	remotes []domain.Peer,
	flags map[string]domain.ModerationFlags,
	opts ProjectionOptions,
) []domain.ParticipantViewModel {
	roster := make([]domain.ParticipantViewModel, 0, len(remotes)+1)
	index := make(map[string]int, len(remotes)+1)

	localID := ""
	if local != nil {
		localID = local.Identity()
		roster = append(roster, projectPeer(local, true, flags, opts))
		index[localID] = 0
	}

	for _, peer := range remotes {
		if peer == nil {
			continue
		}

		id := peer.Identity()
		if local != nil && id == localID {
			continue
		}

		vm := projectPeer(peer, false, flags, opts)

		if pos, ok := index[id]; ok {
			roster[pos] = vm
			continue
		}

		index[id] = len(roster)
		roster = append(roster, vm)
	}

	return roster
}

func projectPeer(
	peer domain.Peer,
	isLocal bool,
	flags map[string]domain.ModerationFlags,
	opts ProjectionOptions,
) domain.ParticipantViewModel {
	id := peer.Identity()
	md := domain.ParsePeerMetadata(peer.Metadata())
	f := flags[id]

	name := peer.Name()
	if name == "" {
		name = defaultRemoteName
		if isLocal {
			name = defaultLocalName
		}
	}

	role := md.Role
	if role == "" {
		role = domain.RoleStudent
		if isLocal && opts.LocalRole != "" {
			role = opts.LocalRole
		}
	}

	return domain.ParticipantViewModel{
		ID:              id,
		DisplayName:     name,
		Avatar:          md.Avatar,
		IsLocal:         isLocal,
		Role:            role,
		IsMuted:         !peer.IsMicrophoneEnabled() || f.Muted,
		IsCameraOn:      peer.IsCameraEnabled(),
		IsScreenSharing: peer.IsScreenShareEnabled(),
		IsSpeaking:      peer.IsSpeaking(),
		HandRaised:      f.HandRaised,
		IsPicked:        f.Picked,
		Quality:         opts.Quality[id],
	}
}
