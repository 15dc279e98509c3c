package credential

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/qrave1/LiveRoom/internal/domain"
)

func Test_Issuer_issue_then_verify(t *testing.T) {
	issuer := NewIssuer("secret", "wss://sfu.example/signal", time.Hour)

	cred, err := issuer.Issue("alice", "room-1", "Alice", `{"role":"professor"}`)
	require.NoError(t, err)

	require.Equal(t, "wss://sfu.example/signal", cred.ServerURL)
	require.Equal(t, "alice", cred.IssuedForUserID)
	require.Equal(t, "room-1", cred.IssuedForRoomID)
	require.WithinDuration(t, time.Now().Add(time.Hour), cred.ExpiresAt, 5*time.Second)

	claims, err := issuer.Verify(cred.Token)
	require.NoError(t, err)
	require.Equal(t, "alice", claims.Subject)
	require.Equal(t, "room-1", claims.Video.Room)
	require.True(t, claims.Video.CanPublishData)

	grant, err := issuer.Grant(cred.Token)
	require.NoError(t, err)
	require.Equal(t, "Alice", grant.Name)
	require.Equal(t, `{"role":"professor"}`, grant.Metadata)
}

func Test_Issuer_rejects_bad_tokens(t *testing.T) {
	issuer := NewIssuer("secret", "wss://sfu.example/signal", time.Hour)

	cred, err := issuer.Issue("alice", "room-1", "", "")
	require.NoError(t, err)

	other := NewIssuer("other-secret", "wss://sfu.example/signal", time.Hour)
	_, err = other.Verify(cred.Token)
	require.ErrorIs(t, err, ErrInvalidToken)

	expired := NewIssuer("secret", "wss://sfu.example/signal", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = expired.Verify(cred.Token)
	require.ErrorIs(t, err, ErrInvalidToken)

	// Токен без права входа в комнату
	noJoin := jwt.NewWithClaims(jwt.SigningMethodHS256, &RoomClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "alice"},
		Video:            VideoGrant{Room: "room-1"},
	})
	signed, err := noJoin.SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = issuer.Verify(signed)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = issuer.Grant("not a token")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func Test_LocalService_puts_role_into_metadata(t *testing.T) {
	issuer := NewIssuer("secret", "wss://sfu.example/signal", time.Hour)
	svc := NewLocalService(issuer)
	svc.SetProfile("prof", Profile{Name: "Dr. Who", Role: domain.RoleProfessor})

	cred, err := svc.RequestCredential(context.Background(), "prof", "room-1")
	require.NoError(t, err)

	grant, err := issuer.Grant(cred.Token)
	require.NoError(t, err)
	require.Equal(t, "Dr. Who", grant.Name)
	require.Equal(t, domain.RoleProfessor, domain.ParsePeerMetadata(grant.Metadata).Role)

	// Без профиля - без metadata
	cred, err = svc.RequestCredential(context.Background(), "anon", "room-1")
	require.NoError(t, err)

	grant, err = issuer.Grant(cred.Token)
	require.NoError(t, err)
	require.Empty(t, grant.Metadata)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = svc.RequestCredential(ctx, "prof", "room-1")
	require.ErrorIs(t, err, context.Canceled)
}

func Test_Issuer_tokens_in_same_second_differ(t *testing.T) {
	issuer := NewIssuer("secret", "wss://sfu.example/signal", time.Hour)
	fixed := time.Now()
	issuer.now = func() time.Time { return fixed }

	first, err := issuer.Issue("alice", "room-1", "Alice", "")
	require.NoError(t, err)

	second, err := issuer.Issue("alice", "room-1", "Alice", "")
	require.NoError(t, err)

	require.NotEqual(t, first.Token, second.Token)

	a, err := issuer.Verify(first.Token)
	require.NoError(t, err)

	b, err := issuer.Verify(second.Token)
	require.NoError(t, err)

	require.NotEmpty(t, a.ID)
	require.NotEqual(t, a.ID, b.ID)
}
