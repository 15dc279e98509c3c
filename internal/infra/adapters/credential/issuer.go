package credential

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/qrave1/LiveRoom/internal/domain"
	"github.com/qrave1/LiveRoom/internal/infra/adapters/memory"
)

var ErrInvalidToken = errors.New("invalid room token")

// VideoGrant - права участника в комнате
type VideoGrant struct {
	Room           string `json:"room"`
	RoomJoin       bool   `json:"roomJoin"`
	CanPublish     bool   `json:"canPublish"`
	CanPublishData bool   `json:"canPublishData"`
	CanSubscribe   bool   `json:"canSubscribe"`
}

// RoomClaims - claims токена комнаты. Subject - identity участника.
type RoomClaims struct {
	jwt.RegisteredClaims
	Name     string     `json:"name,omitempty"`
	Metadata string     `json:"metadata,omitempty"`
	Video    VideoGrant `json:"video"`
}

// Issuer выпускает и проверяет HS256 токены комнаты для локального режима
type Issuer struct {
	secret    []byte
	serverURL string
	ttl       time.Duration
	now       func() time.Time
}

func NewIssuer(secret, serverURL string, ttl time.Duration) *Issuer {
	return &Issuer{
		secret:    []byte(secret),
		serverURL: serverURL,
		ttl:       ttl,
		now:       time.Now,
	}
}

func (i *Issuer) Issue(userID, roomID, name, metadata string) (domain.RoomCredential, error) {
	now := i.now()
	expiresAt := now.Add(i.ttl)

	claims := &RoomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			// jti: токены одного участника, выпущенные в одну секунду, различаются
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Name:     name,
		Metadata: metadata,
		Video: VideoGrant{
			Room:           roomID,
			RoomJoin:       true,
			CanPublish:     true,
			CanPublishData: true,
			CanSubscribe:   true,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(i.secret)
	if err != nil {
		return domain.RoomCredential{}, fmt.Errorf("sign room token: %w", err)
	}

	return domain.RoomCredential{
		Token:           signed,
		ServerURL:       i.serverURL,
		IssuedForUserID: userID,
		IssuedForRoomID: roomID,
		ExpiresAt:       expiresAt,
	}, nil
}

func (i *Issuer) Verify(token string) (*RoomClaims, error) {
	parsed, err := jwt.ParseWithClaims(
		token,
		&RoomClaims{},
		func(t *jwt.Token) (any, error) {
			return i.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*RoomClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	if !claims.Video.RoomJoin || claims.Video.Room == "" || claims.Subject == "" {
		return nil, fmt.Errorf("%w: no room join grant", ErrInvalidToken)
	}

	return claims, nil
}

// Grant - memory.TokenVerifier поверх Verify
func (i *Issuer) Grant(token string) (memory.Grant, error) {
	claims, err := i.Verify(token)
	if err != nil {
		return memory.Grant{}, err
	}

	return memory.Grant{
		Identity: claims.Subject,
		Name:     claims.Name,
		Metadata: claims.Metadata,
		RoomID:   claims.Video.Room,
	}, nil
}
