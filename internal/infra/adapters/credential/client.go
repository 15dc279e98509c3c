package credential

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/qrave1/LiveRoom/internal/domain"
)

const tokenPath = "/api/livekit/token"

var ErrServiceRejected = errors.New("credential service rejected the request")

type tokenRequest struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

type tokenResponse struct {
	Token     string `json:"token"`
	Identity  string `json:"identity"`
	RoomName  string `json:"roomName"`
	ServerURL string `json:"serverUrl"`
	ExpiresAt string `json:"expiresAt"`
}

type apiResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Error   string         `json:"error"`
	Data    *tokenResponse `json:"data"`
}

// Client - клиент внешнего сервиса выдачи токенов комнаты
type Client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

func NewClient(baseURL, authToken string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		authToken:  authToken,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) RequestCredential(ctx context.Context, userID, roomID string) (domain.RoomCredential, error) {
	body, err := json.Marshal(tokenRequest{RoomID: roomID, UserID: userID})
	if err != nil {
		return domain.RoomCredential{}, fmt.Errorf("marshal token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+tokenPath, bytes.NewReader(body))
	if err != nil {
		return domain.RoomCredential{}, fmt.Errorf("build token request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.RoomCredential{}, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.RoomCredential{}, fmt.Errorf("read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return domain.RoomCredential{}, fmt.Errorf("%w: status %d", ErrServiceRejected, resp.StatusCode)
	}

	var envelope apiResponse
	if err = json.Unmarshal(raw, &envelope); err != nil {
		return domain.RoomCredential{}, fmt.Errorf("decode token response: %w", err)
	}

	if !envelope.Success || envelope.Data == nil {
		return domain.RoomCredential{}, fmt.Errorf("%w: %s", ErrServiceRejected, envelope.Error)
	}

	data := envelope.Data

	return domain.RoomCredential{
		Token:           data.Token,
		ServerURL:       data.ServerURL,
		IssuedForUserID: userID,
		IssuedForRoomID: roomID,
		ExpiresAt:       expiry(data),
	}, nil
}

// expiry берет exp из токена, иначе expiresAt из ответа. Подпись не проверяется:
// ключ есть только у сервиса.
func expiry(data *tokenResponse) time.Time {
	claims := &jwt.RegisteredClaims{}

	if _, _, err := jwt.NewParser().ParseUnverified(data.Token, claims); err == nil && claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time
	}

	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999"} {
		if t, err := time.Parse(layout, data.ExpiresAt); err == nil {
			return t
		}
	}

	return time.Time{}
}
