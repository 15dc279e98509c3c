package domain

import "fmt"

type ConnectionStatus int

const (
	StatusIdle ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusDisconnected
	StatusFailed
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusDisconnected:
		return "disconnected"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

func (s ConnectionStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *ConnectionStatus) UnmarshalText(text []byte) error {
	for status := StatusIdle; status <= StatusFailed; status++ {
		if status.String() == string(text) {
			*s = status
			return nil
		}
	}

	return fmt.Errorf("unknown connection status %q", text)
}

// ConnectionState меняется только RoomConnectionManager по событиям транспорта.
// Reason заполнен для Disconnected и Failed.
type ConnectionState struct {
	Status ConnectionStatus `json:"status"`
	Reason string           `json:"reason,omitempty"`
}

// Terminal states cannot be left by this manager instance.
func (s ConnectionState) Terminal() bool {
	return s.Status == StatusDisconnected || s.Status == StatusFailed
}

// Active is true while a transport connection exists or is being restored.
func (s ConnectionState) Active() bool {
	return s.Status == StatusConnecting || s.Status == StatusConnected || s.Status == StatusReconnecting
}

func (s ConnectionState) String() string {
	if s.Reason == "" {
		return s.Status.String()
	}

	return fmt.Sprintf("%s(%s)", s.Status, s.Reason)
}

type ConnectionQuality string

const (
	QualityUnknown   ConnectionQuality = ""
	QualityExcellent ConnectionQuality = "excellent"
	QualityGood      ConnectionQuality = "good"
	QualityPoor      ConnectionQuality = "poor"
	QualityLost      ConnectionQuality = "lost"
)
