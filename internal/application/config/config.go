package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pion/webrtc/v4"

	"github.com/qrave1/LiveRoom/internal/domain"
)

const (
	TransportSignaling = "signaling"
	TransportMemory    = "memory"
)

type Config struct {
	Debug      bool   `env:"DEBUG" envDefault:"false"`
	Port       string `env:"PORT" envDefault:"3000"`
	MetricPort string `env:"METRIC_PORT" envDefault:"9090"`
	Domain     string `env:"DOMAIN" envDefault:"http://localhost:3000"`
	Transport  string `env:"TRANSPORT" envDefault:"signaling"`

	Session    SessionConfig
	Credential CredentialConfig
	Signaling  SignalingConfig
	ICE        ICEConfig
	Devices    DeviceConfig
	Memory     MemoryConfig

	// ICEServers собирается из ICE после парсинга env
	ICEServers []webrtc.ICEServer
}

// SessionConfig - кто и куда подключается
type SessionConfig struct {
	UserID   string `env:"SESSION_USER_ID,required,notEmpty"`
	RoomID   string `env:"SESSION_ROOM_ID,required,notEmpty"`
	Name     string `env:"SESSION_NAME"`
	Role     string `env:"SESSION_ROLE" envDefault:"professor"`
	AutoJoin bool   `env:"SESSION_AUTO_JOIN" envDefault:"false"`
}

type CredentialConfig struct {
	URL       string        `env:"CREDENTIAL_URL"`
	AuthToken string        `env:"CREDENTIAL_AUTH_TOKEN"`
	Timeout   time.Duration `env:"CREDENTIAL_TIMEOUT" envDefault:"10s"`

	// DevSecret - если задан, креды выпускаются локально без сервиса
	DevSecret    string        `env:"CREDENTIAL_DEV_SECRET"`
	DevServerURL string        `env:"CREDENTIAL_DEV_SERVER_URL" envDefault:"ws://localhost:7880/signal"`
	TTL          time.Duration `env:"CREDENTIAL_TTL" envDefault:"1h"`
}

type SignalingConfig struct {
	ReconnectAttempts uint64        `env:"SIGNALING_RECONNECT_ATTEMPTS" envDefault:"5"`
	ReconnectDelay    time.Duration `env:"SIGNALING_RECONNECT_DELAY" envDefault:"500ms"`
	PingPeriod        time.Duration `env:"SIGNALING_PING_PERIOD" envDefault:"30s"`
	WriteTimeout      time.Duration `env:"SIGNALING_WRITE_TIMEOUT" envDefault:"10s"`
}

type ICEConfig struct {
	StunURL string `env:"STUN_URL" envDefault:"stun:stun.l.google.com:19302"`

	TurnHost     string `env:"TURN_HOST"`
	TurnUsername string `env:"TURN_USERNAME"`
	TurnPassword string `env:"TURN_PASSWORD"`
}

// DeviceConfig - поведение синтетических устройств
type DeviceConfig struct {
	DenyMicrophone   bool          `env:"DEVICE_DENY_MICROPHONE" envDefault:"false"`
	DenyCamera       bool          `env:"DEVICE_DENY_CAMERA" envDefault:"false"`
	DenyScreen       bool          `env:"DEVICE_DENY_SCREEN" envDefault:"false"`
	ScreenShareLimit time.Duration `env:"DEVICE_SCREEN_SHARE_LIMIT" envDefault:"0s"`
}

// MemoryConfig - комната в памяти процесса для TRANSPORT=memory
type MemoryConfig struct {
	// DemoPeers - сколько ботов-студентов зайдут в комнату вместе с сессией
	DemoPeers int `env:"MEMORY_DEMO_PEERS" envDefault:"0"`
}

func New() (*Config, error) {
	c, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if c.Transport != TransportSignaling && c.Transport != TransportMemory {
		return nil, fmt.Errorf("unknown transport %q", c.Transport)
	}

	if c.Credential.URL == "" && c.Credential.DevSecret == "" {
		return nil, fmt.Errorf("either CREDENTIAL_URL or CREDENTIAL_DEV_SECRET must be set")
	}

	// Комната в памяти проверяет токены тем же секретом
	if c.Transport == TransportMemory && c.Credential.DevSecret == "" {
		return nil, fmt.Errorf("CREDENTIAL_DEV_SECRET is required for the memory transport")
	}

	if _, ok := domain.ParseRole(c.Session.Role); !ok {
		return nil, fmt.Errorf("unknown session role %q", c.Session.Role)
	}

	c.ICEServers = c.ICE.Servers()

	return &c, nil
}

func (i ICEConfig) Servers() []webrtc.ICEServer {
	servers := []webrtc.ICEServer{
		{
			URLs: []string{i.StunURL},
		},
	}

	if i.TurnHost == "" {
		return servers
	}

	return append(servers,
		webrtc.ICEServer{
			URLs:       []string{fmt.Sprintf("turn:%s?transport=udp", i.TurnHost)},
			Username:   i.TurnUsername,
			Credential: i.TurnPassword,
		},
		webrtc.ICEServer{
			URLs:       []string{fmt.Sprintf("turn:%s?transport=tcp", i.TurnHost)},
			Username:   i.TurnUsername,
			Credential: i.TurnPassword,
		},
	)
}
