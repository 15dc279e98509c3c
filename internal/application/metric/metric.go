package metric

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP метрики - количество запросов
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Общее количество HTTP запросов",
		},
		[]string{"method", "endpoint", "status"},
	)

	// HTTP метрики - время обработки запросов
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Время обработки HTTP запросов в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	// WS метрики - подписчики на обновления ростера
	wsActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_active_connections",
			Help: "Количество активных WebSocket подписчиков ростера",
		},
	)

	connectionState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "session_connection_state",
			Help: "Текущее состояние подключения к комнате (числовой код)",
		},
	)

	credentialRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_credential_requests_total",
			Help: "Запросы кредов к сервису",
		},
		[]string{"result"},
	)

	rosterParticipants = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "session_roster_participants",
			Help: "Количество участников в последней проекции ростера",
		},
	)

	rosterRecomputesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "session_roster_recomputes_total",
			Help: "Количество пересчетов ростера",
		},
	)

	activeTracks = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "session_media_active_tracks",
			Help: "Локальные треки, которые сейчас удерживаются",
		},
		[]string{"kind"},
	)

	moderationCommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_moderation_commands_total",
			Help: "Команды модерации",
		},
		[]string{"command", "direction"},
	)

	rtpPacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_rtp_packets_received_total",
			Help: "Принятые RTP пакеты удаленных треков",
		},
		[]string{"kind"},
	)
)

// RecordHTTPMetrics записывает метрики HTTP запроса
func RecordHTTPMetrics(method, endpoint string, status int, duration time.Duration) {
	strStatus := strconv.Itoa(status)

	httpRequestsTotal.WithLabelValues(method, endpoint, strStatus).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint, strStatus).Observe(duration.Seconds())
}

func IncrementWSActiveConnections() {
	wsActiveConnections.Inc()
}

func DecrementWSActiveConnections() {
	wsActiveConnections.Dec()
}

func SetConnectionState(code int) {
	connectionState.Set(float64(code))
}

func RecordCredentialRequest(success bool) {
	result := "ok"
	if !success {
		result = "error"
	}

	credentialRequestsTotal.WithLabelValues(result).Inc()
}

func RecordRosterRecompute(participants int) {
	rosterRecomputesTotal.Inc()
	rosterParticipants.Set(float64(participants))
}

func TrackAcquired(kind string) {
	activeTracks.WithLabelValues(kind).Inc()
}

func TrackReleased(kind string) {
	activeTracks.WithLabelValues(kind).Dec()
}

func RecordModerationCommand(command, direction string) {
	moderationCommandsTotal.WithLabelValues(command, direction).Inc()
}

func RecordRTPPacket(kind string) {
	rtpPacketsTotal.WithLabelValues(kind).Inc()
}
