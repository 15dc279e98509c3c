package metric

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthFunc отдает текущий статус сессии и готова ли она принимать команды
type HealthFunc func() (status string, ready bool)

type healthResponse struct {
	Status  string `json:"status"`
	Session string `json:"session"`
}

// NewServer - /metrics для prometheus и /health для проб.
// /health отвечает 503, пока сессия в терминальном состоянии.
func NewServer(health HealthFunc) *echo.Echo {
	e := echo.New()

	e.HideBanner = true
	e.HidePort = true

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	e.GET("/health", func(c echo.Context) error {
		session, ready := health()
		if !ready {
			return c.JSON(http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Session: session})
		}

		return c.JSON(http.StatusOK, healthResponse{Status: "ok", Session: session})
	})

	return e
}
