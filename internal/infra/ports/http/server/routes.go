package server

import (
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/qrave1/LiveRoom/internal/infra/ports/http/handlers"
	"github.com/qrave1/LiveRoom/internal/infra/ports/http/middleware"
)

type requestValidator struct {
	validate *validator.Validate
}

func (v *requestValidator) Validate(i any) error {
	return v.validate.Struct(i)
}

func New(
	sessionHandler *handlers.SessionHandler,
	mediaHandler *handlers.MediaHandler,
	moderationHandler *handlers.ModerationHandler,
	iceHandler *handlers.IceHandler,
	wsHandler *handlers.RosterWebSocketHandler,
) *echo.Echo {
	e := echo.New()

	e.HideBanner = true
	e.Validator = &requestValidator{validate: validator.New(validator.WithRequiredStructEnabled())}

	e.Use(middleware.SlogLogger())
	e.Use(middleware.PrometheusMiddleware())

	api := e.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET("/session", sessionHandler.Snapshot)
			v1.POST("/session/join", sessionHandler.Join)
			v1.POST("/session/leave", sessionHandler.Leave)

			v1.GET("/roster", sessionHandler.Roster)
			v1.GET("/roster/ws", wsHandler.Handle)

			v1.GET("/ice", iceHandler.IceServers)

			media := v1.Group("/media")
			{
				media.GET("", mediaHandler.State)
				media.POST("/microphone/access", mediaHandler.RequestMicrophone)
				media.POST("/microphone/toggle", mediaHandler.ToggleMicrophone)
				media.POST("/camera/toggle", mediaHandler.ToggleCamera)
				media.POST("/screen/toggle", mediaHandler.ToggleScreenShare)
			}

			moderation := v1.Group("/moderation")
			{
				moderation.POST("/mute-all", moderationHandler.MuteAll)
				moderation.POST("/unmute-all", moderationHandler.UnmuteAll)

				moderation.POST("/hand/raise", moderationHandler.RaiseHand)
				moderation.POST("/hand/lower", moderationHandler.LowerHand)

				moderation.POST("/participants/:id/mute", moderationHandler.Mute)
				moderation.POST("/participants/:id/unmute", moderationHandler.Unmute)
				moderation.POST("/participants/:id/pick", moderationHandler.Pick)
				moderation.POST("/participants/:id/unpick", moderationHandler.Unpick)
				moderation.POST("/participants/:id/floor", moderationHandler.GiveFloor)
				moderation.POST("/participants/:id/stop-screen", moderationHandler.StopScreenShare)
				moderation.POST("/participants/:id/lower-hand", moderationHandler.AcknowledgeHand)
			}
		}
	}

	return e
}
