package router

import (
	"cartlift/internal/rest"

	"github.com/labstack/echo/v4"
)

func SetJobRoutes(api *echo.Group, handler *rest.PipelineHandler, authRequired echo.MiddlewareFunc) {
	jobs := api.Group("/jobs", authRequired)

	jobs.POST("/daily", handler.RunDaily)
	jobs.POST("/weekly", handler.RunWeekly)
	jobs.GET("/status", handler.Status)
}

func SetWebhookRoutes(api *echo.Group, handler *rest.WebhookHandler) {
	webhooks := api.Group("/webhooks")

	webhooks.POST("/orders", handler.OrderCreated)
}
