package rest

import (
	"context"
	"net/http"

	"cartlift/business/attribution"
	"cartlift/domain"
	"cartlift/pkg/logger"

	"github.com/AMFarhan21/fres"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

const shopHeader = "X-Shop-Domain"

type (
	WebhookHandler struct {
		validate *validator.Validate
		matcher  AttributionService
	}

	AttributionService interface {
		AttributeOrder(ctx context.Context, shop string, order domain.Order) (attribution.Result, error)
	}

	orderWebhookResponse struct {
		Processed  bool     `json:"processed"`
		Attributed []string `json:"attributed,omitempty"`
		Missed     bool     `json:"missed,omitempty"`
	}
)

func NewWebhookHandler(matcher AttributionService) *WebhookHandler {
	return &WebhookHandler{
		validate: validator.New(),
		matcher:  matcher,
	}
}

// POST /api/v1/webhooks/orders
//
// Always answers 200 once the payload parses: upstream platforms retry
// non-2xx deliveries, and redelivering an already-processed order buys
// nothing because attribution is keyed by (shop, order, product).
func (h *WebhookHandler) OrderCreated(c echo.Context) error {
	shop := c.Request().Header.Get(shopHeader)
	if shop == "" {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: "missing " + shopHeader + " header"})
	}

	var order domain.Order
	if err := c.Bind(&order); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}
	if err := h.validate.Struct(&order); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	result, err := h.matcher.AttributeOrder(c.Request().Context(), shop, order)
	if err != nil {
		logger.Error("order_webhook_failed", "shop", shop, "order_id", order.OrderID, "error", err)
		return c.JSON(http.StatusOK, fres.Response.StatusOK(orderWebhookResponse{Processed: false}))
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(orderWebhookResponse{
		Processed:  true,
		Attributed: result.Attributed,
		Missed:     result.Missed,
	}))
}
