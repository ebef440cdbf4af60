package rest

import (
	"context"
	"net/http"

	"cartlift/business/pipeline"
	"cartlift/domain"

	"github.com/AMFarhan21/fres"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

type ResponseError struct {
	Message string `json:"message"`
}

type (
	PipelineHandler struct {
		validate *validator.Validate
		runner   PipelineRunner
		statuses StatusReader
	}

	PipelineRunner interface {
		RunDaily(ctx context.Context, shop string) ([]pipeline.ShopRunSummary, error)
		RunWeekly(ctx context.Context, shop string) ([]pipeline.ShopRunSummary, error)
	}

	StatusReader interface {
		GetStatus(ctx context.Context, shop, job string) (*domain.JobStatus, error)
	}

	RunQuery struct {
		// empty shop means run for every shop with recent activity
		Shop string `query:"shop"`
	}

	StatusQuery struct {
		Shop string `query:"shop" validate:"required"`
		Job  string `query:"job" validate:"required,oneof=performance profiles similarity"`
	}
)

func NewPipelineHandler(runner PipelineRunner, statuses StatusReader) *PipelineHandler {
	return &PipelineHandler{
		validate: validator.New(),
		runner:   runner,
		statuses: statuses,
	}
}

// POST /api/v1/jobs/daily?shop=example.myshopify.com
func (h *PipelineHandler) RunDaily(c echo.Context) error {
	var q RunQuery
	if err := c.Bind(&q); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	summaries, err := h.runner.RunDaily(c.Request().Context(), q.Shop)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}

	// per-shop failures ride in the body; the trigger itself succeeded
	return c.JSON(http.StatusOK, fres.Response.StatusOK(summaries))
}

// POST /api/v1/jobs/weekly?shop=example.myshopify.com
func (h *PipelineHandler) RunWeekly(c echo.Context) error {
	var q RunQuery
	if err := c.Bind(&q); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	summaries, err := h.runner.RunWeekly(c.Request().Context(), q.Shop)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(summaries))
}

// GET /api/v1/jobs/status?shop=example.myshopify.com&job=performance
func (h *PipelineHandler) Status(c echo.Context) error {
	var q StatusQuery
	if err := c.Bind(&q); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}
	if err := h.validate.Struct(&q); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	status, err := h.statuses.GetStatus(c.Request().Context(), q.Shop, q.Job)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}
	if status == nil {
		return c.JSON(http.StatusNotFound, ResponseError{Message: "no run recorded"})
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(status))
}
