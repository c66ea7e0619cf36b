package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gracetrack-api/internal/dto"
	"github.com/noah-isme/gracetrack-api/internal/middleware"
	"github.com/noah-isme/gracetrack-api/internal/models"
	appErrors "github.com/noah-isme/gracetrack-api/pkg/errors"
	"github.com/noah-isme/gracetrack-api/pkg/response"
)

type editRequestService interface {
	CreateRequest(ctx context.Context, churchID string, req dto.CreateEditRequest, actor *models.JWTClaims) (*models.EditRequest, error)
	Get(ctx context.Context, churchID, id string) (*models.EditRequest, error)
	List(ctx context.Context, churchID string, query dto.EditRequestQuery) ([]models.EditRequest, error)
	SubmitDecision(ctx context.Context, churchID, requestID string, decision models.Decision, actor *models.JWTClaims) (*dto.DecisionResult, error)
}

// EditRequestHandler exposes the dual-approval workflow.
type EditRequestHandler struct {
	service editRequestService
}

// NewEditRequestHandler constructs the handler.
func NewEditRequestHandler(service editRequestService) *EditRequestHandler {
	return &EditRequestHandler{service: service}
}

// Create godoc
// @Summary Submit an edit request
// @Tags EditRequests
// @Accept json
// @Produce json
// @Param payload body dto.CreateEditRequest true "Edit request"
// @Success 202 {object} response.Envelope
// @Router /edit-requests [post]
func (h *EditRequestHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateEditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid edit request payload"))
		return
	}
	created, err := h.service.CreateRequest(c.Request.Context(), claims.Church(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, created)
}

// List godoc
// @Summary List edit requests
// @Tags EditRequests
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param entity query string false "Entity"
// @Param recordId query string false "Record ID"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /edit-requests [get]
func (h *EditRequestHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	query := dto.EditRequestQuery{
		Entity:   strings.TrimSpace(c.Query("entity")),
		RecordID: strings.TrimSpace(c.Query("recordId")),
		Limit:    queryInt(c, "limit", 50),
		Offset:   queryInt(c, "offset", 0),
	}
	if rawStatus := c.Query("status"); rawStatus != "" {
		for _, part := range strings.Split(rawStatus, ",") {
			part = strings.ToLower(strings.TrimSpace(part))
			if part != "" {
				query.Status = append(query.Status, models.EditRequestStatus(part))
			}
		}
	}
	items, err := h.service.List(c.Request.Context(), claims.Church(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Get godoc
// @Summary Get an edit request
// @Tags EditRequests
// @Produce json
// @Param id path string true "Edit request ID"
// @Success 200 {object} response.Envelope
// @Router /edit-requests/{id} [get]
func (h *EditRequestHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	req, err := h.service.Get(c.Request.Context(), claims.Church(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, req, nil)
}

// Decide godoc
// @Summary Approve or reject an edit request
// @Description Only the manager and sub-manager may decide. Decisions on resolved requests are ignored.
// @Tags EditRequests
// @Accept json
// @Produce json
// @Param id path string true "Edit request ID"
// @Param payload body dto.DecisionRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Router /edit-requests/{id}/decision [post]
func (h *EditRequestHandler) Decide(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "decision must be approve or reject"))
		return
	}
	var decision models.Decision
	switch req.Decision {
	case "approve":
		decision = models.DecisionApproved
	case "reject":
		decision = models.DecisionRejected
	default:
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "decision must be approve or reject"))
		return
	}
	result, err := h.service.SubmitDecision(c.Request.Context(), claims.Church(), c.Param("id"), decision, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "outcome", result.Outcome)
	if len(result.Awaiting) > 0 {
		middleware.SetMeta(c, "awaiting", result.Awaiting)
	}
	response.JSON(c, http.StatusOK, result, nil, middleware.ExtractMeta(c))
}
