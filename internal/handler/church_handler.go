package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gracetrack-api/internal/dto"
	"github.com/noah-isme/gracetrack-api/internal/models"
	appErrors "github.com/noah-isme/gracetrack-api/pkg/errors"
	"github.com/noah-isme/gracetrack-api/pkg/response"
)

type churchService interface {
	Get(ctx context.Context, actor *models.JWTClaims) (*models.Church, error)
	UpdateRoles(ctx context.Context, actor *models.JWTClaims, req dto.UpdateRolesRequest) (*models.Church, error)
	UpdatePreferences(ctx context.Context, actor *models.JWTClaims, req dto.UpdatePreferencesRequest) (*models.Church, error)
}

// ChurchHandler manages the church document.
type ChurchHandler struct {
	service churchService
}

// NewChurchHandler constructs the handler.
func NewChurchHandler(service churchService) *ChurchHandler {
	return &ChurchHandler{service: service}
}

// Get godoc
// @Summary Current church profile, roles and preferences
// @Tags Church
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /church [get]
func (h *ChurchHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	church, err := h.service.Get(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, church, nil)
}

// UpdateRoles godoc
// @Summary Assign manager and sub-manager
// @Tags Church
// @Accept json
// @Produce json
// @Param payload body dto.UpdateRolesRequest true "Approver emails"
// @Success 200 {object} response.Envelope
// @Router /church/roles [put]
func (h *ChurchHandler) UpdateRoles(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.UpdateRolesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid roles payload"))
		return
	}
	church, err := h.service.UpdateRoles(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, church, nil)
}

// UpdatePreferences godoc
// @Summary Update currency and theme preferences
// @Tags Church
// @Accept json
// @Produce json
// @Param payload body dto.UpdatePreferencesRequest true "Preferences"
// @Success 200 {object} response.Envelope
// @Router /church/preferences [put]
func (h *ChurchHandler) UpdatePreferences(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.UpdatePreferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid preferences payload"))
		return
	}
	church, err := h.service.UpdatePreferences(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, church, nil)
}
