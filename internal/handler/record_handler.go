package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gracetrack-api/internal/dto"
	"github.com/noah-isme/gracetrack-api/internal/models"
	appErrors "github.com/noah-isme/gracetrack-api/pkg/errors"
	"github.com/noah-isme/gracetrack-api/pkg/response"
)

type recordService interface {
	Create(ctx context.Context, churchID, entity string, data json.RawMessage, actor *models.JWTClaims) (*models.Record, error)
	Get(ctx context.Context, churchID, entity, id string) (*models.Record, error)
	List(ctx context.Context, churchID, entity string, query dto.RecordQuery) ([]models.Record, error)
}

type editRequestCreator interface {
	CreateRequest(ctx context.Context, churchID string, req dto.CreateEditRequest, actor *models.JWTClaims) (*models.EditRequest, error)
}

// RecordHandler exposes member, attendance, finance and group records. Existing records change
// only through edit requests.
type RecordHandler struct {
	records  recordService
	requests editRequestCreator
}

// NewRecordHandler constructs the handler.
func NewRecordHandler(records recordService, requests editRequestCreator) *RecordHandler {
	return &RecordHandler{records: records, requests: requests}
}

// List godoc
// @Summary List records of an entity
// @Tags Records
// @Produce json
// @Param entity path string true "members, attendance, finance or groups"
// @Param orderBy query string false "Whitelisted order field"
// @Param direction query string false "asc or desc"
// @Param limit query int false "Maximum number of records"
// @Success 200 {object} response.Envelope
// @Router /records/{entity} [get]
func (h *RecordHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	query := dto.RecordQuery{
		OrderBy:   strings.TrimSpace(c.Query("orderBy")),
		Direction: strings.TrimSpace(c.Query("direction")),
		Limit:     queryInt(c, "limit", 0),
	}
	items, err := h.records.List(c.Request.Context(), claims.Church(), c.Param("entity"), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Get godoc
// @Summary Get a record
// @Tags Records
// @Produce json
// @Param entity path string true "Entity"
// @Param id path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Router /records/{entity}/{id} [get]
func (h *RecordHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	rec, err := h.records.Get(c.Request.Context(), claims.Church(), c.Param("entity"), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rec, nil)
}

// Create godoc
// @Summary Create a record
// @Description New records are stored immediately and locked against direct edits.
// @Tags Records
// @Accept json
// @Produce json
// @Param entity path string true "Entity"
// @Param payload body object true "Entity document"
// @Success 201 {object} response.Envelope
// @Router /records/{entity} [post]
func (h *RecordHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	body, err := c.GetRawData()
	if err != nil || len(body) == 0 || !json.Valid(body) {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid record payload"))
		return
	}
	rec, err := h.records.Create(c.Request.Context(), claims.Church(), c.Param("entity"), body, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, rec)
}

// RequestUpdate godoc
// @Summary Propose an update to a record
// @Tags Records
// @Accept json
// @Produce json
// @Param entity path string true "Entity"
// @Param id path string true "Record ID"
// @Param payload body dto.UpdateRecordRequest true "Partial document"
// @Success 202 {object} response.Envelope
// @Router /records/{entity}/{id}/edit-requests [post]
func (h *RecordHandler) RequestUpdate(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.UpdateRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid edit request payload"))
		return
	}
	created, err := h.requests.CreateRequest(c.Request.Context(), claims.Church(), dto.CreateEditRequest{
		Entity:   c.Param("entity"),
		Action:   string(models.EditActionUpdate),
		RecordID: c.Param("id"),
		Payload:  req.Payload,
	}, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, created)
}

// RequestDelete godoc
// @Summary Propose deleting a record
// @Tags Records
// @Produce json
// @Param entity path string true "Entity"
// @Param id path string true "Record ID"
// @Success 202 {object} response.Envelope
// @Router /records/{entity}/{id} [delete]
func (h *RecordHandler) RequestDelete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	created, err := h.requests.CreateRequest(c.Request.Context(), claims.Church(), dto.CreateEditRequest{
		Entity:   c.Param("entity"),
		Action:   string(models.EditActionDelete),
		RecordID: c.Param("id"),
	}, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, created)
}
