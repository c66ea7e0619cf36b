package dto

import (
	"encoding/json"

	"github.com/noah-isme/gracetrack-api/internal/models"
)

// CreateEditRequest proposes an update or deletion of an existing record.
type CreateEditRequest struct {
	Entity   string          `json:"entity" validate:"required"`
	Action   string          `json:"action" validate:"required,oneof=update delete"`
	RecordID string          `json:"recordId" validate:"required"`
	Payload  json.RawMessage `json:"payload"`
}

// UpdateRecordRequest is the body of POST /records/:entity/:id/edit-requests.
type UpdateRecordRequest struct {
	Payload json.RawMessage `json:"payload"`
}

// DecisionRequest carries an approver verdict.
type DecisionRequest struct {
	Decision string `json:"decision" validate:"required,oneof=approve reject"`
}

// DecisionOutcome summarises what a decision changed.
type DecisionOutcome string

const (
	// DecisionRecorded means the approval was stored and the request is still pending.
	DecisionRecorded DecisionOutcome = "recorded"
	DecisionApproved DecisionOutcome = "approved"
	DecisionRejected DecisionOutcome = "rejected"
	// DecisionNoop means the request was already resolved and nothing changed.
	DecisionNoop DecisionOutcome = "noop"
)

// DecisionResult is returned by decision submission.
type DecisionResult struct {
	Request  *models.EditRequest `json:"request"`
	Outcome  DecisionOutcome     `json:"outcome"`
	Awaiting []string            `json:"awaiting,omitempty"`
}

// EditRequestQuery mirrors supported listing filters.
type EditRequestQuery struct {
	Status   []models.EditRequestStatus
	Entity   string
	RecordID string
	Limit    int
	Offset   int
}

// RecordQuery captures record listing parameters.
type RecordQuery struct {
	OrderBy   string
	Direction string
	Limit     int
}
