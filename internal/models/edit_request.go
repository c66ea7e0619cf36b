package models

import (
	"strings"
	"time"
)

// EditAction is the kind of change an edit request proposes.
type EditAction string

const (
	EditActionUpdate EditAction = "update"
	EditActionDelete EditAction = "delete"
)

// EditRequestStatus captures the approval workflow state.
type EditRequestStatus string

const (
	EditRequestPending  EditRequestStatus = "pending"
	EditRequestApproved EditRequestStatus = "approved"
	EditRequestRejected EditRequestStatus = "rejected"
)

// Terminal reports whether no further decisions are accepted.
func (s EditRequestStatus) Terminal() bool {
	return s == EditRequestApproved || s == EditRequestRejected
}

// Decision is the verdict recorded by an approver.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

// Approval is one approver's recorded decision.
type Approval struct {
	Identity  string    `json:"identity"`
	Decision  Decision  `json:"decision"`
	Timestamp time.Time `json:"timestamp"`
}

// EditRequest is a proposed update or deletion awaiting dual approval.
type EditRequest struct {
	ID              string            `json:"id"`
	ChurchID        string            `json:"churchId"`
	Entity          EntityKind        `json:"entity"`
	EntityName      string            `json:"entityName"`
	RecordID        string            `json:"recordId"`
	Action          EditAction        `json:"action"`
	Payload         *RecordPatch      `json:"payload"`
	Status          EditRequestStatus `json:"status"`
	RequestedBy     string            `json:"requestedBy"`
	RequestedByName string            `json:"requestedByName"`
	Approvals       []Approval        `json:"approvals"`
	CreatedAt       time.Time         `json:"createdAt"`
	ResolvedAt      *time.Time        `json:"resolvedAt,omitempty"`
}

// HasDecisionFrom reports whether identity already appears in the approvals list.
func (r *EditRequest) HasDecisionFrom(identity string) bool {
	identity = NormalizeIdentity(identity)
	for _, a := range r.Approvals {
		if NormalizeIdentity(a.Identity) == identity {
			return true
		}
	}
	return false
}

// WithDecision returns a copy of the approvals list with approval appended, unless its identity
// is already present.
func (r *EditRequest) WithDecision(approval Approval) []Approval {
	out := make([]Approval, 0, len(r.Approvals)+1)
	out = append(out, r.Approvals...)
	if r.HasDecisionFrom(approval.Identity) {
		return out
	}
	return append(out, approval)
}

// Clone returns a deep copy safe to hand across goroutines.
func (r *EditRequest) Clone() *EditRequest {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Approvals = append([]Approval(nil), r.Approvals...)
	if r.ResolvedAt != nil {
		t := *r.ResolvedAt
		cp.ResolvedAt = &t
	}
	return &cp
}

// EditRequestFilter constrains request listings.
type EditRequestFilter struct {
	Status   []EditRequestStatus
	Entity   EntityKind
	RecordID string
	Limit    int
	Offset   int
}

// NormalizeIdentity canonicalises an email identity for comparisons.
func NormalizeIdentity(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}
