package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EntityKind identifies a record collection.
type EntityKind string

const (
	EntityMembers    EntityKind = "members"
	EntityAttendance EntityKind = "attendance"
	EntityFinance    EntityKind = "finance"
	EntityGroups     EntityKind = "groups"
)

// EntityKinds lists every record collection in display order.
var EntityKinds = []EntityKind{EntityMembers, EntityAttendance, EntityFinance, EntityGroups}

// ParseEntityKind resolves a path or payload value into a known entity kind.
func ParseEntityKind(raw string) (EntityKind, error) {
	kind := EntityKind(strings.ToLower(strings.TrimSpace(raw)))
	switch kind {
	case EntityMembers, EntityAttendance, EntityFinance, EntityGroups:
		return kind, nil
	}
	return "", fmt.Errorf("unknown entity %q", raw)
}

// LockStatus marks whether a record may currently be edited.
type LockStatus string

const (
	LockStatusLocked   LockStatus = "locked"
	LockStatusPending  LockStatus = "pending"
	LockStatusApproved LockStatus = "approved"
)

// Record is a stored member, attendance, finance or group document.
type Record struct {
	ID         string          `db:"id" json:"id"`
	ChurchID   string          `db:"church_id" json:"churchId"`
	Entity     EntityKind      `db:"entity" json:"entity"`
	Data       json.RawMessage `db:"-" json:"data"`
	LockStatus LockStatus      `db:"lock_status" json:"lockStatus"`
	CreatedBy  string          `db:"created_by" json:"createdBy"`
	CreatedAt  time.Time       `db:"created_at" json:"createdAt"`
	UpdatedBy  *string         `db:"updated_by" json:"updatedBy,omitempty"`
	UpdatedAt  *time.Time      `db:"updated_at" json:"updatedAt,omitempty"`
}

// Member describes a congregation member.
type Member struct {
	FullName string `json:"fullName" validate:"required"`
	Gender   string `json:"gender,omitempty"`
	Age      *int   `json:"age,omitempty" validate:"omitempty,gte=0,lte=150"`
	Phone    string `json:"phone,omitempty"`
	Address  string `json:"address,omitempty"`
	Ministry string `json:"ministry,omitempty"`
	Role     string `json:"role,omitempty"`
	Notes    string `json:"notes,omitempty"`
	PhotoURL string `json:"photoUrl,omitempty"`
}

// Attendance records turnout for a single event.
type Attendance struct {
	EventName string `json:"eventName" validate:"required"`
	EventDate string `json:"eventDate" validate:"required,datetime=2006-01-02"`
	Group     string `json:"group,omitempty"`
	Present   *int   `json:"present,omitempty" validate:"omitempty,gte=0"`
	Expected  *int   `json:"expected,omitempty" validate:"omitempty,gte=0"`
	Notes     string `json:"notes,omitempty"`
}

// FinanceEntry is an income or giving entry expressed in cedis.
type FinanceEntry struct {
	Date      string  `json:"date" validate:"required,datetime=2006-01-02"`
	Category  string  `json:"category" validate:"required"`
	Notes     string  `json:"notes,omitempty"`
	AmountGHS float64 `json:"amountGHS"`
}

// Group describes a ministry group or fellowship.
type Group struct {
	Name          string `json:"name" validate:"required"`
	Leader        string `json:"leader,omitempty"`
	Members       *int   `json:"members,omitempty" validate:"omitempty,gte=0"`
	NextEventDate string `json:"nextEventDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Status        string `json:"status,omitempty"`
	Overview      string `json:"overview,omitempty"`
}

// NewEntityDocument returns an empty typed document for the entity kind.
func NewEntityDocument(kind EntityKind) (interface{}, error) {
	switch kind {
	case EntityMembers:
		return &Member{}, nil
	case EntityAttendance:
		return &Attendance{}, nil
	case EntityFinance:
		return &FinanceEntry{}, nil
	case EntityGroups:
		return &Group{}, nil
	}
	return nil, fmt.Errorf("unknown entity %q", kind)
}

// DecodeEntityDocument strictly decodes raw into the typed document for kind.
func DecodeEntityDocument(kind EntityKind, raw json.RawMessage) (interface{}, error) {
	doc, err := NewEntityDocument(kind)
	if err != nil {
		return nil, err
	}
	if err := decodeStrict(raw, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// RecordFilter constrains record listings.
type RecordFilter struct {
	Entity    EntityKind
	OrderBy   string
	Direction SortDirection
	Limit     int
}
