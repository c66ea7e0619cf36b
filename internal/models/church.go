package models

import "time"

// ChurchRoles designates the two approver identities.
type ChurchRoles struct {
	ManagerEmail    string     `json:"managerEmail"`
	SubManagerEmail string     `json:"subManagerEmail"`
	LastUpdated     *time.Time `json:"lastUpdated,omitempty"`
}

// IsApprover reports whether identity occupies a role slot. Empty slots authorize nobody.
func (r ChurchRoles) IsApprover(identity string) bool {
	identity = NormalizeIdentity(identity)
	if identity == "" {
		return false
	}
	for _, required := range r.RequiredApprovers() {
		if required == identity {
			return true
		}
	}
	return false
}

// RequiredApprovers returns the de-duplicated, normalised non-empty role identities.
func (r ChurchRoles) RequiredApprovers() []string {
	out := make([]string, 0, 2)
	for _, raw := range []string{r.ManagerEmail, r.SubManagerEmail} {
		id := NormalizeIdentity(raw)
		if id == "" {
			continue
		}
		dup := false
		for _, existing := range out {
			if existing == id {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, id)
		}
	}
	return out
}

// Awaiting lists required approvers without an approved entry in approvals.
func (r ChurchRoles) Awaiting(approvals []Approval) []string {
	approved := make(map[string]struct{}, len(approvals))
	for _, a := range approvals {
		if a.Decision == DecisionApproved {
			approved[NormalizeIdentity(a.Identity)] = struct{}{}
		}
	}
	awaiting := make([]string, 0, 2)
	for _, id := range r.RequiredApprovers() {
		if _, ok := approved[id]; !ok {
			awaiting = append(awaiting, id)
		}
	}
	return awaiting
}

// Unanimous reports whether every required approver approved. With no roles configured it is never unanimous.
func (r ChurchRoles) Unanimous(approvals []Approval) bool {
	return len(r.RequiredApprovers()) > 0 && len(r.Awaiting(approvals)) == 0
}

// ChurchPreferences are display settings stored but not interpreted by the API.
type ChurchPreferences struct {
	Currency    string             `json:"currency" validate:"required,oneof=GHS USD EUR GBP"`
	Theme       string             `json:"theme" validate:"required,oneof=light dark"`
	Conversions map[string]float64 `json:"conversions,omitempty"`
}

// Church is the tenant document; its ID is the owner's uid.
type Church struct {
	ID          string            `json:"id"`
	ChurchName  string            `json:"churchName"`
	OwnerName   string            `json:"ownerName"`
	Email       string            `json:"email"`
	Preferences ChurchPreferences `json:"preferences"`
	Roles       ChurchRoles       `json:"roles"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// DefaultConversions are the starting exchange rates relative to the cedi.
func DefaultConversions() map[string]float64 {
	return map[string]float64{"GHS": 1, "USD": 0.082, "GBP": 0.064, "EUR": 0.076}
}

// NewChurch builds the document of a freshly registered church where the owner holds both roles.
func NewChurch(id, churchName, ownerName, email string, now time.Time) *Church {
	return &Church{
		ID:         id,
		ChurchName: churchName,
		OwnerName:  ownerName,
		Email:      email,
		Preferences: ChurchPreferences{
			Currency:    "GHS",
			Theme:       "light",
			Conversions: DefaultConversions(),
		},
		Roles: ChurchRoles{
			ManagerEmail:    email,
			SubManagerEmail: email,
			LastUpdated:     &now,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}
