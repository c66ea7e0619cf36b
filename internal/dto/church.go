package dto

// UpdateRolesRequest assigns the manager and sub-manager approvers.
type UpdateRolesRequest struct {
	ManagerEmail    string `json:"managerEmail" validate:"required,email"`
	SubManagerEmail string `json:"subManagerEmail" validate:"required,email"`
}

// UpdatePreferencesRequest stores display preferences.
type UpdatePreferencesRequest struct {
	Currency    string             `json:"currency" validate:"required,oneof=GHS USD EUR GBP"`
	Theme       string             `json:"theme" validate:"required,oneof=light dark"`
	Conversions map[string]float64 `json:"conversions,omitempty" validate:"omitempty,dive,gt=0"`
}
