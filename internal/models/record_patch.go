package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// MemberPatch holds optional member fields; nil fields are left untouched.
type MemberPatch struct {
	FullName *string `json:"fullName,omitempty" validate:"omitempty,min=1"`
	Gender   *string `json:"gender,omitempty"`
	Age      *int    `json:"age,omitempty" validate:"omitempty,gte=0,lte=150"`
	Phone    *string `json:"phone,omitempty"`
	Address  *string `json:"address,omitempty"`
	Ministry *string `json:"ministry,omitempty"`
	Role     *string `json:"role,omitempty"`
	Notes    *string `json:"notes,omitempty"`
	PhotoURL *string `json:"photoUrl,omitempty"`
}

func (p *MemberPatch) apply(m *Member) {
	setString(&m.FullName, p.FullName)
	setString(&m.Gender, p.Gender)
	if p.Age != nil {
		age := *p.Age
		m.Age = &age
	}
	setString(&m.Phone, p.Phone)
	setString(&m.Address, p.Address)
	setString(&m.Ministry, p.Ministry)
	setString(&m.Role, p.Role)
	setString(&m.Notes, p.Notes)
	setString(&m.PhotoURL, p.PhotoURL)
}

// AttendancePatch holds optional attendance fields.
type AttendancePatch struct {
	EventName *string `json:"eventName,omitempty" validate:"omitempty,min=1"`
	EventDate *string `json:"eventDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Group     *string `json:"group,omitempty"`
	Present   *int    `json:"present,omitempty" validate:"omitempty,gte=0"`
	Expected  *int    `json:"expected,omitempty" validate:"omitempty,gte=0"`
	Notes     *string `json:"notes,omitempty"`
}

func (p *AttendancePatch) apply(a *Attendance) {
	setString(&a.EventName, p.EventName)
	setString(&a.EventDate, p.EventDate)
	setString(&a.Group, p.Group)
	if p.Present != nil {
		v := *p.Present
		a.Present = &v
	}
	if p.Expected != nil {
		v := *p.Expected
		a.Expected = &v
	}
	setString(&a.Notes, p.Notes)
}

// FinancePatch holds optional finance fields.
type FinancePatch struct {
	Date      *string  `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Category  *string  `json:"category,omitempty" validate:"omitempty,min=1"`
	Notes     *string  `json:"notes,omitempty"`
	AmountGHS *float64 `json:"amountGHS,omitempty"`
}

func (p *FinancePatch) apply(f *FinanceEntry) {
	setString(&f.Date, p.Date)
	setString(&f.Category, p.Category)
	setString(&f.Notes, p.Notes)
	if p.AmountGHS != nil {
		f.AmountGHS = *p.AmountGHS
	}
}

// GroupPatch holds optional group fields.
type GroupPatch struct {
	Name          *string `json:"name,omitempty" validate:"omitempty,min=1"`
	Leader        *string `json:"leader,omitempty"`
	Members       *int    `json:"members,omitempty" validate:"omitempty,gte=0"`
	NextEventDate *string `json:"nextEventDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Status        *string `json:"status,omitempty"`
	Overview      *string `json:"overview,omitempty"`
}

func (p *GroupPatch) apply(g *Group) {
	setString(&g.Name, p.Name)
	setString(&g.Leader, p.Leader)
	if p.Members != nil {
		v := *p.Members
		g.Members = &v
	}
	setString(&g.NextEventDate, p.NextEventDate)
	setString(&g.Status, p.Status)
	setString(&g.Overview, p.Overview)
}

// RecordPatch is a partial update for exactly one entity kind. Only the field matching Entity is set.
type RecordPatch struct {
	Entity     EntityKind
	Member     *MemberPatch
	Attendance *AttendancePatch
	Finance    *FinancePatch
	Group      *GroupPatch
}

// DecodeRecordPatch strictly decodes a request payload into the patch type of kind.
func DecodeRecordPatch(kind EntityKind, raw json.RawMessage) (*RecordPatch, error) {
	if isNullJSON(raw) {
		return nil, nil
	}
	patch := &RecordPatch{Entity: kind}
	var target interface{}
	switch kind {
	case EntityMembers:
		patch.Member = &MemberPatch{}
		target = patch.Member
	case EntityAttendance:
		patch.Attendance = &AttendancePatch{}
		target = patch.Attendance
	case EntityFinance:
		patch.Finance = &FinancePatch{}
		target = patch.Finance
	case EntityGroups:
		patch.Group = &GroupPatch{}
		target = patch.Group
	default:
		return nil, fmt.Errorf("unknown entity %q", kind)
	}
	if err := decodeStrict(raw, target); err != nil {
		return nil, err
	}
	return patch, nil
}

// Fields returns the typed patch for validation.
func (p *RecordPatch) Fields() interface{} {
	if p == nil {
		return nil
	}
	switch p.Entity {
	case EntityMembers:
		return p.Member
	case EntityAttendance:
		return p.Attendance
	case EntityFinance:
		return p.Finance
	case EntityGroups:
		return p.Group
	}
	return nil
}

// Empty reports whether the patch carries no field at all.
func (p *RecordPatch) Empty() bool {
	if p == nil {
		return true
	}
	raw, err := p.MarshalJSON()
	if err != nil {
		return true
	}
	return bytes.Equal(bytes.TrimSpace(raw), []byte("{}")) || isNullJSON(raw)
}

// EntityName picks the display label carried by the patch, falling back to fallback.
func (p *RecordPatch) EntityName(fallback string) string {
	if p == nil {
		return fallback
	}
	var candidates []*string
	switch p.Entity {
	case EntityMembers:
		if p.Member != nil {
			candidates = append(candidates, p.Member.FullName)
		}
	case EntityAttendance:
		if p.Attendance != nil {
			candidates = append(candidates, p.Attendance.EventName)
		}
	case EntityGroups:
		if p.Group != nil {
			candidates = append(candidates, p.Group.Name)
		}
	case EntityFinance:
		if p.Finance != nil {
			candidates = append(candidates, p.Finance.Category)
		}
	}
	for _, c := range candidates {
		if c != nil && *c != "" {
			return *c
		}
	}
	return fallback
}

// Merge applies the patch on top of an existing document and returns the merged document.
func (p *RecordPatch) Merge(data json.RawMessage) (json.RawMessage, error) {
	if p == nil {
		return nil, errors.New("nil patch")
	}
	switch p.Entity {
	case EntityMembers:
		var doc Member
		if err := unmarshalDocument(data, &doc); err != nil {
			return nil, err
		}
		if p.Member != nil {
			p.Member.apply(&doc)
		}
		return json.Marshal(doc)
	case EntityAttendance:
		var doc Attendance
		if err := unmarshalDocument(data, &doc); err != nil {
			return nil, err
		}
		if p.Attendance != nil {
			p.Attendance.apply(&doc)
		}
		return json.Marshal(doc)
	case EntityFinance:
		var doc FinanceEntry
		if err := unmarshalDocument(data, &doc); err != nil {
			return nil, err
		}
		if p.Finance != nil {
			p.Finance.apply(&doc)
		}
		return json.Marshal(doc)
	case EntityGroups:
		var doc Group
		if err := unmarshalDocument(data, &doc); err != nil {
			return nil, err
		}
		if p.Group != nil {
			p.Group.apply(&doc)
		}
		return json.Marshal(doc)
	}
	return nil, fmt.Errorf("unknown entity %q", p.Entity)
}

// MarshalJSON emits the wire payload object of the set patch.
func (p RecordPatch) MarshalJSON() ([]byte, error) {
	fields := p.Fields()
	if fields == nil {
		return []byte("null"), nil
	}
	return json.Marshal(fields)
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func unmarshalDocument(data json.RawMessage, doc interface{}) error {
	if isNullJSON(data) {
		return nil
	}
	if err := json.Unmarshal(data, doc); err != nil {
		return fmt.Errorf("decode stored document: %w", err)
	}
	return nil
}

func decodeStrict(raw json.RawMessage, target interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return errors.New("unexpected trailing data")
	}
	return nil
}

func isNullJSON(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
