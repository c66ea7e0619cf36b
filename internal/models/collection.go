package models

import (
	"strings"
	"time"
)

// Collection names a subscribable document collection.
type Collection string

const (
	CollectionMembers       Collection = "members"
	CollectionAttendance    Collection = "attendance"
	CollectionFinance       Collection = "finance"
	CollectionGroups        Collection = "groups"
	CollectionEditRequests  Collection = "editRequests"
	CollectionNotifications Collection = "notifications"
	CollectionChurch        Collection = "church"
)

// SortDirection orders a listing.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// ParseSortDirection defaults to fallback for anything but asc/desc.
func ParseSortDirection(raw string, fallback SortDirection) SortDirection {
	switch SortDirection(strings.ToLower(strings.TrimSpace(raw))) {
	case SortAsc:
		return SortAsc
	case SortDesc:
		return SortDesc
	}
	return fallback
}

// OrderSpec is a whitelisted field and direction for a collection listing.
type OrderSpec struct {
	Field     string
	Direction SortDirection
}

var collectionOrders = map[Collection]struct {
	def     OrderSpec
	allowed []string
}{
	CollectionMembers:       {OrderSpec{"fullName", SortAsc}, []string{"fullName", "ministry", "role", "age"}},
	CollectionAttendance:    {OrderSpec{"eventDate", SortDesc}, []string{"eventDate", "eventName", "group"}},
	CollectionFinance:       {OrderSpec{"date", SortDesc}, []string{"date", "category", "amountGHS"}},
	CollectionGroups:        {OrderSpec{"name", SortAsc}, []string{"name", "leader", "nextEventDate"}},
	CollectionEditRequests:  {OrderSpec{"createdAt", SortDesc}, []string{"createdAt"}},
	CollectionNotifications: {OrderSpec{"createdAt", SortDesc}, []string{"createdAt"}},
}

// ResolveOrder returns the whitelisted ordering for a collection, falling back to its default
// field when orderBy is empty or not allowed. ok is false for collections without listings.
func ResolveOrder(c Collection, orderBy string, direction string) (OrderSpec, bool) {
	entry, ok := collectionOrders[c]
	if !ok {
		return OrderSpec{}, false
	}
	order := entry.def
	if orderBy != "" {
		for _, field := range entry.allowed {
			if field == orderBy {
				order.Field = field
				break
			}
		}
	}
	if direction != "" {
		order.Direction = ParseSortDirection(direction, order.Direction)
	}
	return order, true
}

// EntityCollection maps an entity kind to its collection.
func EntityCollection(kind EntityKind) Collection {
	return Collection(kind)
}

// ParseCollection validates a subscription target.
func ParseCollection(raw string) (Collection, bool) {
	c := Collection(strings.TrimSpace(raw))
	if c == CollectionChurch {
		return c, true
	}
	_, ok := collectionOrders[c]
	return c, ok
}

// ChangeOp describes how a document changed.
type ChangeOp string

const (
	ChangeCreated ChangeOp = "created"
	ChangeUpdated ChangeOp = "updated"
	ChangeDeleted ChangeOp = "deleted"
)

// ChangeEvent announces that a document in a church collection changed.
type ChangeEvent struct {
	ChurchID   string     `json:"churchId"`
	Collection Collection `json:"collection"`
	DocumentID string     `json:"documentId"`
	Op         ChangeOp   `json:"op"`
	At         time.Time  `json:"at"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
