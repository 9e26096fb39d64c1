package dto

import (
	"encoding/json"
	"time"
)

// UpdatePricesRequest is an admin edit of home-currency prices. Values
// accept both JSON numbers and locale-formatted strings; a field set to
// JSON null clears the stored value (base price cannot be cleared).
type UpdatePricesRequest struct {
	BasePriceHome      any  `json:"basePriceHome,omitempty"`
	CompareAtPriceHome any  `json:"compareAtPriceHome,omitempty"`
	CostPriceHome      any  `json:"costPriceHome,omitempty"`
	ClearCompareAt     bool `json:"clearCompareAt,omitempty"`
	ClearCost          bool `json:"clearCost,omitempty"`
}

// AuditEntryResponse is one audit record of an entity, payload inflated.
type AuditEntryResponse struct {
	ID         string          `json:"id"`
	EntityType string          `json:"entityType"`
	EntityID   string          `json:"entityId"`
	Action     string          `json:"action"`
	ActorID    string          `json:"actorId,omitempty"`
	ActorEmail string          `json:"actorEmail,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}
