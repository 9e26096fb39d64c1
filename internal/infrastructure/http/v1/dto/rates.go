package dto

import (
	"time"

	"mercatus/internal/domain/rates"
)

// UpdateRatesRequest carries new home-to-foreign rates. Values accept both
// JSON numbers and locale-formatted strings ("0.92", "0,92", 147).
type UpdateRatesRequest struct {
	Rates map[string]any `json:"rates" binding:"required"`
	Notes string         `json:"notes"`
}

// ConvertRequest is a single conversion. Amount accepts both JSON numbers
// and locale-formatted strings ("1 234,56", "$1,234.56").
type ConvertRequest struct {
	Amount any    `json:"amount" binding:"required"`
	From   string `json:"from" binding:"required"`
	To     string `json:"to" binding:"required"`
}

// ConvertResponse is the conversion result.
type ConvertResponse struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Amount      string `json:"amount"`
	Rate        string `json:"rate"`
	Result      string `json:"result"`
	Formatted   string `json:"formatted"`
	RateVersion string `json:"rateVersion"`
}

// SnapshotResponse is one rate snapshot.
type SnapshotResponse struct {
	Version     string            `json:"version"`
	EffectiveAt time.Time         `json:"effectiveAt"`
	UpdatedBy   string            `json:"updatedBy,omitempty"`
	Notes       string            `json:"notes,omitempty"`
	Rates       map[string]string `json:"rates"`
}

// NewSnapshotResponse maps a snapshot for the wire.
func NewSnapshotResponse(snap *rates.Snapshot) SnapshotResponse {
	out := SnapshotResponse{
		Version:     snap.Version(),
		EffectiveAt: snap.EffectiveAt,
		UpdatedBy:   snap.UpdatedBy,
		Notes:       snap.Notes,
		Rates:       make(map[string]string, len(snap.HomeToForeign)),
	}
	for code, rate := range snap.HomeToForeign {
		out.Rates[string(code)] = rate.String()
	}
	return out
}
