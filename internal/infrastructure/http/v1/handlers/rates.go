package handlers

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"mercatus/internal/core/apperror"
	"mercatus/internal/core/currency"
	"mercatus/internal/domain/rates"
	"mercatus/internal/infrastructure/http/v1/dto"
	"mercatus/pkg/numparse"
)

// RatesHandler serves exchange-rate management and conversion endpoints.
type RatesHandler struct {
	*BaseHandler
	service *rates.Service
}

// NewRatesHandler creates a rates handler.
func NewRatesHandler(service *rates.Service) *RatesHandler {
	return &RatesHandler{
		BaseHandler: NewBaseHandler(),
		service:     service,
	}
}

// parseFlexibleNumber accepts the JSON value shapes clients actually send:
// numbers, and strings in assorted locale formats.
func parseFlexibleNumber(v any) (decimal.Decimal, bool) {
	switch val := v.(type) {
	case string:
		return numparse.Parse(val)
	case float64:
		return decimal.NewFromFloat(val), true
	case int:
		return decimal.NewFromInt(int64(val)), true
	default:
		return decimal.Decimal{}, false
	}
}

// Current returns the active rate snapshot.
// GET /api/v1/rates
func (h *RatesHandler) Current(c *gin.Context) {
	snap, err := h.service.CurrentRates(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewSnapshotResponse(snap))
}

// Update appends a new rate snapshot and kicks off price resync.
// POST /api/v1/rates
func (h *RatesHandler) Update(c *gin.Context) {
	var req dto.UpdateRatesRequest
	if !h.BindJSON(c, &req) {
		return
	}

	homeToForeign := make(map[currency.Code]decimal.Decimal, len(req.Rates))
	for rawCode, rawRate := range req.Rates {
		code, err := currency.Parse(rawCode)
		if err != nil {
			h.Error(c, err)
			return
		}
		rate, ok := parseFlexibleNumber(rawRate)
		if !ok {
			h.Error(c, apperror.NewValidation("unparseable rate value").
				WithDetail("currency", rawCode).
				WithDetail("value", fmt.Sprintf("%v", rawRate)))
			return
		}
		homeToForeign[code] = rate
	}

	snap, err := h.service.UpdateRates(c.Request.Context(), homeToForeign, h.ActorID(c), req.Notes)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewSnapshotResponse(snap))
}

// History lists recent snapshots.
// GET /api/v1/rates/history?limit=20
func (h *RatesHandler) History(c *gin.Context) {
	limit := h.ParseIntQuery(c, "limit", 20)

	snaps, err := h.service.History(c.Request.Context(), limit)
	if err != nil {
		h.Error(c, err)
		return
	}

	out := make([]dto.SnapshotResponse, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, dto.NewSnapshotResponse(snap))
	}
	h.OK(c, out)
}

// Convert converts an amount between two supported currencies.
// POST /api/v1/convert
func (h *RatesHandler) Convert(c *gin.Context) {
	var req dto.ConvertRequest
	if !h.BindJSON(c, &req) {
		return
	}

	amount, ok := parseFlexibleNumber(req.Amount)
	if !ok {
		h.Error(c, apperror.NewValidation("unparseable amount").
			WithDetail("value", fmt.Sprintf("%v", req.Amount)))
		return
	}

	conv, err := h.service.Convert(c.Request.Context(), amount, req.From, req.To)
	if err != nil {
		h.Error(c, err)
		return
	}

	// The target code parsed inside Convert; re-parse here only to format.
	to, err := currency.Parse(req.To)
	if err != nil {
		h.Error(c, err)
		return
	}
	snap, err := h.service.CurrentRates(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.ConvertResponse{
		From:        req.From,
		To:          req.To,
		Amount:      amount.String(),
		Rate:        conv.Rate.String(),
		Result:      conv.Result.String(),
		Formatted:   currency.Format(conv.Result, to),
		RateVersion: snap.Version(),
	})
}
