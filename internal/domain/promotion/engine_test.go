package promotion

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mercatus/internal/core/currency"
	"mercatus/internal/core/entity"
	"mercatus/internal/core/id"
)

type memRules struct {
	rules []*Rule
}

func (m *memRules) ActiveForVariant(ctx context.Context, variantID id.ID) ([]*Rule, error) {
	var out []*Rule
	for _, r := range m.rules {
		if r.VariantID == variantID && r.Active {
			out = append(out, r)
		}
	}
	return out, nil
}

type identityConverter struct{}

func (identityConverter) ConvertAmount(ctx context.Context, amount decimal.Decimal, from, to currency.Code) (decimal.Decimal, error) {
	return amount, nil
}

func rule(variantID id.ID, code, expr string, action Action, value string) *Rule {
	return &Rule{
		Catalog:    entity.NewCatalog(code, code),
		VariantID:  variantID,
		Expression: expr,
		Action:     action,
		Value:      decimal.RequireFromString(value),
		Active:     true,
	}
}

func TestEnginePercentOffEligibility(t *testing.T) {
	variantID := id.New()
	repo := &memRules{rules: []*Rule{
		rule(variantID, "BULK20", `qty >= 3 && account_type == "wholesale"`, ActionPercentOff, "20"),
	}}
	engine, err := NewEngine(repo, identityConverter{})
	require.NoError(t, err)
	ctx := context.Background()

	// Eligible: 100 -> 80.
	res, err := engine.Preview(ctx, PreviewRequest{
		VariantID:   variantID,
		Currency:    currency.USD,
		Qty:         3,
		AccountType: "wholesale",
		UnitBase:    decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "BULK20", res.RuleCode)
	assert.True(t, res.UnitFinal.Equal(decimal.NewFromInt(80)), "got %s", res.UnitFinal)

	// Not eligible: qty below threshold.
	res, err = engine.Preview(ctx, PreviewRequest{
		VariantID:   variantID,
		Currency:    currency.USD,
		Qty:         2,
		AccountType: "wholesale",
		UnitBase:    decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestEngineFixedPriceConverts(t *testing.T) {
	variantID := id.New()
	repo := &memRules{rules: []*Rule{
		rule(variantID, "FLAT50", "qty >= 1", ActionFixedPrice, "50"),
	}}
	engine, err := NewEngine(repo, identityConverter{})
	require.NoError(t, err)

	res, err := engine.Preview(context.Background(), PreviewRequest{
		VariantID: variantID,
		Currency:  currency.USD,
		Qty:       1,
		UnitBase:  decimal.NewFromInt(90),
	})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.UnitFinal.Equal(decimal.NewFromInt(50)))
}

func TestEngineSkipsBrokenExpressions(t *testing.T) {
	variantID := id.New()
	repo := &memRules{rules: []*Rule{
		rule(variantID, "BROKEN", `qty >>> nonsense`, ActionPercentOff, "10"),
		rule(variantID, "SOUND", "qty >= 1", ActionPercentOff, "10"),
	}}
	engine, err := NewEngine(repo, identityConverter{})
	require.NoError(t, err)

	res, err := engine.Preview(context.Background(), PreviewRequest{
		VariantID: variantID,
		Qty:       1,
		Currency:  currency.USD,
		UnitBase:  decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	require.NotNil(t, res, "broken rule skipped, next rule applies")
	assert.Equal(t, "SOUND", res.RuleCode)
}

func TestEngineNoRulesForOtherVariant(t *testing.T) {
	repo := &memRules{rules: []*Rule{
		rule(id.New(), "OTHER", "true", ActionPercentOff, "10"),
	}}
	engine, err := NewEngine(repo, identityConverter{})
	require.NoError(t, err)

	res, err := engine.Preview(context.Background(), PreviewRequest{
		VariantID: id.New(),
		Qty:       1,
		Currency:  currency.USD,
		UnitBase:  decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	assert.Nil(t, res)
}
