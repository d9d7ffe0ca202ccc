package budget

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		spent    string
		budget   string
		wantTier Tier
		wantMsg  string
	}{
		{name: "nothing spent", spent: "0", budget: "50"},
		{name: "just below warning", spent: "39.995", budget: "50"},
		{name: "exactly 80 percent", spent: "40", budget: "50", wantTier: TierWarning, wantMsg: "You've spent 80% of today's budget"},
		{name: "warning rounds percentage", spent: "46.26", budget: "50", wantTier: TierWarning, wantMsg: "You've spent 93% of today's budget"},
		{name: "exactly at budget", spent: "50", budget: "50", wantTier: TierDanger, wantMsg: "Daily budget reached!"},
		{name: "just below critical", spent: "59.99", budget: "50", wantTier: TierDanger, wantMsg: "Daily budget reached!"},
		{name: "exactly 120 percent", spent: "60", budget: "50", wantTier: TierCritical, wantMsg: "You're over budget by 20%!"},
		{name: "122 percent", spent: "61", budget: "50", wantTier: TierCritical, wantMsg: "You're over budget by 22%!"},
		{name: "triple budget", spent: "150", budget: "50", wantTier: TierCritical, wantMsg: "You're over budget by 200%!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alert := Classify(d(tt.spent), d(tt.budget))
			if tt.wantTier == "" {
				assert.Nil(t, alert)
				return
			}
			require.NotNil(t, alert)
			assert.Equal(t, tt.wantTier, alert.Tier)
			assert.Equal(t, tt.wantMsg, alert.Message)
		})
	}
}

func TestClassify_PercentageBoundary(t *testing.T) {
	// 79.99% of 100 is below the warning tier, 80.00% is in it.
	assert.Nil(t, Classify(d("79.99"), d("100")))

	alert := Classify(d("80.00"), d("100"))
	require.NotNil(t, alert)
	assert.Equal(t, TierWarning, alert.Tier)
	assert.True(t, alert.Percentage.Equal(d("80")))
}

func TestClassify_DisabledBudget(t *testing.T) {
	assert.Nil(t, Classify(d("500"), decimal.Zero))
	assert.Nil(t, Classify(d("500"), d("-10")))
}

func TestLevelFor(t *testing.T) {
	budget := d("100")

	assert.Equal(t, LevelSafe, LevelFor(d("49.99"), budget))
	assert.Equal(t, LevelCaution, LevelFor(d("50"), budget))
	assert.Equal(t, LevelDanger, LevelFor(d("80"), budget))
	assert.Equal(t, LevelOver, LevelFor(d("100"), budget))
	assert.Equal(t, LevelSafe, LevelFor(d("100"), decimal.Zero))
}
