package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"go-procurement-agent/internal/models"
)

func TestPaginatorDecide(t *testing.T) {
	p := Paginator{MaxPages: 20, MaxActions: 10}
	tests := []struct {
		name    string
		more    bool
		scroll  bool
		page    int
		actions int
		want    Decision
	}{
		{"no more listings", false, true, 1, 0, DecisionStop},
		{"scroll first", true, true, 1, 2, DecisionScroll},
		{"scroll without budget", true, true, 1, 10, DecisionNextPage},
		{"next page", true, false, 4, 3, DecisionNextPage},
		{"last page", true, false, 20, 0, DecisionBudgetStop},
		{"scroll on last page", true, true, 20, 0, DecisionScroll},
		{"stop beats budget", false, false, 20, 10, DecisionStop},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := &models.ExtractionResult{HasMoreOpportunities: tt.more, NeedsScrolling: tt.scroll}
			assert.Equal(t, tt.want, p.Decide(res, tt.page, tt.actions))
		})
	}
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, "budget_stop", DecisionBudgetStop.String())
	assert.Equal(t, "unknown", Decision(42).String())
}
