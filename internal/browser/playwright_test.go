package browser

import (
	"context"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitStrategy(t *testing.T) {
	assert.Equal(t, playwright.WaitUntilStateNetworkidle, WaitStrategy("https://procurement.opengov.com/portal/austintx"))
	assert.Equal(t, playwright.WaitUntilStateNetworkidle, WaitStrategy("https://Procurement.OpenGov.com/x"))
	assert.Equal(t, playwright.WaitUntilStateDomcontentloaded, WaitStrategy("https://bids.example.gov/list"))
}

func TestVerificationFromTitle(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"Just a moment...", "Cloudflare"},
		{"Attention Required! | Cloudflare", "Cloudflare"},
		{"Are you a robot?", "CAPTCHA"},
		{"Current Bid Opportunities", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			assert.Equal(t, tt.want, VerificationFromTitle(tt.title))
		})
	}
}

func TestTimeoutMsHonorsDeadline(t *testing.T) {
	got := timeoutMs(context.Background(), 10*time.Second)
	require.NotNil(t, got)
	assert.Equal(t, float64(10000), *got)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got = timeoutMs(ctx, 10*time.Second)
	assert.LessOrEqual(t, *got, float64(2000))
	assert.Greater(t, *got, float64(0))
}

func TestSessionWaitStopsOnCancel(t *testing.T) {
	s := &Session{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Wait(ctx, time.Hour), context.Canceled)
	assert.NoError(t, s.Wait(context.Background(), 0))
}
