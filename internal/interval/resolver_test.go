package interval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reviewsync/internal/store/memory"
)

type fakeBilling struct {
	tier      string
	tierErr   error
	intervals map[string]int
}

func (f *fakeBilling) GetTeamTier(_ context.Context, _ string) (string, error) {
	return f.tier, f.tierErr
}

func (f *fakeBilling) GetTierDefaultInterval(_ context.Context, tier string) (int, error) {
	hours, ok := f.intervals[tier]
	if !ok {
		return 0, errors.New("unknown tier")
	}
	return hours, nil
}

func newTestResolver(t *testing.T, billing *fakeBilling) *Resolver {
	t.Helper()
	stores := memory.New().Stores()
	return NewResolver(stores.Overrides, billing, []string{"google_reviews", "facebook_reviews"}, 24, zerolog.Nop())
}

func TestEffectiveIntervalTierDefault(t *testing.T) {
	r := newTestResolver(t, &fakeBilling{tier: "pro", intervals: map[string]int{"pro": 6}})

	hours, err := r.EffectiveInterval(context.Background(), "team-1", "google_reviews")
	require.NoError(t, err)
	assert.Equal(t, 6, hours)
}

func TestEffectiveIntervalOverrideWins(t *testing.T) {
	r := newTestResolver(t, &fakeBilling{tier: "pro", intervals: map[string]int{"pro": 6}})
	ctx := context.Background()

	require.NoError(t, r.SetCustomInterval(ctx, "team-1", "google_reviews", 2, nil))

	hours, err := r.EffectiveInterval(ctx, "team-1", "google_reviews")
	require.NoError(t, err)
	assert.Equal(t, 2, hours)

	// The override is scoped to its platform.
	hours, err = r.EffectiveInterval(ctx, "team-1", "facebook_reviews")
	require.NoError(t, err)
	assert.Equal(t, 6, hours)
}

func TestEffectiveIntervalExpiredOverrideIgnored(t *testing.T) {
	r := newTestResolver(t, &fakeBilling{tier: "pro", intervals: map[string]int{"pro": 6}})
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	require.NoError(t, r.SetCustomInterval(ctx, "team-1", "google_reviews", 2, &past))

	hours, err := r.EffectiveInterval(ctx, "team-1", "google_reviews")
	require.NoError(t, err)
	assert.Equal(t, 6, hours)
}

func TestEffectiveIntervalBillingOutageFallsBack(t *testing.T) {
	r := newTestResolver(t, &fakeBilling{tierErr: errors.New("billing down")})

	hours, err := r.EffectiveInterval(context.Background(), "team-1", "google_reviews")
	require.NoError(t, err, "billing outage must not block resolution")
	assert.Equal(t, 24, hours)
}

func TestEffectiveIntervalUnknownTierFallsBack(t *testing.T) {
	r := newTestResolver(t, &fakeBilling{tier: "legacy", intervals: map[string]int{"pro": 6}})

	hours, err := r.EffectiveInterval(context.Background(), "team-1", "google_reviews")
	require.NoError(t, err)
	assert.Equal(t, 24, hours)
}

func TestRemoveCustomIntervalRestoresTierDefault(t *testing.T) {
	r := newTestResolver(t, &fakeBilling{tier: "pro", intervals: map[string]int{"pro": 6}})
	ctx := context.Background()

	require.NoError(t, r.SetCustomInterval(ctx, "team-1", "google_reviews", 2, nil))
	require.NoError(t, r.RemoveCustomInterval(ctx, "team-1", "google_reviews"))

	hours, err := r.EffectiveInterval(ctx, "team-1", "google_reviews")
	require.NoError(t, err)
	assert.Equal(t, 6, hours)
}

func TestValidation(t *testing.T) {
	r := newTestResolver(t, &fakeBilling{})
	ctx := context.Background()

	assert.Error(t, r.ValidatePlatform("yelp_reviews"))
	assert.Error(t, r.SetCustomInterval(ctx, "team-1", "google_reviews", 0, nil))
	assert.Error(t, r.SetCustomInterval(ctx, "team-1", "google_reviews", 169, nil))
	assert.Error(t, r.SetCustomInterval(ctx, "team-1", "yelp_reviews", 6, nil))

	_, err := r.EffectiveInterval(ctx, "team-1", "yelp_reviews")
	assert.Error(t, err)
}
