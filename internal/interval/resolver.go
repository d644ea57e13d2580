// Package interval resolves the effective refresh interval for a
// (team, platform) pair. Resolution is a pure read: override first, then the
// tier default from billing, then the global fallback. Changing an override
// never touches schedules; moving mapped businesses is an explicit,
// separate orchestrator call.
package interval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"reviewsync/internal/domain"
	"reviewsync/internal/provider"
	"reviewsync/internal/store"
)

// Interval bounds in hours. 168 is one week.
const (
	MinIntervalHours = 1
	MaxIntervalHours = 168
)

type Resolver struct {
	overrides     store.OverrideStore
	billing       provider.BillingSource
	platforms     map[string]bool
	fallbackHours int
	log           zerolog.Logger
}

func NewResolver(overrides store.OverrideStore, billing provider.BillingSource, platforms []string, fallbackHours int, log zerolog.Logger) *Resolver {
	set := make(map[string]bool, len(platforms))
	for _, p := range platforms {
		set[p] = true
	}
	return &Resolver{
		overrides:     overrides,
		billing:       billing,
		platforms:     set,
		fallbackHours: fallbackHours,
		log:           log.With().Str("component", "interval").Logger(),
	}
}

func (r *Resolver) ValidatePlatform(platform string) error {
	if !r.platforms[platform] {
		return domain.Validation("platform", fmt.Sprintf("unknown platform %q", platform))
	}
	return nil
}

func (r *Resolver) ValidateInterval(hours int) error {
	if hours < MinIntervalHours || hours > MaxIntervalHours {
		return domain.Validation("interval_hours", fmt.Sprintf("%d is outside %d..%d", hours, MinIntervalHours, MaxIntervalHours))
	}
	return nil
}

// EffectiveInterval returns the interval a business of this team on this
// platform should be collected at.
func (r *Resolver) EffectiveInterval(ctx context.Context, teamID, platform string) (int, error) {
	if err := r.ValidatePlatform(platform); err != nil {
		return 0, err
	}

	o, err := r.overrides.Get(ctx, teamID, platform)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return 0, err
	}
	if o != nil && !o.Expired(time.Now()) {
		return o.IntervalHours, nil
	}

	tier, err := r.billing.GetTeamTier(ctx, teamID)
	if err == nil {
		hours, terr := r.billing.GetTierDefaultInterval(ctx, tier)
		if terr == nil && hours > 0 {
			return hours, nil
		}
		err = terr
	}
	// Billing outage falls back to the global default rather than blocking
	// tenant actions.
	r.log.Warn().Err(err).Str("team_id", teamID).Int("fallback_hours", r.fallbackHours).
		Msg("tier lookup failed, using fallback interval")
	return r.fallbackHours, nil
}

// SetCustomInterval records a per-team override. Future resolutions see it;
// existing mappings keep their batch until explicitly moved.
func (r *Resolver) SetCustomInterval(ctx context.Context, teamID, platform string, hours int, expiresAt *time.Time) error {
	if err := r.ValidatePlatform(platform); err != nil {
		return err
	}
	if err := r.ValidateInterval(hours); err != nil {
		return err
	}
	return r.overrides.Upsert(ctx, &domain.IntervalOverride{
		TeamID:        teamID,
		Platform:      platform,
		IntervalHours: hours,
		ExpiresAt:     expiresAt,
	})
}

func (r *Resolver) RemoveCustomInterval(ctx context.Context, teamID, platform string) error {
	if err := r.ValidatePlatform(platform); err != nil {
		return err
	}
	return r.overrides.Delete(ctx, teamID, platform)
}
