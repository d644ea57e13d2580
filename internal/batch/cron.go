package batch

import (
	"fmt"

	"github.com/robfig/cron/v3"

	"reviewsync/internal/domain"
)

// CronForInterval derives the recurring expression for an hourly interval.
// Divisors of 24 keep runs aligned to the day (`0 */6 * * *`); anything else
// uses the @every form. The result is validated before use.
func CronForInterval(hours int) (string, error) {
	if hours <= 0 {
		return "", domain.Validation("interval_hours", fmt.Sprintf("%d must be positive", hours))
	}
	var expr string
	if hours <= 23 && 24%hours == 0 {
		expr = fmt.Sprintf("0 */%d * * *", hours)
	} else if hours%24 == 0 {
		days := hours / 24
		if days == 1 {
			expr = "0 0 * * *"
		} else {
			expr = fmt.Sprintf("@every %dh", hours)
		}
	} else {
		expr = fmt.Sprintf("@every %dh", hours)
	}
	if _, err := cron.ParseStandard(expr); err != nil {
		return "", fmt.Errorf("derived cron %q did not parse: %w", expr, err)
	}
	return expr, nil
}
