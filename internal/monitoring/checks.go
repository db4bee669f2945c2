package monitoring

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/crewbell/internal/sound"
)

const defaultDatabaseTimeout = 2 * time.Second

// DatabaseCheck pings the database. A zero timeout uses two seconds.
func DatabaseCheck(db *gorm.DB, timeout time.Duration) Check {
	if timeout <= 0 {
		timeout = defaultDatabaseTimeout
	}
	return NewCheck("database", func(ctx context.Context) ProbeResult {
		if db == nil {
			return ProbeResult{Status: StatusDown, Details: "database not configured"}
		}
		sqlDB, err := db.DB()
		if err != nil {
			return ResultFromError(err)
		}

		probeCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return ResultFromError(sqlDB.PingContext(probeCtx))
	})
}

// SoundStatuses reports alert sound load states. *sound.Preloader implements it.
type SoundStatuses interface {
	Statuses() []sound.Status
}

// SoundCheck reports degraded while any alert sound is unavailable. Alerts are
// still recorded without sound, so it never reports down.
func SoundCheck(src SoundStatuses) Check {
	return NewCheck("sounds", func(context.Context) ProbeResult {
		if src == nil {
			return ProbeResult{Status: StatusDegraded, Details: "sound preloader unavailable"}
		}

		var loaded, pending int
		var failed []string
		for _, status := range src.Statuses() {
			switch status.State {
			case sound.StateLoaded:
				loaded++
			case sound.StateErrored:
				failed = append(failed, status.ID)
			default:
				pending++
			}
		}

		switch {
		case loaded == 0 && pending > 0:
			return ProbeResult{Status: StatusDegraded, Details: fmt.Sprintf("%d sounds still loading", pending)}
		case loaded == 0:
			return ProbeResult{Status: StatusDegraded, Details: "no alert sound available"}
		case len(failed) > 0:
			return ProbeResult{Status: StatusDegraded, Details: "failed: " + strings.Join(failed, ", ")}
		}
		return ProbeResult{Status: StatusUp}
	})
}
