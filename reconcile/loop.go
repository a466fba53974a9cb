package reconcile

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ibizaman/upnpport/rules"
)

const DefaultInterval = 300 * time.Second

// Loop runs reconciliation passes forever, on a fixed cadence.
type Loop struct {
	Router   Router
	Paths    []string // config search list, later entries win
	Interval time.Duration
	Reload   <-chan os.Signal
}

// Run loads the initial rule set, then cycles reconcile/sleep until ctx is
// cancelled. A value on Reload swaps in a freshly loaded rule set; a pass
// already in flight never sees the swap, only the next one does. Router
// errors are not retried, they propagate and end the loop.
func (l *Loop) Run(ctx context.Context) error {
	interval := l.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	desired, err := rules.LoadFirst(l.Paths)
	if err != nil {
		return err
	}

	for {
		if _, err := Reconcile(l.Router, desired); err != nil {
			return err
		}

		log.Info().Msgf("sleeping for %s", interval)
		timer := time.NewTimer(interval)
	sleeping:
		for {
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil
			case <-l.Reload:
				fresh, err := rules.LoadFirst(l.Paths)
				if err != nil {
					// The previous rule set is still good, keep it.
					log.Error().Err(err).Msg("reload failed, keeping previous rules")
					continue
				}
				desired = fresh
				log.Info().Msg("reloaded configuration file")
			case <-timer.C:
				break sleeping
			}
		}
	}
}
