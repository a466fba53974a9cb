// Package reconcile converges a router's forwarding table towards a desired
// rule set, one pass at a time.
package reconcile

import (
	"github.com/rs/zerolog/log"

	"github.com/ibizaman/upnpport/rules"
)

// Router is the control surface of a UPnP capable router.
type Router interface {
	ListActive() ([]rules.Rule, error)
	Apply(rules.Rule) error
}

// Reconcile applies every desired rule missing from the router's active
// listing and reports the rules it applied, in rule set order. Membership is
// full (port, protocol, external port) equality, so an entry redirecting the
// wrong external port looks missing and gets re-applied. Active entries
// absent from desired are left alone; there is no removal path.
func Reconcile(router Router, desired *rules.RuleSet) ([]rules.Rule, error) {
	active, err := router.ListActive()
	if err != nil {
		return nil, err
	}
	existing := make(map[rules.Rule]struct{}, len(active))
	for _, r := range active {
		existing[r] = struct{}{}
	}

	var applied []rules.Rule
	for _, r := range desired.Rules() {
		if _, ok := existing[r]; ok {
			log.Info().Msgf("skipping rule %s", r)
			continue
		}
		log.Info().Msgf("enforcing rule %s", r)
		if err := router.Apply(r); err != nil {
			return applied, err
		}
		applied = append(applied, r)
	}
	return applied, nil
}
