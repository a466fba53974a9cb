package rules

import (
	"fmt"
	"strings"

	"github.com/google/gopacket/layers"
)

var (
	ErrRuleNotFound = fmt.Errorf("rule not found")
	ErrBadProtocol  = fmt.Errorf("protocol must be tcp or udp")
	ErrBadPort      = fmt.Errorf("port must be between 1 and 65535")
)

// ParseProtocol accepts the tcp/udp tokens found in config files and upnpc
// listings, in any case.
func ParseProtocol(s string) (layers.IPProtocol, error) {
	switch strings.ToLower(s) {
	case "tcp":
		return layers.IPProtocolTCP, nil
	case "udp":
		return layers.IPProtocolUDP, nil
	}
	return 0, fmt.Errorf("%w, got %q", ErrBadProtocol, s)
}

// ProtocolString is the lowercase form upnpc and the config file expect.
func ProtocolString(p layers.IPProtocol) string {
	return strings.ToLower(p.String())
}

// Key identifies a forwarding rule. At most one rule exists per key.
type Key struct {
	Port     uint16
	Protocol layers.IPProtocol
}

// Rule is one port forwarding rule, internal port to external port.
type Rule struct {
	Port         uint16
	ExternalPort uint16
	Protocol     layers.IPProtocol
}

// NewRule is the only place the external port default is derived: 0 means
// same as the internal port. Everything comparing rules relies on this.
func NewRule(port, externalPort uint16, protocol layers.IPProtocol) Rule {
	if externalPort == 0 {
		externalPort = port
	}
	return Rule{Port: port, ExternalPort: externalPort, Protocol: protocol}
}

func (r Rule) Key() Key {
	return Key{Port: r.Port, Protocol: r.Protocol}
}

func (r Rule) String() string {
	return fmt.Sprintf("%d->%d %s", r.Port, r.ExternalPort, ProtocolString(r.Protocol))
}

// RuleSet holds the desired forwarding rules, keyed by (port, protocol).
// Iteration order is insertion order, so passes and dumps are stable.
type RuleSet struct {
	order []Key
	table map[Key]uint16 // external port per key
}

func NewRuleSet() *RuleSet {
	return &RuleSet{table: make(map[Key]uint16)}
}

// Add inserts the rule, replacing any rule already at its key. A replaced
// rule keeps its original position.
func (s *RuleSet) Add(port, externalPort uint16, protocol layers.IPProtocol) {
	r := NewRule(port, externalPort, protocol)
	k := r.Key()
	if _, ok := s.table[k]; !ok {
		s.order = append(s.order, k)
	}
	s.table[k] = r.ExternalPort
}

func (s *RuleSet) Remove(port uint16, protocol layers.IPProtocol) error {
	k := Key{Port: port, Protocol: protocol}
	if _, ok := s.table[k]; !ok {
		return fmt.Errorf("%w: %d %s", ErrRuleNotFound, port, ProtocolString(protocol))
	}
	delete(s.table, k)
	for i := range s.order {
		if s.order[i] == k {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Rules returns a snapshot in insertion order.
func (s *RuleSet) Rules() []Rule {
	out := make([]Rule, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, NewRule(k.Port, s.table[k], k.Protocol))
	}
	return out
}

func (s *RuleSet) Len() int {
	return len(s.table)
}
