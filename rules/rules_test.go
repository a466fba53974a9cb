package rules

import (
	"testing"

	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/require"
)

func TestParseProtocol(t *testing.T) {
	for _, s := range []string{"tcp", "TCP", "Tcp"} {
		p, err := ParseProtocol(s)
		require.Nil(t, err)
		require.Equal(t, layers.IPProtocolTCP, p)
	}
	p, err := ParseProtocol("udp")
	require.Nil(t, err)
	require.Equal(t, layers.IPProtocolUDP, p)

	_, err = ParseProtocol("icmp")
	require.ErrorIs(t, err, ErrBadProtocol)
	_, err = ParseProtocol("")
	require.ErrorIs(t, err, ErrBadProtocol)

	require.Equal(t, "tcp", ProtocolString(layers.IPProtocolTCP))
	require.Equal(t, "udp", ProtocolString(layers.IPProtocolUDP))
}

func TestExternalPortDefaults(t *testing.T) {
	implicit := NewRule(8080, 0, layers.IPProtocolTCP)
	explicit := NewRule(8080, 8080, layers.IPProtocolTCP)
	require.Equal(t, explicit, implicit)

	s1 := NewRuleSet()
	s1.Add(8080, 0, layers.IPProtocolTCP)
	s2 := NewRuleSet()
	s2.Add(8080, 8080, layers.IPProtocolTCP)
	require.Equal(t, s1.Rules(), s2.Rules())
}

func TestAddReplacesAtKey(t *testing.T) {
	s := NewRuleSet()
	s.Add(80, 8080, layers.IPProtocolTCP)
	s.Add(53, 0, layers.IPProtocolUDP)
	s.Add(80, 9090, layers.IPProtocolTCP) // replaces, keeps position
	require.Equal(t, 2, s.Len())
	require.Equal(t, []Rule{
		{Port: 80, ExternalPort: 9090, Protocol: layers.IPProtocolTCP},
		{Port: 53, ExternalPort: 53, Protocol: layers.IPProtocolUDP},
	}, s.Rules())
}

func TestSamePortDifferentProtocol(t *testing.T) {
	s := NewRuleSet()
	s.Add(53, 0, layers.IPProtocolTCP)
	s.Add(53, 0, layers.IPProtocolUDP)
	require.Equal(t, 2, s.Len())
}

func TestRemove(t *testing.T) {
	s := NewRuleSet()
	s.Add(80, 0, layers.IPProtocolTCP)
	s.Add(443, 8443, layers.IPProtocolTCP)

	require.Nil(t, s.Remove(80, layers.IPProtocolTCP))
	require.Equal(t, []Rule{{Port: 443, ExternalPort: 8443, Protocol: layers.IPProtocolTCP}}, s.Rules())

	err := s.Remove(80, layers.IPProtocolTCP)
	require.ErrorIs(t, err, ErrRuleNotFound)
	err = s.Remove(443, layers.IPProtocolUDP)
	require.ErrorIs(t, err, ErrRuleNotFound)
}

func TestRulesInsertionOrder(t *testing.T) {
	s := NewRuleSet()
	ports := []uint16{8080, 22, 443, 53, 1194}
	for _, p := range ports {
		s.Add(p, 0, layers.IPProtocolTCP)
	}
	got := s.Rules()
	require.Len(t, got, len(ports))
	for i, p := range ports {
		require.Equal(t, p, got[i].Port)
	}
}

func TestRuleString(t *testing.T) {
	require.Equal(t, "80->8080 tcp", NewRule(80, 8080, layers.IPProtocolTCP).String())
	require.Equal(t, "53->53 udp", NewRule(53, 0, layers.IPProtocolUDP).String())
}
