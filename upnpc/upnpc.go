/*
Package upnpc drives the miniupnpc command line tool. Only its text contract
matters here: `upnpc -l` to read the router's forwarding table, `upnpc -r` to
add an entry. The tool's own UPnP handling is its business.
*/
package upnpc

import (
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ibizaman/upnpport/rules"
)

var (
	ErrToolUnavailable = fmt.Errorf("could not find upnpc executable, is miniupnpc installed?")
	ErrBadListing      = fmt.Errorf("unparseable upnpc listing")
)

var (
	// A redirection line looks like:
	//  0 TCP  8080->192.168.1.5:80  'ssh' '' 0
	// with the leading index optional. Anything else is noise.
	ruleLine  = regexp.MustCompile(`^\s*\d*\s*(?i:TCP|UDP)\s+\d+->.*:\d+`)
	separator = regexp.MustCompile(`\s+|->|:`)
)

type Client struct {
	Bin string
}

// NewClient expects upnpc on the PATH.
func NewClient() *Client {
	return &Client{Bin: "upnpc"}
}

// ListActive returns the forwarding entries currently programmed on the
// router, in listing order.
func (c *Client) ListActive() ([]rules.Rule, error) {
	out, err := c.run("-l")
	if err != nil {
		return nil, err
	}
	return parseListing(string(out))
}

// Apply asks the router to redirect the rule's external port to its internal
// port. The external port argument is passed only when it differs, matching
// upnpc's own defaulting. Output is not inspected for success.
func (c *Client) Apply(r rules.Rule) error {
	args := []string{"-r", strconv.Itoa(int(r.Port))}
	if r.ExternalPort != r.Port {
		args = append(args, strconv.Itoa(int(r.ExternalPort)))
	}
	args = append(args, rules.ProtocolString(r.Protocol))
	_, err := c.run(args...)
	return err
}

// run captures stdout. upnpc exits non-zero for plenty of conditions we do
// not interpret, so exit status is ignored; only a tool that cannot be
// located or started is an error.
func (c *Client) run(args ...string) ([]byte, error) {
	cmd := exec.Command(c.Bin, args...)
	log.Debug().Msgf("running %s", strings.Join(cmd.Args, " "))
	out, err := cmd.Output()
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return nil, fmt.Errorf("%w (%v)", ErrToolUnavailable, err)
	}
	return out, nil
}

// parseListing scrapes redirection entries out of `upnpc -l` output.
// Each matching line is split on whitespace, `->` and `:`; after dropping a
// leading empty token the protocol, external port and internal port sit at
// fixed positions. A matching line that does not fit that shape means the
// listing format changed under us, which is not silently tolerated.
func parseListing(out string) ([]rules.Rule, error) {
	var active []rules.Rule
	for _, line := range strings.Split(out, "\n") {
		if !ruleLine.MatchString(line) {
			continue
		}
		tokens := separator.Split(line, -1)
		if len(tokens) > 0 && tokens[0] == "" {
			tokens = tokens[1:]
		}
		if len(tokens) < 5 {
			return nil, fmt.Errorf("%w: %q", ErrBadListing, line)
		}
		protocol, err := rules.ParseProtocol(tokens[1])
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrBadListing, line)
		}
		external, err := strconv.ParseUint(tokens[2], 10, 16)
		if err != nil {
			return nil, fmt.Errorf("%w: bad external port in %q", ErrBadListing, line)
		}
		port, err := strconv.ParseUint(tokens[4], 10, 16)
		if err != nil {
			return nil, fmt.Errorf("%w: bad internal port in %q", ErrBadListing, line)
		}
		active = append(active, rules.NewRule(uint16(port), uint16(external), protocol))
	}
	return active, nil
}
