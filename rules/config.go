package rules

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

var ErrNoConfig = fmt.Errorf("no configuration found on given paths")

// ruleConfig is one record of the on-disk rule file. external_port is
// omitted when it equals port, to keep the file minimal.
type ruleConfig struct {
	Port         int    `yaml:"port"`
	Protocol     string `yaml:"protocol"`
	ExternalPort int    `yaml:"external_port,omitempty"`
}

// DefaultPaths lists the config locations searched by the daemon,
// least specific first. Later paths take precedence.
func DefaultPaths() []string {
	home, _ := os.UserHomeDir()
	return []string{
		"/etc/upnpport/upnpport.yaml",
		filepath.Join(home, ".config/upnpport/upnpport.yaml"),
		"./config/upnpport.yaml",
	}
}

// Load reads the rule file at path. A missing or empty file yields an
// empty RuleSet; a malformed one is an error.
func Load(path string) (*RuleSet, error) {
	set := NewRuleSet()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return set, nil
		}
		return nil, err
	}
	defer f.Close()

	var records []ruleConfig
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&records); err != nil {
		if errors.Is(err, io.EOF) {
			return set, nil
		}
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	for _, rec := range records {
		if rec.Port < 1 || rec.Port > 65535 {
			return nil, fmt.Errorf("%s: %w, got %d", path, ErrBadPort, rec.Port)
		}
		if rec.ExternalPort != 0 && (rec.ExternalPort < 1 || rec.ExternalPort > 65535) {
			return nil, fmt.Errorf("%s: external %w, got %d", path, ErrBadPort, rec.ExternalPort)
		}
		protocol, err := ParseProtocol(rec.Protocol)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		set.Add(uint16(rec.Port), uint16(rec.ExternalPort), protocol)
	}
	return set, nil
}

// Dump writes the rule file back out, in insertion order.
func Dump(path string, set *RuleSet) error {
	records := make([]ruleConfig, 0, set.Len())
	for _, r := range set.Rules() {
		rec := ruleConfig{Port: int(r.Port), Protocol: ProtocolString(r.Protocol)}
		if r.ExternalPort != r.Port {
			rec.ExternalPort = int(r.ExternalPort)
		}
		records = append(records, rec)
	}

	out, err := yaml.Marshal(records)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0644)
}

// LoadFirst loads from the last existing path in paths, so later-listed
// locations take precedence. Only exhausting the whole list is an error.
func LoadFirst(paths []string) (*RuleSet, error) {
	for i := len(paths) - 1; i >= 0; i-- {
		info, err := os.Stat(paths[i])
		if err != nil || info.IsDir() {
			continue
		}
		return Load(paths[i])
	}
	return nil, ErrNoConfig
}
