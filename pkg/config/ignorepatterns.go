package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/iff-guardian/hostguard/internal/domain"
)

// stepMatcher is the YAML-bindable shape of domain.StepMatcher.
type stepMatcher struct {
	EventType      []string `yaml:"event_type"`
	Mitre          []string `yaml:"mitre"`
	SourceMachines []string `yaml:"source_machines"`
	AccountNames   []string `yaml:"account_names"`
	LogonTypes     []string `yaml:"logon_types"`
}

func (s stepMatcher) toDomain() domain.StepMatcher {
	types := make([]domain.SecurityEventType, 0, len(s.EventType))
	for _, t := range s.EventType {
		types = append(types, domain.SecurityEventType(t))
	}
	return domain.StepMatcher{
		EventType:      types,
		Mitre:          s.Mitre,
		SourceMachines: s.SourceMachines,
		AccountNames:   s.AccountNames,
		LogonTypes:     s.LogonTypes,
	}
}

// ignorePattern is the YAML-bindable shape of domain.IgnorePattern.
type ignorePattern struct {
	ID                  string        `yaml:"id"`
	Sequence            []stepMatcher `yaml:"sequence"`
	Reason              string        `yaml:"reason"`
	IgnoreAllInSequence bool          `yaml:"ignore_all_in_sequence"`
}

func (p ignorePattern) toDomain() domain.IgnorePattern {
	steps := make([]domain.StepMatcher, 0, len(p.Sequence))
	for _, s := range p.Sequence {
		steps = append(steps, s.toDomain())
	}
	return domain.IgnorePattern{
		ID:                  p.ID,
		Sequence:            steps,
		Reason:              p.Reason,
		IgnoreAllInSequence: p.IgnoreAllInSequence,
	}
}

type ignorePatternFile struct {
	Patterns []ignorePattern `yaml:"patterns"`
}

// LoadIgnorePatterns reads the ignore-pattern set from a YAML file,
// separate from the ambient config viper loads, since patterns are data
// a security team tunes independently of process configuration. A
// missing file is not an error — it yields an empty pattern set, so the
// engine runs with filtering disabled by content (still gated by
// ignore.Config.Enabled) until patterns are authored.
func LoadIgnorePatterns(path string) ([]domain.IgnorePattern, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var file ignorePatternFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, err
	}
	out := make([]domain.IgnorePattern, 0, len(file.Patterns))
	for _, p := range file.Patterns {
		out = append(out, p.toDomain())
	}
	return out, nil
}
