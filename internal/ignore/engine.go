// Package ignore implements the Ignore-Pattern Engine (component F): a
// per-host ring buffer of recently classified events scanned against
// configured single- or multi-step sequences to suppress noisy, expected
// event chains before they reach the event store.
package ignore

import (
	"regexp"
	"sync"
	"time"

	"github.com/iff-guardian/hostguard/internal/domain"
)

var (
	accountNamePattern = regexp.MustCompile(`(?i)Account Name:\s*([^\r\n]+)`)
	logonTypePattern   = regexp.MustCompile(`(?i)Logon Type:\s*(\d+)`)
)

// ExtractAccountName pulls the "Account Name:" field commonly embedded in
// Windows security event message bodies.
func ExtractAccountName(message string) string {
	m := accountNamePattern.FindStringSubmatch(message)
	if len(m) < 2 {
		return ""
	}
	return trimSpace(m[1])
}

// ExtractLogonType pulls the "Logon Type:" field from a message body.
func ExtractLogonType(message string) string {
	m := logonTypePattern.FindStringSubmatch(message)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && (s[start] == ' ' || s[start] == '\t') {
		start++
	}
	for end > start && (s[end-1] == ' ' || s[end-1] == '\t' || s[end-1] == '\r') {
		end--
	}
	return s[start:end]
}

// Config is the engine's global and per-pattern configuration.
type Config struct {
	Enabled                   bool
	FilterAllLocalEvents      bool
	LocalMachines             []string
	MaxRecentEvents           int
	SequenceTimeWindowSeconds int
	Patterns                  []domain.IgnorePattern
}

func (c Config) window() time.Duration {
	return time.Duration(c.SequenceTimeWindowSeconds) * time.Second
}

// Result is the engine's per-event verdict.
type Result struct {
	Suppress      bool
	Reason        string
	PatternID     string
	AlsoIgnoredRefs []string // prior events swept in by ignore_all_in_sequence
}

// Engine evaluates classified events against the configured ignore
// patterns, keyed by host.
type Engine struct {
	cfg Config

	mu      sync.Mutex
	buffers map[string][]domain.RecentEvent
}

func New(cfg Config) *Engine {
	return &Engine{cfg: cfg, buffers: make(map[string][]domain.RecentEvent)}
}

func contains(local []string, host string) bool {
	for _, h := range local {
		if h == host {
			return true
		}
	}
	return false
}

// Evaluate decides whether event should be suppressed, then records it in
// its host's ring buffer regardless of the verdict — suppressed events
// still participate in future sequence matching.
func (e *Engine) Evaluate(event *domain.SecurityEvent) Result {
	if !e.cfg.Enabled {
		return Result{Suppress: false, Reason: "ignore engine disabled"}
	}
	host := event.Original.Host
	candidate := domain.RecentEvent{
		EventType:   event.EventType,
		Mitre:       event.Mitre(),
		Host:        host,
		AccountName: ExtractAccountName(event.Original.Message),
		LogonType:   ExtractLogonType(event.Original.Message),
		Time:        event.Original.Time,
		EventRef:    event.ID,
	}

	if e.cfg.FilterAllLocalEvents && contains(e.cfg.LocalMachines, host) {
		e.appendToBuffer(host, candidate)
		return Result{Suppress: true, Reason: "host is a filtered local machine"}
	}

	e.mu.Lock()
	history := append([]domain.RecentEvent(nil), e.buffers[host]...)
	e.mu.Unlock()

	result := e.match(candidate, history)
	e.appendToBuffer(host, candidate)
	return result
}

func (e *Engine) appendToBuffer(host string, entry domain.RecentEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	buf := append(e.buffers[host], entry)
	if max := e.cfg.MaxRecentEvents; max > 0 && len(buf) > max {
		buf = buf[len(buf)-max:]
	}
	e.buffers[host] = buf
}

func (e *Engine) match(candidate domain.RecentEvent, history []domain.RecentEvent) Result {
	window := e.cfg.window()
	for _, pattern := range e.cfg.Patterns {
		if len(pattern.Sequence) == 0 {
			continue
		}
		terminal := pattern.Sequence[len(pattern.Sequence)-1]
		if !stepMatches(terminal, candidate) {
			continue
		}

		if len(pattern.Sequence) == 1 {
			return e.verdictFor(pattern, candidate, nil)
		}

		matchedRefs, ok := matchPriorSteps(pattern.Sequence[:len(pattern.Sequence)-1], candidate.Time, history, window)
		if ok {
			return e.verdictFor(pattern, candidate, matchedRefs)
		}
	}
	return Result{Suppress: false, Reason: "no ignore pattern matched"}
}

func (e *Engine) verdictFor(pattern domain.IgnorePattern, candidate domain.RecentEvent, priorRefs []string) Result {
	res := Result{Suppress: true, Reason: pattern.Reason, PatternID: pattern.ID}
	if pattern.IgnoreAllInSequence {
		res.AlsoIgnoredRefs = priorRefs
	}
	return res
}

// matchPriorSteps scans history newest-to-oldest looking for, in order
// from the last non-terminal step back to the first, an entry matching
// that step with strictly decreasing time, all within window of
// terminalTime. Returns the matched entries' refs (oldest first) and
// whether every step was satisfied.
func matchPriorSteps(steps []domain.StepMatcher, terminalTime time.Time, history []domain.RecentEvent, window time.Duration) ([]string, bool) {
	refs := make([]string, len(steps))
	cursor := terminalTime
	for i := len(steps) - 1; i >= 0; i-- {
		step := steps[i]
		found := false
		for j := len(history) - 1; j >= 0; j-- {
			entry := history[j]
			if !entry.Time.Before(cursor) {
				continue
			}
			if terminalTime.Sub(entry.Time) > window {
				break
			}
			if stepMatches(step, entry) {
				refs[i] = entry.EventRef
				cursor = entry.Time
				found = true
				break
			}
		}
		if !found {
			return nil, false
		}
	}
	return refs, true
}

func stepMatches(step domain.StepMatcher, e domain.RecentEvent) bool {
	if len(step.EventType) > 0 && !containsEventType(step.EventType, e.EventType) {
		return false
	}
	if len(step.Mitre) > 0 && !anyMitreMatch(step.Mitre, e.Mitre) {
		return false
	}
	if len(step.SourceMachines) > 0 && !contains(step.SourceMachines, e.Host) {
		return false
	}
	if len(step.AccountNames) > 0 && !contains(step.AccountNames, e.AccountName) {
		return false
	}
	if len(step.LogonTypes) > 0 && !contains(step.LogonTypes, e.LogonType) {
		return false
	}
	return true
}

func containsEventType(types []domain.SecurityEventType, t domain.SecurityEventType) bool {
	for _, et := range types {
		if et == t {
			return true
		}
	}
	return false
}

func anyMitreMatch(candidates, have []string) bool {
	for _, c := range candidates {
		if contains(have, c) {
			return true
		}
	}
	return false
}
