package correlation

import (
	"time"

	"github.com/iff-guardian/hostguard/internal/domain"
)

const (
	bruteForceWindow      = 10 * time.Minute
	temporalBurstWindow   = 2 * time.Minute
	lateralMovementWindow = 30 * time.Minute
	attackChainWindow     = 30 * time.Minute
)

// detection is a detector's raw finding before dedup/ID assignment.
type detection struct {
	typ        domain.CorrelationType
	confidence float64
	pattern    string
	eventIDs   []string
	window     time.Duration
	risk       domain.RiskLevel
	mitre      []string
	actions    []string
	stage      string
}

// detectBruteForce fires when the new event is an AuthenticationSuccess
// preceded by at least 5 AuthenticationFailure events on the same host and
// user within bruteForceWindow.
func detectBruteForce(candidate domain.SecurityEvent, hostHistory []domain.SecurityEvent) *detection {
	if candidate.EventType != domain.AuthenticationSuccess {
		return nil
	}
	since := candidate.Original.Time.Add(-bruteForceWindow)
	var failureIDs []string
	for _, e := range hostHistory {
		if e.EventType != domain.AuthenticationFailure {
			continue
		}
		if e.Original.User != candidate.Original.User {
			continue
		}
		if e.Original.Time.Before(since) || e.Original.Time.After(candidate.Original.Time) {
			continue
		}
		failureIDs = append(failureIDs, e.ID)
	}
	if len(failureIDs) < 5 {
		return nil
	}
	confidence := 0.7 + 0.05*float64(len(failureIDs)-5)
	if confidence > 0.95 {
		confidence = 0.95
	}
	return &detection{
		typ:        domain.BruteForce,
		confidence: confidence,
		pattern:    "repeated authentication failures followed by success",
		eventIDs:   append(failureIDs, candidate.ID),
		window:     bruteForceWindow,
		risk:       domain.RiskHigh,
		mitre:      []string{"T1110"},
		actions:    []string{"Lock affected account pending review", "Investigate source of authentication attempts"},
	}
}

// detectTemporalBurst fires when at least 6 events of the candidate's type
// occurred on the same host within temporalBurstWindow, including the
// candidate itself.
func detectTemporalBurst(candidate domain.SecurityEvent, hostHistory []domain.SecurityEvent) *detection {
	since := candidate.Original.Time.Add(-temporalBurstWindow)
	ids := []string{candidate.ID}
	for _, e := range hostHistory {
		if e.EventType != candidate.EventType {
			continue
		}
		if e.Original.Time.Before(since) || e.Original.Time.After(candidate.Original.Time) {
			continue
		}
		ids = append(ids, e.ID)
	}
	if len(ids) < 6 {
		return nil
	}
	overflow := float64(len(ids)-6) * 0.02
	if overflow > 0.15 {
		overflow = 0.15
	}
	confidence := 0.8 + overflow
	return &detection{
		typ:        domain.TemporalBurst,
		confidence: confidence,
		pattern:    "burst of same-type events on a single host",
		eventIDs:   ids,
		window:     temporalBurstWindow,
		risk:       candidate.RiskLevel,
		actions:    []string{"Investigate burst pattern for automation"},
	}
}

// detectLateralMovement fires when the candidate is a NetworkConnection and
// the same user produced NetworkConnection events against at least 3
// distinct hosts (including the candidate's) within lateralMovementWindow.
func detectLateralMovement(candidate domain.SecurityEvent, userHistory []domain.SecurityEvent) *detection {
	if candidate.EventType != domain.NetworkConnection {
		return nil
	}
	since := candidate.Original.Time.Add(-lateralMovementWindow)
	hosts := map[string]struct{}{candidate.Original.Host: {}}
	ids := []string{candidate.ID}
	for _, e := range userHistory {
		if e.EventType != domain.NetworkConnection {
			continue
		}
		if e.Original.Time.Before(since) || e.Original.Time.After(candidate.Original.Time) {
			continue
		}
		hosts[e.Original.Host] = struct{}{}
		ids = append(ids, e.ID)
	}
	if len(hosts) < 3 {
		return nil
	}
	confidence := 0.75 + 0.05*float64(len(hosts)-3)
	if confidence > 0.9 {
		confidence = 0.9
	}
	return &detection{
		typ:        domain.LateralMovement,
		confidence: confidence,
		pattern:    "same user connecting across multiple hosts",
		eventIDs:   ids,
		window:     lateralMovementWindow,
		risk:       domain.RiskHigh,
		mitre:      []string{"T1021"},
		actions:    []string{"Investigate lateral movement across systems"},
	}
}

// detectAttackChain fires when the candidate completes the ordered stage
// sequence AuthenticationSuccess -> PrivilegeEscalation -> (NetworkConnection
// | ProcessCreation) on one host within attackChainWindow.
func detectAttackChain(candidate domain.SecurityEvent, hostHistory []domain.SecurityEvent) *detection {
	if candidate.EventType != domain.NetworkConnection && candidate.EventType != domain.ProcessCreation {
		return nil
	}
	since := candidate.Original.Time.Add(-attackChainWindow)

	var privEsc *domain.SecurityEvent
	for i := range hostHistory {
		e := hostHistory[i]
		if e.EventType != domain.PrivilegeEscalation {
			continue
		}
		if e.Original.Time.Before(since) || e.Original.Time.After(candidate.Original.Time) {
			continue
		}
		if privEsc == nil || e.Original.Time.After(privEsc.Original.Time) {
			privEsc = &e
		}
	}
	if privEsc == nil {
		return nil
	}

	var authSuccess *domain.SecurityEvent
	for i := range hostHistory {
		e := hostHistory[i]
		if e.EventType != domain.AuthenticationSuccess {
			continue
		}
		if e.Original.Time.Before(since) || !e.Original.Time.Before(privEsc.Original.Time) {
			continue
		}
		if authSuccess == nil || e.Original.Time.After(authSuccess.Original.Time) {
			authSuccess = &e
		}
	}
	if authSuccess == nil {
		return nil
	}

	return &detection{
		typ:        domain.AttackChain,
		confidence: 0.8,
		pattern:    "authentication, privilege escalation, then network/process activity",
		eventIDs:   []string{authSuccess.ID, privEsc.ID, candidate.ID},
		window:     attackChainWindow,
		risk:       domain.RiskHigh,
		mitre:      []string{"T1078", "T1068"},
		actions:    []string{"Investigate entire attack sequence"},
		stage:      "completed",
	}
}
