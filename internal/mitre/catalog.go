// Package mitre provides a static MITRE ATT&CK technique id-to-name
// lookup used to enrich summaries and recommended actions. It performs no
// scoring or detection of its own.
package mitre

// Technique describes one ATT&CK technique by id.
type Technique struct {
	ID       string
	Name     string
	Tactic   string
}

// catalog covers the technique ids the Rule Store and Correlation Engine
// emit; IDs outside this table are valid and simply render without a name.
var catalog = map[string]Technique{
	"T1078": {ID: "T1078", Name: "Valid Accounts", Tactic: "Defense Evasion, Persistence, Privilege Escalation, Initial Access"},
	"T1068": {ID: "T1068", Name: "Exploitation for Privilege Escalation", Tactic: "Privilege Escalation"},
	"T1110": {ID: "T1110", Name: "Brute Force", Tactic: "Credential Access"},
	"T1021": {ID: "T1021", Name: "Remote Services", Tactic: "Lateral Movement"},
	"T1548": {ID: "T1548", Name: "Abuse Elevation Control Mechanism", Tactic: "Privilege Escalation, Defense Evasion"},
	"T1055": {ID: "T1055", Name: "Process Injection", Tactic: "Defense Evasion, Privilege Escalation"},
	"T1059": {ID: "T1059", Name: "Command and Scripting Interpreter", Tactic: "Execution"},
	"T1098": {ID: "T1098", Name: "Account Manipulation", Tactic: "Persistence, Privilege Escalation"},
	"T1543": {ID: "T1543", Name: "Create or Modify System Process", Tactic: "Persistence, Privilege Escalation"},
	"T1053": {ID: "T1053", Name: "Scheduled Task/Job", Tactic: "Execution, Persistence, Privilege Escalation"},
	"T1562": {ID: "T1562", Name: "Impair Defenses", Tactic: "Defense Evasion"},
	"T1071": {ID: "T1071", Name: "Application Layer Protocol", Tactic: "Command and Control"},
}

// Lookup returns the technique for id and whether it is known.
func Lookup(id string) (Technique, bool) {
	t, ok := catalog[id]
	return t, ok
}

// Name returns a human-readable name for id, or id itself if unknown.
func Name(id string) string {
	if t, ok := catalog[id]; ok {
		return t.Name
	}
	return id
}

// Describe renders a short "id: name" label, used to enrich summaries and
// recommended-action text without altering the underlying technique list.
func Describe(id string) string {
	if t, ok := catalog[id]; ok {
		return id + ": " + t.Name
	}
	return id
}

// DescribeAll renders Describe for every id, preserving order.
func DescribeAll(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, Describe(id))
	}
	return out
}
