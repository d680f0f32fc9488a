package mitre

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookup_KnownTechnique(t *testing.T) {
	tech, ok := Lookup("T1078")
	assert.True(t, ok)
	assert.Equal(t, "Valid Accounts", tech.Name)
}

func TestLookup_UnknownTechnique(t *testing.T) {
	_, ok := Lookup("T9999")
	assert.False(t, ok)
}

func TestName_FallsBackToID(t *testing.T) {
	assert.Equal(t, "T9999", Name("T9999"))
	assert.Equal(t, "Remote Services", Name("T1021"))
}

func TestDescribeAll_PreservesOrder(t *testing.T) {
	out := DescribeAll([]string{"T1078", "T1068"})
	assert.Equal(t, []string{"T1078: Valid Accounts", "T1068: Exploitation for Privilege Escalation"}, out)
}
