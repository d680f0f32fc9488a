package graphstore

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/iff-guardian/hostguard/pkg/logger"
)

func TestNew_RejectsMalformedURI(t *testing.T) {
	_, err := New("not-a-uri", "neo4j", "password", logger.NewNoop())
	assert.Error(t, err)
}

func TestNew_AcceptsWellFormedURI(t *testing.T) {
	s, err := New("neo4j://localhost:7687", "neo4j", "password", logger.NewNoop())
	assert.NoError(t, err)
	assert.NotNil(t, s)
}
