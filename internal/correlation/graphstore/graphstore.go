// Package graphstore persists confirmed attack chains to Neo4j so a chain
// spanning a process restart can still be reconstructed, additive to the
// correlation engine's in-memory sliding-window analysis.
package graphstore

import (
	"context"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/iff-guardian/hostguard/pkg/logger"
)

// Store wraps a Neo4j driver and implements correlation.ChainStore.
type Store struct {
	driver neo4j.DriverWithContext
	log    logger.Logger
}

// New opens a Neo4j driver against uri using basic auth. Callers must call
// Close when finished.
func New(uri, username, password string, log logger.Logger) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, err
	}
	return &Store{driver: driver, log: log}, nil
}

// Close releases the underlying driver.
func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// HealthCheck runs a trivial query and returns its error, if any.
func (s *Store) HealthCheck(ctx context.Context) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)
	_, err := session.Run(ctx, "RETURN 1", nil)
	return err
}

// EnsureSchema creates the constraints and indexes the chain graph relies
// on, covering the node labels Event and Host.
func (s *Store) EnsureSchema(ctx context.Context) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	statements := []string{
		"CREATE CONSTRAINT event_id IF NOT EXISTS FOR (e:Event) REQUIRE e.id IS UNIQUE",
		"CREATE CONSTRAINT host_name IF NOT EXISTS FOR (h:Host) REQUIRE h.name IS UNIQUE",
		"CREATE INDEX event_host IF NOT EXISTS FOR (e:Event) ON (e.host)",
	}
	for _, stmt := range statements {
		if _, err := session.Run(ctx, stmt, nil); err != nil {
			return err
		}
	}
	return nil
}

// PersistEdge records one stage transition between two events on host,
// creating the Event/Host nodes if they do not already exist.
func (s *Store) PersistEdge(ctx context.Context, host, fromEventID, toEventID, stage string) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		return tx.Run(ctx, `
			MERGE (h:Host {name: $host})
			MERGE (a:Event {id: $from})
			MERGE (b:Event {id: $to})
			MERGE (a)-[:HOST]->(h)
			MERGE (b)-[:HOST]->(h)
			MERGE (a)-[r:NEXT_STAGE {stage: $stage}]->(b)
			ON CREATE SET r.recorded_at = $recordedAt
		`, map[string]interface{}{
			"host":       host,
			"from":       fromEventID,
			"to":         toEventID,
			"stage":      stage,
			"recordedAt": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
	return err
}

// ReconstructChain walks forward NEXT_STAGE edges from startEventID,
// returning the ordered sequence of event ids the chain visited.
func (s *Store) ReconstructChain(ctx context.Context, startEventID string) ([]string, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		res, err := tx.Run(ctx, `
			MATCH path = (start:Event {id: $start})-[:NEXT_STAGE*]->(end:Event)
			WHERE NOT (end)-[:NEXT_STAGE]->()
			WITH path ORDER BY length(path) DESC LIMIT 1
			RETURN [n IN nodes(path) | n.id] AS ids
		`, map[string]interface{}{"start": startEventID})
		if err != nil {
			return nil, err
		}
		if res.Next(ctx) {
			raw, _ := res.Record().Get("ids")
			return raw, res.Err()
		}
		return nil, res.Err()
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return []string{startEventID}, nil
	}
	raw, ok := result.([]interface{})
	if !ok {
		return []string{startEventID}, nil
	}
	ids := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			ids = append(ids, s)
		}
	}
	return ids, nil
}
