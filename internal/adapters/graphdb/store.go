// Package graphdb implements the graph store against a Bolt-speaking
// database (Neo4j or Memgraph). It mirrors the in-memory store's
// bi-temporal merge semantics so the two backends are interchangeable.
package graphdb

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/adkite/tempograph/internal/domain/event"
	"github.com/adkite/tempograph/internal/domain/graph"
	"github.com/adkite/tempograph/pkg/logger"
)

const timeLayout = time.RFC3339Nano

// BoltStore is a graph.Store backed by a Bolt graph database. Entity
// versioning rides on a version property checked at write time, so racing
// transactions surface as graph.ErrWriteConflict just like the in-memory
// store.
type BoltStore struct {
	driver   neo4j.DriverWithContext
	database string
	log      logger.Logger
}

// Option applies a configuration option to the BoltStore.
type Option func(*BoltStore)

// WithDatabase selects a named database instead of the server default.
func WithDatabase(name string) Option {
	return func(s *BoltStore) {
		if name != "" {
			s.database = name
		}
	}
}

// New connects to the Bolt endpoint and verifies connectivity.
func New(ctx context.Context, uri, username, password string, opts ...Option) (*BoltStore, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}

	s := &BoltStore{
		driver: driver,
		log:    logger.Named("graphdb"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the underlying driver.
func (s *BoltStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// BuildIndices creates the lookup indices. Failures are logged and skipped
// so an index that already exists on an older server does not block start.
func (s *BoltStore) BuildIndices(ctx context.Context) error {
	for _, q := range indexQueries {
		if _, err := s.read(ctx, q, nil); err != nil {
			s.log.Warn(ctx, "index creation skipped",
				logger.String("query", q),
				logger.Error(err))
		}
	}
	return nil
}

// ApplyBatch applies one episode's entities and facts in a single managed
// transaction.
func (s *BoltStore) ApplyBatch(ctx context.Context, batch graph.Batch) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.database,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if batch.Episode.ID != "" {
			replay, err := s.episodeExists(ctx, tx, batch.Episode.ID)
			if err != nil {
				return nil, err
			}
			if replay {
				return nil, nil
			}
		}

		for _, intent := range batch.Entities {
			if err := s.upsertEntity(ctx, tx, intent, batch.Episode); err != nil {
				return nil, err
			}
		}
		for _, intent := range batch.Facts {
			if err := s.assertFact(ctx, tx, intent, batch.Episode); err != nil {
				return nil, err
			}
		}

		if batch.Episode.ID != "" {
			if err := s.createEpisode(ctx, tx, batch); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return err
	}
	return nil
}

// upsertEntity merges one entity intent with last-writer-wins attribute
// semantics, guarded by the stored version.
func (s *BoltStore) upsertEntity(ctx context.Context, tx neo4j.ManagedTransaction, intent graph.EntityIntent, ep event.Episode) error {
	result, err := tx.Run(ctx, getEntityQuery, map[string]any{"id": intent.ID})
	if err != nil {
		return fmt.Errorf("%w: get entity: %v", ErrQueryFailed, err)
	}
	records, err := result.Collect(ctx)
	if err != nil {
		return fmt.Errorf("%w: get entity: %v", ErrQueryFailed, err)
	}

	now := time.Now().UTC()
	occurredAt := ep.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = now
	}

	if len(records) == 0 {
		attrs := make(map[string]graph.Attribute, len(intent.Attributes))
		for k, v := range intent.Attributes {
			attrs[k] = graph.Attribute{
				Value:      v,
				OccurredAt: occurredAt,
				Partition:  ep.Partition,
				Offset:     ep.Offset,
			}
		}
		attrsJSON, err := json.Marshal(attrs)
		if err != nil {
			return fmt.Errorf("encode attributes for %s: %w", intent.ID, err)
		}
		_, err = tx.Run(ctx, createEntityQuery, map[string]any{
			"id":              intent.ID,
			"kind":            string(intent.Kind),
			"first_seen":      fmtTime(occurredAt),
			"created_at":      fmtTime(now),
			"last_updated":    fmtTime(now),
			"attributes_json": string(attrsJSON),
			"version":         int64(1),
		})
		if err != nil {
			return fmt.Errorf("%w: create entity %s: %v", ErrQueryFailed, intent.ID, err)
		}
		return nil
	}

	current, err := decodeEntity(records[0])
	if err != nil {
		return err
	}

	for k, v := range intent.Attributes {
		existing, ok := current.Attributes[k]
		if !ok || existing.SupersededBy(occurredAt, ep.Partition, ep.Offset) {
			current.Attributes[k] = graph.Attribute{
				Value:      v,
				OccurredAt: occurredAt,
				Partition:  ep.Partition,
				Offset:     ep.Offset,
			}
		}
	}
	firstSeen := current.FirstSeen
	if occurredAt.Before(firstSeen) {
		firstSeen = occurredAt
	}
	attrsJSON, err := json.Marshal(current.Attributes)
	if err != nil {
		return fmt.Errorf("encode attributes for %s: %w", intent.ID, err)
	}

	result, err = tx.Run(ctx, updateEntityQuery, map[string]any{
		"id":               intent.ID,
		"expected_version": int64(current.Version),
		"first_seen":       fmtTime(firstSeen),
		"last_updated":     fmtTime(now),
		"attributes_json":  string(attrsJSON),
	})
	if err != nil {
		return fmt.Errorf("%w: update entity %s: %v", ErrQueryFailed, intent.ID, err)
	}
	updated, err := result.Collect(ctx)
	if err != nil {
		return fmt.Errorf("%w: update entity %s: %v", ErrQueryFailed, intent.ID, err)
	}
	if len(updated) == 0 {
		return fmt.Errorf("entity %s: %w", intent.ID, graph.ErrWriteConflict)
	}
	return nil
}

// assertFact applies close-and-insert semantics for one fact intent.
func (s *BoltStore) assertFact(ctx context.Context, tx neo4j.ManagedTransaction, intent graph.FactIntent, ep event.Episode) error {
	validFrom := intent.ValidFrom
	if validFrom.IsZero() {
		validFrom = ep.OccurredAt
	}
	now := time.Now().UTC()

	if intent.Exclusive {
		open, err := s.collectFacts(ctx, tx, openFactsForSubjectRelationQuery, map[string]any{
			"subject":  intent.Subject,
			"relation": string(intent.Relation),
		})
		if err != nil {
			return err
		}
		for _, f := range open {
			if f.Object == intent.Object || validFrom.Before(f.ValidFrom) {
				continue
			}
			if err := s.closeFact(ctx, tx, f.UUID, validFrom); err != nil {
				return err
			}
		}
	}

	history, err := s.collectFacts(ctx, tx, edgeFactsQuery, map[string]any{
		"subject":  intent.Subject,
		"relation": string(intent.Relation),
		"object":   intent.Object,
	})
	if err != nil {
		return err
	}

	// A later assertion already bounds this one; insert the new interval
	// closed at the next valid_from so late arrivals converge.
	validTo := (*time.Time)(nil)
	for _, f := range history {
		if f.Open() && !f.ValidFrom.After(validFrom) {
			if reflect.DeepEqual(f.Value, intent.Value) {
				return nil
			}
			if err := s.closeFact(ctx, tx, f.UUID, validFrom); err != nil {
				return err
			}
			continue
		}
		if f.ValidFrom.After(validFrom) && (validTo == nil || f.ValidFrom.Before(*validTo)) {
			next := f.ValidFrom
			validTo = &next
		}
	}

	params := map[string]any{
		"uuid":        newFactID(),
		"subject":     intent.Subject,
		"relation":    string(intent.Relation),
		"object":      intent.Object,
		"value_json":  encodeValue(intent.Value),
		"valid_from":  fmtTime(validFrom),
		"valid_to":    nil,
		"recorded_at": fmtTime(now),
		"episode_id":  ep.ID,
		"partition":   int64(ep.Partition),
		"offset":      ep.Offset,
	}
	if validTo != nil {
		params["valid_to"] = fmtTime(*validTo)
	}
	if _, err := tx.Run(ctx, createFactQuery, params); err != nil {
		return fmt.Errorf("%w: create fact: %v", ErrQueryFailed, err)
	}
	return nil
}

func (s *BoltStore) closeFact(ctx context.Context, tx neo4j.ManagedTransaction, uuid string, at time.Time) error {
	_, err := tx.Run(ctx, closeFactQuery, map[string]any{
		"uuid":     uuid,
		"valid_to": fmtTime(at),
	})
	if err != nil {
		return fmt.Errorf("%w: close fact %s: %v", ErrQueryFailed, uuid, err)
	}
	return nil
}

func (s *BoltStore) episodeExists(ctx context.Context, tx neo4j.ManagedTransaction, id string) (bool, error) {
	result, err := tx.Run(ctx, episodeExistsQuery, map[string]any{"id": id})
	if err != nil {
		return false, fmt.Errorf("%w: episode lookup: %v", ErrQueryFailed, err)
	}
	records, err := result.Collect(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: episode lookup: %v", ErrQueryFailed, err)
	}
	return len(records) > 0, nil
}

func (s *BoltStore) createEpisode(ctx context.Context, tx neo4j.ManagedTransaction, batch graph.Batch) error {
	involved := make([]string, 0, len(batch.Entities))
	for _, e := range batch.Entities {
		involved = append(involved, e.ID)
	}
	sort.Strings(involved)

	payloadJSON, err := json.Marshal(batch.Episode.Payload)
	if err != nil {
		return fmt.Errorf("encode payload for %s: %w", batch.Episode.ID, err)
	}
	_, err = tx.Run(ctx, createEpisodeQuery, map[string]any{
		"id":           batch.Episode.ID,
		"type":         string(batch.Episode.Type),
		"occurred_at":  fmtTime(batch.Episode.OccurredAt),
		"recorded_at":  fmtTime(batch.Episode.RecordedAt),
		"payload_json": string(payloadJSON),
		"partition":    int64(batch.Episode.Partition),
		"offset":       batch.Episode.Offset,
		"involved":     involved,
	})
	if err != nil {
		return fmt.Errorf("%w: create episode %s: %v", ErrQueryFailed, batch.Episode.ID, err)
	}
	return nil
}

// GetEntity returns the entity or graph.ErrEntityNotFound.
func (s *BoltStore) GetEntity(ctx context.Context, id string) (*graph.Entity, error) {
	records, err := s.read(ctx, getEntityQuery, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: %w", id, graph.ErrEntityNotFound)
	}
	return decodeEntity(records[0])
}

// Entities lists entities, filtered by kind when kind is non-empty.
func (s *BoltStore) Entities(ctx context.Context, kind graph.Kind) ([]*graph.Entity, error) {
	records, err := s.read(ctx, listEntitiesQuery, map[string]any{"kind": string(kind)})
	if err != nil {
		return nil, err
	}
	out := make([]*graph.Entity, 0, len(records))
	for _, r := range records {
		e, err := decodeEntity(r)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// FactsAsOf returns facts visible at asOf along the given axis.
func (s *BoltStore) FactsAsOf(ctx context.Context, asOf time.Time, axis graph.TimeAxis) ([]graph.Fact, error) {
	query := factsAsOfBusinessQuery
	if axis == graph.AxisSystemTime {
		query = factsAsOfSystemQuery
	}
	records, err := s.read(ctx, query, map[string]any{"as_of": fmtTime(asOf)})
	if err != nil {
		return nil, err
	}
	return decodeFacts(records)
}

// FactsOf returns facts touching the entity whose validity overlaps w.
func (s *BoltStore) FactsOf(ctx context.Context, entityID string, w graph.Window) ([]graph.Fact, error) {
	records, err := s.read(ctx, factsOfEntityQuery, map[string]any{
		"entity_id": entityID,
		"from":      fmtTime(w.From),
		"to":        fmtTime(w.To),
	})
	if err != nil {
		return nil, err
	}
	return decodeFacts(records)
}

// FactsFrom returns every fact asserted from the subject, closed included.
func (s *BoltStore) FactsFrom(ctx context.Context, subject string) ([]graph.Fact, error) {
	records, err := s.read(ctx, factsFromSubjectQuery, map[string]any{"subject": subject})
	if err != nil {
		return nil, err
	}
	return decodeFacts(records)
}

// EpisodesInWindow returns episodes in occurred_at order.
func (s *BoltStore) EpisodesInWindow(ctx context.Context, entityID string, w graph.Window) ([]event.Episode, error) {
	records, err := s.read(ctx, episodesInWindowQuery, map[string]any{
		"entity_id": entityID,
		"from":      fmtTime(w.From),
		"to":        fmtTime(w.To),
	})
	if err != nil {
		return nil, err
	}

	out := make([]event.Episode, 0, len(records))
	for _, r := range records {
		ep, err := decodeEpisode(r)
		if err != nil {
			return nil, err
		}
		out = append(out, ep)
	}
	return out, nil
}

// Stats reports node counts.
func (s *BoltStore) Stats(ctx context.Context) (graph.StoreStats, error) {
	records, err := s.read(ctx, statsQuery, nil)
	if err != nil {
		return graph.StoreStats{}, err
	}
	if len(records) == 0 {
		return graph.StoreStats{}, nil
	}
	return graph.StoreStats{
		Entities:    recordInt(records[0], "entities"),
		Facts:       recordInt(records[0], "facts"),
		ClosedFacts: recordInt(records[0], "closed"),
		Episodes:    recordInt(records[0], "episodes"),
	}, nil
}

// read runs one auto-commit query and collects its records.
func (s *BoltStore) read(ctx context.Context, query string, params map[string]any) ([]*neo4j.Record, error) {
	result, err := neo4j.ExecuteQuery(ctx, s.driver, query, params,
		neo4j.EagerResultTransformer, neo4j.ExecuteQueryWithDatabase(s.database))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}
	return result.Records, nil
}

func (s *BoltStore) collectFacts(ctx context.Context, tx neo4j.ManagedTransaction, query string, params map[string]any) ([]graph.Fact, error) {
	result, err := tx.Run(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}
	records, err := result.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}
	return decodeFacts(records)
}
