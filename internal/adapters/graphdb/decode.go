package graphdb

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/adkite/tempograph/internal/domain/event"
	"github.com/adkite/tempograph/internal/domain/graph"
)

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func newFactID() string {
	return uuid.NewString()
}

func encodeValue(v map[string]any) string {
	if len(v) == 0 {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func recordString(r *neo4j.Record, key string) string {
	v, ok := r.Get(key)
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func recordInt(r *neo4j.Record, key string) int64 {
	v, ok := r.Get(key)
	if !ok || v == nil {
		return 0
	}
	n, _ := v.(int64)
	return n
}

func recordTime(r *neo4j.Record, key string) (time.Time, error) {
	raw := recordString(r, key)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: missing %s", ErrDecodeRecord, key)
	}
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s %q: %v", ErrDecodeRecord, key, raw, err)
	}
	return t, nil
}

func recordTimePtr(r *neo4j.Record, key string) (*time.Time, error) {
	raw := recordString(r, key)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %q: %v", ErrDecodeRecord, key, raw, err)
	}
	return &t, nil
}

func decodeEntity(r *neo4j.Record) (*graph.Entity, error) {
	firstSeen, err := recordTime(r, "first_seen")
	if err != nil {
		return nil, err
	}
	createdAt, err := recordTime(r, "created_at")
	if err != nil {
		return nil, err
	}
	lastUpdated, err := recordTime(r, "last_updated")
	if err != nil {
		return nil, err
	}

	attrs := make(map[string]graph.Attribute)
	if raw := recordString(r, "attributes_json"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &attrs); err != nil {
			return nil, fmt.Errorf("%w: attributes: %v", ErrDecodeRecord, err)
		}
	}

	return &graph.Entity{
		ID:          recordString(r, "id"),
		Kind:        graph.Kind(recordString(r, "kind")),
		FirstSeen:   firstSeen,
		CreatedAt:   createdAt,
		LastUpdated: lastUpdated,
		Attributes:  attrs,
		Version:     uint64(recordInt(r, "version")),
	}, nil
}

func decodeFacts(records []*neo4j.Record) ([]graph.Fact, error) {
	out := make([]graph.Fact, 0, len(records))
	for _, r := range records {
		f, err := decodeFact(r)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func decodeFact(r *neo4j.Record) (graph.Fact, error) {
	validFrom, err := recordTime(r, "valid_from")
	if err != nil {
		return graph.Fact{}, err
	}
	validTo, err := recordTimePtr(r, "valid_to")
	if err != nil {
		return graph.Fact{}, err
	}
	recordedAt, err := recordTime(r, "recorded_at")
	if err != nil {
		return graph.Fact{}, err
	}

	var value map[string]any
	if raw := recordString(r, "value_json"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			return graph.Fact{}, fmt.Errorf("%w: fact value: %v", ErrDecodeRecord, err)
		}
	}

	return graph.Fact{
		UUID:       recordString(r, "uuid"),
		Subject:    recordString(r, "subject"),
		Relation:   graph.Relation(recordString(r, "relation")),
		Object:     recordString(r, "object"),
		Value:      value,
		ValidFrom:  validFrom,
		ValidTo:    validTo,
		RecordedAt: recordedAt,
		EpisodeID:  recordString(r, "episode_id"),
		Partition:  int(recordInt(r, "partition")),
		Offset:     recordInt(r, "offset"),
	}, nil
}

func decodeEpisode(r *neo4j.Record) (event.Episode, error) {
	occurredAt, err := recordTime(r, "occurred_at")
	if err != nil {
		return event.Episode{}, err
	}
	recordedAt, err := recordTime(r, "recorded_at")
	if err != nil {
		return event.Episode{}, err
	}

	var payload event.Payload
	if raw := recordString(r, "payload_json"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return event.Episode{}, fmt.Errorf("%w: payload: %v", ErrDecodeRecord, err)
		}
	}

	return event.Episode{
		ID:         recordString(r, "id"),
		Type:       event.Type(recordString(r, "type")),
		OccurredAt: occurredAt,
		RecordedAt: recordedAt,
		Payload:    payload,
		Partition:  int(recordInt(r, "partition")),
		Offset:     recordInt(r, "offset"),
	}, nil
}
