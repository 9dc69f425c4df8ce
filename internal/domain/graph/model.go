// Package graph contains the bi-temporal knowledge graph model, the
// mutator that applies resolved episodes to it, and the temporal query
// engine that reads it.
package graph

import (
	"fmt"
	"time"

	"github.com/adkite/tempograph/internal/domain/event"
)

// Kind enumerates the entity kinds tracked by the graph.
type Kind string

const (
	KindDevice    Kind = "device"
	KindCampaign  Kind = "campaign"
	KindCreative  Kind = "creative"
	KindContent   Kind = "content"
	KindPlacement Kind = "placement"
)

// Relation enumerates the temporal relationship types between graph nodes.
type Relation string

const (
	RelationInvolves  Relation = "INVOLVES"
	RelationTargets   Relation = "TARGETS"
	RelationDisplays  Relation = "DISPLAYS"
	RelationViewedOn  Relation = "VIEWED_ON"
	RelationBelongsTo Relation = "BELONGS_TO"
)

// Attribute is one entity attribute value together with the business-time
// watermark that decided it. Merges are last-writer-wins by OccurredAt;
// equal timestamps are broken by the lowest (Partition, Offset) source
// coordinate so replays converge on one deterministic value.
type Attribute struct {
	Value      any       `json:"value"`
	OccurredAt time.Time `json:"occurred_at"`
	Partition  int       `json:"partition"`
	Offset     int64     `json:"offset"`
}

// SupersededBy reports whether an update stamped (occurredAt, partition,
// offset) should replace this attribute value.
func (a Attribute) SupersededBy(occurredAt time.Time, partition int, offset int64) bool {
	if occurredAt.After(a.OccurredAt) {
		return true
	}
	if !occurredAt.Equal(a.OccurredAt) {
		return false
	}
	if partition != a.Partition {
		return partition < a.Partition
	}
	return offset < a.Offset
}

// Entity is a graph node. FirstSeen is business time (earliest occurred_at
// evidence) while CreatedAt is system time (when the store first recorded
// the entity); late-arriving events make the two diverge. Version
// increments on every successful mutation and backs optimistic concurrency
// control.
type Entity struct {
	ID          string               `json:"id"`
	Kind        Kind                 `json:"kind"`
	FirstSeen   time.Time            `json:"first_seen"`
	CreatedAt   time.Time            `json:"created_at"`
	LastUpdated time.Time            `json:"last_updated"`
	Attributes  map[string]Attribute `json:"attributes"`
	Version     uint64               `json:"version"`
}

// Clone returns a deep copy safe for read-only callers.
func (e *Entity) Clone() *Entity {
	cp := *e
	cp.Attributes = make(map[string]Attribute, len(e.Attributes))
	for k, v := range e.Attributes {
		cp.Attributes[k] = v
	}
	return &cp
}

// Fact is one append-only temporal edge. ValidFrom/ValidTo bound business
// time (nil ValidTo = currently true); RecordedAt is system time. Facts are
// never updated in place: a superseding fact closes the open interval and a
// new row is inserted.
type Fact struct {
	UUID       string         `json:"uuid"`
	Subject    string         `json:"subject"`
	Relation   Relation       `json:"relation"`
	Object     string         `json:"object"`
	Value      map[string]any `json:"value,omitempty"`
	ValidFrom  time.Time      `json:"valid_from"`
	ValidTo    *time.Time     `json:"valid_to,omitempty"`
	RecordedAt time.Time      `json:"recorded_at"`
	EpisodeID  string         `json:"episode_id,omitempty"`
	Partition  int            `json:"partition"`
	Offset     int64          `json:"offset"`
}

// EdgeKey identifies the logical edge a fact belongs to. All facts sharing
// an edge key form one interval history.
func (f Fact) EdgeKey() string {
	return fmt.Sprintf("%s|%s|%s", f.Subject, f.Relation, f.Object)
}

// Open reports whether the fact's validity interval is still open.
func (f Fact) Open() bool {
	return f.ValidTo == nil
}

// ValidAt reports whether the fact holds at business time t.
// Intervals are half-open: [ValidFrom, ValidTo).
func (f Fact) ValidAt(t time.Time) bool {
	if t.Before(f.ValidFrom) {
		return false
	}
	return f.ValidTo == nil || t.Before(*f.ValidTo)
}

// EntityIntent asks the store to create or merge an entity.
type EntityIntent struct {
	ID         string
	Kind       Kind
	Attributes map[string]any
}

// FactIntent asks the store to assert an edge starting at the episode's
// occurred_at (or ValidFrom when set). Exclusive intents additionally close
// any open fact with the same subject and relation but a different object,
// which is how superseded community memberships end.
type FactIntent struct {
	Subject   string
	Relation  Relation
	Object    string
	Value     map[string]any
	ValidFrom time.Time
	Exclusive bool
}

// Batch is the atomic unit of graph mutation: everything one episode
// implies. Either all of it applies or none of it does.
type Batch struct {
	Episode  event.Episode
	Entities []EntityIntent
	Facts    []FactIntent
}

// Community is a detected entity cluster, produced by label propagation and
// materialized as BELONGS_TO facts.
type Community struct {
	ID         string       `json:"id"`
	DetectedAt time.Time    `json:"detected_at"`
	Members    []string     `json:"members"`
	KindCounts map[Kind]int `json:"kind_counts"`
	Cohesion   float64      `json:"cohesion"`
}
