package graph_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	repository "github.com/adkite/tempograph/internal/adapters/repository"
	"github.com/adkite/tempograph/internal/domain/event"
	"github.com/adkite/tempograph/internal/domain/graph"
	"github.com/adkite/tempograph/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// conflictingStore delegates to a real store but fails a configured number
// of leading ApplyBatch calls with a write conflict.
type conflictingStore struct {
	graph.Store
	mu       sync.Mutex
	failFor  int
	attempts int
}

func (s *conflictingStore) ApplyBatch(ctx context.Context, batch graph.Batch) error {
	s.mu.Lock()
	s.attempts++
	fail := s.attempts <= s.failFor
	s.mu.Unlock()
	if fail {
		return graph.ErrWriteConflict
	}
	return s.Store.ApplyBatch(ctx, batch)
}

func validBatch(epID string) graph.Batch {
	return graph.Batch{
		Episode: event.Episode{
			ID:         epID,
			Type:       event.TypeImpression,
			OccurredAt: baseTime,
			RecordedAt: baseTime.Add(time.Second),
		},
		Entities: []graph.EntityIntent{
			{ID: "camp_1", Kind: graph.KindCampaign},
		},
		Facts: []graph.FactIntent{
			{Subject: epID, Relation: graph.RelationInvolves, Object: "camp_1"},
		},
	}
}

func TestMutator_Validation(t *testing.T) {
	Convey("Given a mutator over an empty store", t, func() {
		store := repository.NewMemStore()
		mutator := graph.NewMutator(store)
		ctx := context.Background()

		Convey("When the batch carries no intents", func() {
			err := mutator.Apply(ctx, graph.Batch{Episode: event.Episode{ID: "ep-1"}})

			Convey("Then it is rejected", func() {
				So(err, ShouldWrap, graph.ErrInvalidBatch)
			})
		})

		Convey("When an entity intent has no kind", func() {
			batch := validBatch("ep-1")
			batch.Entities[0].Kind = ""
			err := mutator.Apply(ctx, batch)

			So(err, ShouldWrap, graph.ErrInvalidBatch)
		})

		Convey("When a fact intent uses an unknown relation", func() {
			batch := validBatch("ep-1")
			batch.Facts[0].Relation = graph.Relation("OWNS")
			err := mutator.Apply(ctx, batch)

			So(err, ShouldWrap, graph.ErrInvalidBatch)
		})

		Convey("When a fact without an episode brings no valid_from", func() {
			err := mutator.Apply(ctx, graph.Batch{
				Facts: []graph.FactIntent{
					{Subject: "dev_1", Relation: graph.RelationBelongsTo, Object: "com_a"},
				},
			})

			So(err, ShouldWrap, graph.ErrInvalidBatch)
		})
	})
}

func TestMutator_ConflictRetry(t *testing.T) {
	Convey("Given a store that conflicts on leading attempts", t, func() {
		ctx := context.Background()

		Convey("When conflicts resolve within the retry budget", func() {
			store := &conflictingStore{Store: repository.NewMemStore(), failFor: 2}
			mutator := graph.NewMutator(store,
				graph.WithMaxRetries(3),
				graph.WithBackoffBase(time.Millisecond))

			err := mutator.Apply(ctx, validBatch("ep-1"))

			Convey("Then the batch eventually applies", func() {
				So(err, ShouldBeNil)
				So(store.attempts, ShouldEqual, 3)

				e, err := store.GetEntity(ctx, "camp_1")
				So(err, ShouldBeNil)
				So(e.Kind, ShouldEqual, graph.KindCampaign)
			})
		})

		Convey("When conflicts outlast the retry budget", func() {
			store := &conflictingStore{Store: repository.NewMemStore(), failFor: 10}
			mutator := graph.NewMutator(store,
				graph.WithMaxRetries(2),
				graph.WithBackoffBase(time.Millisecond))

			err := mutator.Apply(ctx, validBatch("ep-1"))

			Convey("Then the conflict surfaces to the caller", func() {
				So(err, ShouldWrap, graph.ErrWriteConflict)
				So(store.attempts, ShouldEqual, 3)
			})
		})

		Convey("When the store fails with a non-conflict error", func() {
			boom := errors.New("disk on fire")
			store := &failingStore{err: boom}
			mutator := graph.NewMutator(store,
				graph.WithMaxRetries(5),
				graph.WithBackoffBase(time.Millisecond))

			err := mutator.Apply(ctx, validBatch("ep-1"))

			Convey("Then it is returned unchanged without retrying", func() {
				So(err, ShouldEqual, boom)
				So(store.attempts, ShouldEqual, 1)
			})
		})
	})
}

func TestMutator_ReplaceMembership(t *testing.T) {
	Convey("Given a device with an open community membership", t, func() {
		store := repository.NewMemStore()
		mutator := graph.NewMutator(store)
		ctx := context.Background()

		So(mutator.ReplaceMembership(ctx, "com_a", []string{"dev_1"}, baseTime), ShouldBeNil)

		Convey("When the device moves to another community", func() {
			So(mutator.ReplaceMembership(ctx, "com_b", []string{"dev_1"}, baseTime.Add(time.Hour)), ShouldBeNil)

			Convey("Then the old membership is closed, not erased", func() {
				facts, err := store.FactsFrom(ctx, "dev_1")
				So(err, ShouldBeNil)
				So(len(facts), ShouldEqual, 2)

				byObject := make(map[string]graph.Fact, len(facts))
				for _, f := range facts {
					byObject[f.Object] = f
				}
				So(byObject["com_a"].Open(), ShouldBeFalse)
				So(*byObject["com_a"].ValidTo, ShouldEqual, baseTime.Add(time.Hour))
				So(byObject["com_b"].Open(), ShouldBeTrue)
			})
		})

		Convey("When the community id is empty", func() {
			err := mutator.ReplaceMembership(ctx, "", []string{"dev_1"}, baseTime)

			So(err, ShouldWrap, graph.ErrInvalidBatch)
		})
	})
}

// failingStore fails every write with a fixed error.
type failingStore struct {
	graph.Store
	err      error
	attempts int
}

func (s *failingStore) ApplyBatch(context.Context, graph.Batch) error {
	s.attempts++
	return s.err
}
