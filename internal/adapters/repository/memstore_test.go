package repository_test

import (
	"context"
	"fmt"
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

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func episodeAt(id string, occurredAt time.Time, offset int64) event.Episode {
	return event.Episode{
		ID:         id,
		Type:       event.TypeImpression,
		OccurredAt: occurredAt,
		RecordedAt: occurredAt.Add(time.Second),
		Partition:  0,
		Offset:     offset,
	}
}

func deviceBatch(epID string, occurredAt time.Time, offset int64, attrs map[string]any) graph.Batch {
	ep := episodeAt(epID, occurredAt, offset)
	return graph.Batch{
		Episode: ep,
		Entities: []graph.EntityIntent{
			{ID: "dev_1", Kind: graph.KindDevice, Attributes: attrs},
		},
		Facts: []graph.FactIntent{
			{Subject: ep.ID, Relation: graph.RelationInvolves, Object: "dev_1"},
		},
	}
}

func TestMemStore_EntityMerge(t *testing.T) {
	Convey("Given an empty store", t, func() {
		store := repository.NewMemStore()
		ctx := context.Background()

		Convey("When applying a batch that creates an entity", func() {
			err := store.ApplyBatch(ctx, deviceBatch("ep-1", baseTime, 1, map[string]any{"fingerprint": "fp-a"}))

			Convey("Then the entity should exist with business and system stamps", func() {
				So(err, ShouldBeNil)
				e, err := store.GetEntity(ctx, "dev_1")
				So(err, ShouldBeNil)
				So(e.Kind, ShouldEqual, graph.KindDevice)
				So(e.FirstSeen, ShouldEqual, baseTime)
				So(e.Version, ShouldEqual, 1)
				So(e.Attributes["fingerprint"].Value, ShouldEqual, "fp-a")
			})
		})

		Convey("When attribute updates arrive out of business-time order", func() {
			later := deviceBatch("ep-later", baseTime.Add(time.Hour), 2, map[string]any{"fingerprint": "fp-new"})
			earlier := deviceBatch("ep-earlier", baseTime, 3, map[string]any{"fingerprint": "fp-old"})

			So(store.ApplyBatch(ctx, later), ShouldBeNil)
			So(store.ApplyBatch(ctx, earlier), ShouldBeNil)

			Convey("Then last-writer-wins by occurred_at, not arrival order", func() {
				e, err := store.GetEntity(ctx, "dev_1")
				So(err, ShouldBeNil)
				So(e.Attributes["fingerprint"].Value, ShouldEqual, "fp-new")
				So(e.FirstSeen, ShouldEqual, baseTime)
				So(e.LastUpdated, ShouldEqual, baseTime.Add(time.Hour))
			})
		})

		Convey("When two updates share an occurred_at", func() {
			a := deviceBatch("ep-a", baseTime, 10, map[string]any{"fingerprint": "from-offset-10"})
			b := deviceBatch("ep-b", baseTime, 4, map[string]any{"fingerprint": "from-offset-4"})

			So(store.ApplyBatch(ctx, a), ShouldBeNil)
			So(store.ApplyBatch(ctx, b), ShouldBeNil)

			Convey("Then the lowest source coordinate wins deterministically", func() {
				e, err := store.GetEntity(ctx, "dev_1")
				So(err, ShouldBeNil)
				So(e.Attributes["fingerprint"].Value, ShouldEqual, "from-offset-4")
			})
		})

		Convey("When looking up a missing entity", func() {
			_, err := store.GetEntity(ctx, "dev_missing")

			Convey("Then it should report not found", func() {
				So(err, ShouldWrap, graph.ErrEntityNotFound)
			})
		})
	})
}

func TestMemStore_ReingestNoOp(t *testing.T) {
	Convey("Given a store with one applied episode", t, func() {
		store := repository.NewMemStore()
		ctx := context.Background()
		batch := deviceBatch("ep-1", baseTime, 1, map[string]any{"fingerprint": "fp-a"})
		So(store.ApplyBatch(ctx, batch), ShouldBeNil)

		before, err := store.Stats(ctx)
		So(err, ShouldBeNil)

		Convey("When the same episode is applied again", func() {
			So(store.ApplyBatch(ctx, batch), ShouldBeNil)

			Convey("Then nothing changes", func() {
				after, err := store.Stats(ctx)
				So(err, ShouldBeNil)
				So(after, ShouldResemble, before)

				e, err := store.GetEntity(ctx, "dev_1")
				So(err, ShouldBeNil)
				So(e.Version, ShouldEqual, 1)
			})
		})
	})
}

func TestMemStore_FactIntervals(t *testing.T) {
	Convey("Given a store tracking one edge over time", t, func() {
		store := repository.NewMemStore()
		ctx := context.Background()

		assertScore := func(epID string, at time.Time, offset int64, score float64) error {
			ep := episodeAt(epID, at, offset)
			return store.ApplyBatch(ctx, graph.Batch{
				Episode: ep,
				Entities: []graph.EntityIntent{
					{ID: "crt_1", Kind: graph.KindCreative},
					{ID: "dev_1", Kind: graph.KindDevice},
				},
				Facts: []graph.FactIntent{{
					Subject:  "crt_1",
					Relation: graph.RelationViewedOn,
					Object:   "dev_1",
					Value:    map[string]any{"viewability_score": score},
				}},
			})
		}

		Convey("When a changed value supersedes an open fact", func() {
			So(assertScore("ep-1", baseTime, 1, 0.5), ShouldBeNil)
			So(assertScore("ep-2", baseTime.Add(time.Hour), 2, 0.8), ShouldBeNil)

			Convey("Then the old interval is closed, not lost", func() {
				facts, err := store.FactsFrom(ctx, "crt_1")
				So(err, ShouldBeNil)
				So(len(facts), ShouldEqual, 2)

				var open, closed int
				for _, f := range facts {
					if f.Open() {
						open++
						So(f.Value["viewability_score"], ShouldEqual, 0.8)
					} else {
						closed++
						So(f.Value["viewability_score"], ShouldEqual, 0.5)
						So(*f.ValidTo, ShouldEqual, baseTime.Add(time.Hour))
					}
				}
				So(open, ShouldEqual, 1)
				So(closed, ShouldEqual, 1)
			})

			Convey("Then business-time snapshots see the value at that time", func() {
				atFirst, err := store.FactsAsOf(ctx, baseTime.Add(time.Minute), graph.AxisBusinessTime)
				So(err, ShouldBeNil)
				found := false
				for _, f := range atFirst {
					if f.Relation == graph.RelationViewedOn {
						found = true
						So(f.Value["viewability_score"], ShouldEqual, 0.5)
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When the identical fact is asserted twice", func() {
			So(assertScore("ep-1", baseTime, 1, 0.5), ShouldBeNil)
			So(assertScore("ep-dup", baseTime, 2, 0.5), ShouldBeNil)

			Convey("Then the edge keeps a single fact", func() {
				facts, err := store.FactsFrom(ctx, "crt_1")
				So(err, ShouldBeNil)
				So(len(facts), ShouldEqual, 1)
			})
		})

		Convey("When assertions arrive out of business-time order", func() {
			So(assertScore("ep-2", baseTime.Add(time.Hour), 1, 0.8), ShouldBeNil)
			So(assertScore("ep-1", baseTime, 2, 0.5), ShouldBeNil)

			Convey("Then the interval history converges to the in-order shape", func() {
				facts, err := store.FactsFrom(ctx, "crt_1")
				So(err, ShouldBeNil)
				So(len(facts), ShouldEqual, 2)

				for _, f := range facts {
					if f.Value["viewability_score"] == 0.5 {
						So(f.Open(), ShouldBeFalse)
						So(*f.ValidTo, ShouldEqual, baseTime.Add(time.Hour))
					} else {
						So(f.Open(), ShouldBeTrue)
					}
				}
			})
		})

		Convey("When an exclusive membership moves between communities", func() {
			member := graph.FactIntent{
				Subject:   "dev_1",
				Relation:  graph.RelationBelongsTo,
				Object:    "community-a",
				ValidFrom: baseTime,
				Exclusive: true,
			}
			So(store.ApplyBatch(ctx, graph.Batch{Facts: []graph.FactIntent{member}}), ShouldBeNil)

			member.Object = "community-b"
			member.ValidFrom = baseTime.Add(time.Hour)
			So(store.ApplyBatch(ctx, graph.Batch{Facts: []graph.FactIntent{member}}), ShouldBeNil)

			Convey("Then the old membership is closed and the new one open", func() {
				facts, err := store.FactsFrom(ctx, "dev_1")
				So(err, ShouldBeNil)
				So(len(facts), ShouldEqual, 2)

				for _, f := range facts {
					switch f.Object {
					case "community-a":
						So(f.Open(), ShouldBeFalse)
					case "community-b":
						So(f.Open(), ShouldBeTrue)
					}
				}
			})
		})
	})
}

func TestMemStore_EpisodeWindows(t *testing.T) {
	Convey("Given a store with episodes over an hour", t, func() {
		store := repository.NewMemStore()
		ctx := context.Background()

		for i := 0; i < 4; i++ {
			batch := deviceBatch(fmt.Sprintf("ep-%d", i), baseTime.Add(time.Duration(i)*15*time.Minute), int64(i), nil)
			So(store.ApplyBatch(ctx, batch), ShouldBeNil)
		}

		Convey("When querying a window covering half of them", func() {
			eps, err := store.EpisodesInWindow(ctx, "", graph.Window{
				From: baseTime,
				To:   baseTime.Add(30 * time.Minute),
			})

			Convey("Then only the contained episodes return, in order", func() {
				So(err, ShouldBeNil)
				So(len(eps), ShouldEqual, 2)
				So(eps[0].ID, ShouldEqual, "ep-0")
				So(eps[1].ID, ShouldEqual, "ep-1")
			})
		})

		Convey("When querying per entity", func() {
			eps, err := store.EpisodesInWindow(ctx, "dev_1", graph.Window{
				From: baseTime,
				To:   baseTime.Add(time.Hour),
			})

			Convey("Then the involvement index returns all four", func() {
				So(err, ShouldBeNil)
				So(len(eps), ShouldEqual, 4)
			})
		})

		Convey("When querying a window with no events", func() {
			eps, err := store.EpisodesInWindow(ctx, "", graph.Window{
				From: baseTime.Add(24 * time.Hour),
				To:   baseTime.Add(25 * time.Hour),
			})

			Convey("Then the result is empty, not an error", func() {
				So(err, ShouldBeNil)
				So(len(eps), ShouldEqual, 0)
			})
		})
	})
}

func TestMemStore_Concurrency(t *testing.T) {
	Convey("Given a store under concurrent writes", t, func() {
		store := repository.NewMemStore(repository.WithShardCount(16))
		ctx := context.Background()

		Convey("When unrelated entities are mutated in parallel", func() {
			const workers = 8
			var wg sync.WaitGroup
			errs := make(chan error, workers)

			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func(n int) {
					defer wg.Done()
					ep := episodeAt(fmt.Sprintf("ep-%d", n), baseTime, int64(n))
					errs <- store.ApplyBatch(ctx, graph.Batch{
						Episode: ep,
						Entities: []graph.EntityIntent{
							{ID: fmt.Sprintf("dev_%d", n), Kind: graph.KindDevice},
						},
					})
				}(i)
			}
			wg.Wait()
			close(errs)

			Convey("Then every write succeeds", func() {
				for err := range errs {
					So(err, ShouldBeNil)
				}
				stats, err := store.Stats(ctx)
				So(err, ShouldBeNil)
				So(stats.Entities, ShouldEqual, workers)
			})
		})

		Convey("When the same entity is raced through the mutator", func() {
			mutator := graph.NewMutator(store, graph.WithBackoffBase(time.Millisecond))
			const writers = 8
			var wg sync.WaitGroup
			errs := make(chan error, writers)

			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func(n int) {
					defer wg.Done()
					errs <- mutator.Apply(ctx, deviceBatch(fmt.Sprintf("ep-race-%d", n), baseTime.Add(time.Duration(n)*time.Second), int64(n), nil))
				}(i)
			}
			wg.Wait()
			close(errs)

			Convey("Then conflicts are retried and no update is lost", func() {
				for err := range errs {
					So(err, ShouldBeNil)
				}
				e, err := store.GetEntity(ctx, "dev_1")
				So(err, ShouldBeNil)
				So(e.Version, ShouldEqual, writers)
			})
		})
	})
}
