package service_test

import (
	"context"
	"testing"
	"time"

	service "github.com/adkite/tempograph/internal/app"
	"github.com/adkite/tempograph/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

func TestService_New(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := service.New()

		Convey("Then it should have sensible defaults", func() {
			So(svc, ShouldNotBeNil)
		})
	})

	Convey("Given a new service with custom options", t, func() {
		svc := service.New(
			service.WithPartitions(2),
			service.WithQueueCapacity(1_000),
			service.WithDedupeSize(500),
			service.WithShardCount(2),
			service.WithConfidenceThreshold(0.8),
			service.WithMutationRetries(3, 2*time.Millisecond),
			service.WithCommunityDetection(time.Hour, time.Hour, 10),
			service.WithRuleEngine(time.Hour, 5, 2),
			service.WithDispatch(time.Second, 1, time.Millisecond),
			service.WithMaxTraversalHops(4),
		)

		Convey("Then it should be created successfully", func() {
			So(svc, ShouldNotBeNil)
		})
	})
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a service", t, func() {
		svc := service.New(
			service.WithPartitions(1),
			service.WithQueueCapacity(100),
			service.WithCommunityDetection(time.Hour, time.Hour, 10),
			service.WithRuleEngine(time.Hour, 5, 2),
		)
		ctx := context.Background()

		Convey("When it has not been started", func() {
			Convey("Then publishing is refused and stats say so", func() {
				So(svc.Publish(ctx, "ctv_clicks", "k", []byte(`{}`)), ShouldBeFalse)
				So(svc.GetStats()["started"], ShouldEqual, false)
			})

			Convey("Then stopping is a no-op", func() {
				svc.Stop()
			})
		})

		Convey("When started", func() {
			So(svc.Start(ctx), ShouldBeNil)
			defer svc.Stop()

			Convey("Then starting again is a no-op", func() {
				So(svc.Start(ctx), ShouldBeNil)
			})

			Convey("Then stats report the running state", func() {
				stats := svc.GetStats()
				So(stats["started"], ShouldEqual, true)
				So(stats["partitions"], ShouldEqual, 1)
				So(stats, ShouldContainKey, "entities")
				So(stats, ShouldContainKey, "queue_length")
			})
		})
	})
}
