package config_test

import (
	"runtime"
	"testing"

	"github.com/adkite/tempograph/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.GraphBackend, convey.ShouldEqual, "memory")
			convey.So(cfg.Partitions, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.QueueCapacity, convey.ShouldEqual, 100_000)
			convey.So(cfg.DedupeSize, convey.ShouldEqual, 500_000)
			convey.So(cfg.ShardCount, convey.ShouldEqual, 8)
			convey.So(cfg.ResolveConfidenceThreshold, convey.ShouldEqual, 0.75)
			convey.So(cfg.CommunityMaxIterations, convey.ShouldEqual, 20)
			convey.So(cfg.RuleMinSamples, convey.ShouldEqual, 30)
			convey.So(cfg.DispatchMaxRetries, convey.ShouldEqual, 4)
		})
	})
}
