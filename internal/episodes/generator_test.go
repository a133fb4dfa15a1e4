package episodes

import (
	"context"
	"math"
	"reflect"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/critic/pkg/logger"
)

func init() {
	_ = logger.Init()
}

func testConfig() *Config {
	return &Config{
		Sessions:        10,
		Batches:         20,
		RecordsPerBatch: 8,
		Seed:            42,
		Workers:         4,
	}
}

func TestGenerateSingleEpisode(t *testing.T) {
	convey.Convey("Given a run configuration", t, func() {
		config := testConfig()

		convey.Convey("the same index yields the same plan", func() {
			a := generateSingleEpisode(3, config)
			b := generateSingleEpisode(3, config)
			convey.So(reflect.DeepEqual(a, b), convey.ShouldBeTrue)
		})

		convey.Convey("a different seed yields different records", func() {
			a := generateSingleEpisode(0, config)
			other := testConfig()
			other.Seed = 43
			b := generateSingleEpisode(0, other)
			convey.So(reflect.DeepEqual(a.Batches, b.Batches), convey.ShouldBeFalse)
		})

		convey.Convey("regimes cycle by index", func() {
			convey.So(generateSingleEpisode(0, config).Regime, convey.ShouldEqual, "steady_positive")
			convey.So(generateSingleEpisode(7, config).Regime, convey.ShouldEqual, "near_zero")
			convey.So(generateSingleEpisode(8, config).Regime, convey.ShouldEqual, "steady_positive")
		})

		convey.Convey("every batch is valid service input", func() {
			for index := 0; index < regimeCount; index++ {
				ep := generateSingleEpisode(index, config)
				convey.So(ep.Batches, convey.ShouldHaveLength, config.Batches)
				for _, batch := range ep.Batches {
					convey.So(batch.BatchID, convey.ShouldNotBeEmpty)
					prev := math.Inf(-1)
					for _, record := range batch.Records {
						convey.So(math.IsNaN(record.Value), convey.ShouldBeFalse)
						convey.So(math.IsInf(record.Value, 0), convey.ShouldBeFalse)
						convey.So(record.Timestamp, convey.ShouldBeGreaterThanOrEqualTo, 0)
						convey.So(record.Timestamp, convey.ShouldBeGreaterThanOrEqualTo, prev)
						prev = record.Timestamp
					}
				}
			}
		})

		convey.Convey("the sparse regime leaves some batches empty", func() {
			config.Batches = 40
			ep := generateSingleEpisode(caseSparse, config)
			empty := 0
			for _, batch := range ep.Batches {
				if len(batch.Records) == 0 {
					empty++
				}
			}
			convey.So(empty, convey.ShouldBeGreaterThan, 0)
			convey.So(empty, convey.ShouldBeLessThan, config.Batches)
		})

		convey.Convey("the near zero regime stays tiny", func() {
			ep := generateSingleEpisode(caseNearZero, config)
			for _, batch := range ep.Batches {
				for _, record := range batch.Records {
					convey.So(math.Abs(record.Value), convey.ShouldBeLessThanOrEqualTo, nearZeroScale)
				}
			}
		})

		convey.Convey("the drifting regime rises across the episode", func() {
			ep := generateSingleEpisode(caseDrifting, config)
			first := ep.Batches[0].Records[0].Value
			last := ep.Batches[len(ep.Batches)-1].Records[0].Value
			convey.So(first, convey.ShouldBeLessThan, last)
		})
	})
}

func TestGenerateEpisodes(t *testing.T) {
	convey.Convey("Given a run configuration", t, func() {
		config := testConfig()
		ctx := context.Background()

		convey.Convey("plans cover every session", func() {
			stats := &Stats{}
			plans, err := generateEpisodes(ctx, config, stats)
			convey.So(err, convey.ShouldBeNil)
			convey.So(plans, convey.ShouldHaveLength, config.Sessions)
			convey.So(stats.EpisodesPlanned, convey.ShouldEqual, config.Sessions)
		})

		convey.Convey("generation does not depend on worker interleaving", func() {
			a, err := generateEpisodes(ctx, config, &Stats{})
			convey.So(err, convey.ShouldBeNil)

			config.Workers = 1
			b, err := generateEpisodes(ctx, config, &Stats{})
			convey.So(err, convey.ShouldBeNil)
			convey.So(reflect.DeepEqual(a, b), convey.ShouldBeTrue)
		})
	})
}
