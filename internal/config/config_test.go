package config_test

import (
	"runtime"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/autodist/internal/config"
	"github.com/okian/autodist/internal/domain/model"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.LogFormat, convey.ShouldEqual, "text")
			convey.So(cfg.DB.Driver, convey.ShouldEqual, "sqlite")
			convey.So(cfg.Bus.QueueSize, convey.ShouldEqual, 4096)
			convey.So(cfg.Bus.WorkerCount, convey.ShouldEqual, runtime.NumCPU()*2)
			convey.So(cfg.WorkdayMinutes, convey.ShouldEqual, 480)
			convey.So(cfg.ShutdownTimeout, convey.ShouldEqual, 10*time.Second)
			convey.So(cfg.Distribution, convey.ShouldResemble, model.DefaultDistributionConfig())
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given the defaults with manager roles", t, func() {
		cfg := config.New()
		cfg.ManagerRoles = []string{"admin"}
		convey.So(cfg.Validate(), convey.ShouldBeNil)

		convey.Convey("When the driver is unknown", func() {
			cfg.DB.Driver = "oracle"
			convey.So(cfg.Validate(), convey.ShouldWrap, config.ErrInvalidConfig)
		})

		convey.Convey("When the weights sum to zero", func() {
			cfg.Distribution.WeightSkill = 0
			cfg.Distribution.WeightWorkload = 0
			convey.So(cfg.Validate(), convey.ShouldWrap, config.ErrInvalidConfig)
		})

		convey.Convey("When max utilization is above one", func() {
			cfg.Distribution.MaxUtilization = 1.5
			convey.So(cfg.Validate(), convey.ShouldWrap, config.ErrInvalidConfig)
		})

		convey.Convey("When no manager role is set", func() {
			cfg.ManagerRoles = nil
			convey.So(cfg.Validate(), convey.ShouldWrap, config.ErrInvalidConfig)
		})
	})
}
