package model_test

import (
	"errors"
	"testing"
	"time"

	model "github.com/okian/autodist/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestEventType(t *testing.T) {
	convey.Convey("Given the known event types", t, func() {
		convey.Convey("When parsing each one", func() {
			convey.Convey("Then it round-trips", func() {
				for _, et := range model.EventTypes() {
					got, err := model.ParseEventType(string(et))
					convey.So(err, convey.ShouldBeNil)
					convey.So(got, convey.ShouldEqual, et)
				}
			})
		})

		convey.Convey("When parsing an unknown type", func() {
			_, err := model.ParseEventType("order_shipped")

			convey.Convey("Then it returns ErrUnknownEventType", func() {
				convey.So(errors.Is(err, model.ErrUnknownEventType), convey.ShouldBeTrue)
			})
		})
	})
}

func TestTaskKindSkill(t *testing.T) {
	convey.Convey("Given every task kind", t, func() {
		cases := map[model.TaskKind]model.Skill{
			model.KindInspection:      model.SkillInspection,
			model.KindPreparation:     model.SkillPreparation,
			model.KindPackaging:       model.SkillPreparation,
			model.KindDelivery:        model.SkillDelivery,
			model.KindCleaning:        model.SkillCleaning,
			model.KindMaintenance:     model.SkillMaintenance,
			model.KindAccounting:      model.SkillAccounting,
			model.KindSales:           model.SkillSales,
			model.KindSticker:         model.SkillPreparation,
			model.KindStockOrder:      model.SkillAccounting,
			model.KindWarrantyInspect: model.SkillInspection,
			model.KindWarrantySend:    model.SkillDelivery,
		}

		convey.Convey("Then each maps to exactly one known skill", func() {
			for kind, skill := range cases {
				convey.So(kind.Skill(), convey.ShouldEqual, skill)
				convey.So(kind.Skill().Valid(), convey.ShouldBeTrue)
				parsed, err := model.ParseTaskKind(string(kind))
				convey.So(err, convey.ShouldBeNil)
				convey.So(parsed, convey.ShouldEqual, kind)
			}
		})

		convey.Convey("Then an unknown kind is rejected by ParseTaskKind", func() {
			_, err := model.ParseTaskKind("painting")
			convey.So(errors.Is(err, model.ErrUnknownTaskKind), convey.ShouldBeTrue)
			convey.So(model.TaskKind("painting").Skill(), convey.ShouldEqual, model.SkillPreparation)
		})
	})
}

func TestTaskDefinition(t *testing.T) {
	convey.Convey("Given a definition without a required skill", t, func() {
		def := model.TaskDefinition{Kind: model.KindStockOrder, Title: "Order stock"}

		convey.Convey("Then the kind's skill is used", func() {
			convey.So(def.Skill(), convey.ShouldEqual, model.SkillAccounting)
		})

		convey.Convey("Then the plain title is displayed", func() {
			convey.So(def.DisplayTitle(), convey.ShouldEqual, "Order stock")
			def.TitleLocalized = "Stok siparişi"
			convey.So(def.DisplayTitle(), convey.ShouldEqual, "Stok siparişi")
		})
	})

	convey.Convey("Given a stored task with missing fields", t, func() {
		task := model.Task{ID: "t-1", Title: "Legacy"}

		convey.Convey("When rebuilding its definition", func() {
			def := task.Definition()

			convey.Convey("Then defaults are filled in", func() {
				convey.So(def.Kind, convey.ShouldEqual, model.KindPreparation)
				convey.So(def.EstimatedMinutes, convey.ShouldEqual, model.DefaultEstimatedMinutes)
				convey.So(def.Priority, convey.ShouldEqual, model.PriorityNormal)
			})
		})
	})
}

func TestTaskStatusOpen(t *testing.T) {
	convey.Convey("Given task statuses", t, func() {
		convey.So(model.TaskPending.Open(), convey.ShouldBeTrue)
		convey.So(model.TaskInProgress.Open(), convey.ShouldBeTrue)
		convey.So(model.TaskCompleted.Open(), convey.ShouldBeFalse)
		convey.So(model.TaskCancelled.Open(), convey.ShouldBeFalse)
	})
}

func TestDistributionConfig(t *testing.T) {
	convey.Convey("Given the default distribution config", t, func() {
		cfg := model.DefaultDistributionConfig()

		convey.Convey("Then it has the documented values and is valid", func() {
			convey.So(cfg.WeightSkill, convey.ShouldEqual, 0.6)
			convey.So(cfg.WeightWorkload, convey.ShouldEqual, 0.4)
			convey.So(cfg.MaxUtilization, convey.ShouldEqual, 0.85)
			convey.So(cfg.AutoAssignThreshold, convey.ShouldEqual, 0.7)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("When weights are both zero", func() {
			cfg.WeightSkill, cfg.WeightWorkload = 0, 0
			convey.So(errors.Is(cfg.Validate(), model.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When max utilization is out of range", func() {
			cfg.MaxUtilization = 0
			convey.So(cfg.Validate(), convey.ShouldNotBeNil)
			cfg.MaxUtilization = 1.2
			convey.So(cfg.Validate(), convey.ShouldNotBeNil)
		})

		convey.Convey("When the threshold is negative", func() {
			cfg.AutoAssignThreshold = -0.1
			convey.So(cfg.Validate(), convey.ShouldNotBeNil)
		})
	})
}

func TestSkillScoreSet(t *testing.T) {
	convey.Convey("Given a cold start score set", t, func() {
		set := model.ColdStartScores()

		convey.Convey("Then every skill starts at 50", func() {
			convey.So(len(set), convey.ShouldEqual, len(model.Skills()))
			for _, s := range model.Skills() {
				convey.So(set.Get(s), convey.ShouldEqual, model.ColdStartSkillScore)
			}
		})

		convey.Convey("Then missing entries read as cold start", func() {
			convey.So(model.SkillScoreSet{}.Get(model.SkillSales), convey.ShouldEqual, 50.0)
		})
	})

	convey.Convey("Given an event", t, func() {
		ts := time.Now()
		ev := model.Event{ID: "e-1", Type: model.EventStockLow, Payload: model.Payload{"product_id": "p-1"}, Timestamp: ts}
		convey.So(ev.Payload["product_id"], convey.ShouldEqual, "p-1")
		convey.So(ev.Timestamp, convey.ShouldEqual, ts)
	})
}
