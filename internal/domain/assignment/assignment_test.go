package assignment_test

import (
	"context"
	"testing"

	"github.com/okian/autodist/internal/domain/assignment"
	"github.com/okian/autodist/internal/domain/distconfig"
	"github.com/okian/autodist/internal/domain/generator"
	"github.com/okian/autodist/internal/domain/model"
	"github.com/okian/autodist/internal/domain/workload"
	. "github.com/smartystreets/goconvey/convey"
)

type fakeTasks map[string]int // user -> open minutes

func (f fakeTasks) OpenTasksByUser(_ context.Context, userID string) ([]model.Task, error) {
	m, ok := f[userID]
	if !ok || m == 0 {
		return nil, nil
	}
	return []model.Task{{ID: "t-" + userID, EstimatedMinutes: m, Status: model.TaskInProgress}}, nil
}

type fakeUsers []string

func (f fakeUsers) ActiveUsers(context.Context) ([]model.User, error) {
	out := make([]model.User, len(f))
	for i, id := range f {
		out[i] = model.User{ID: id, Active: true}
	}
	return out, nil
}

func (f fakeUsers) AbsentUserIDs(context.Context, string) ([]string, error) { return nil, nil }

type fakeSkills map[string]float64 // user -> normalized score for every skill

func (f fakeSkills) SkillScore(_ context.Context, userID string, _ model.Skill) float64 {
	if v, ok := f[userID]; ok {
		return v
	}
	return 0.5
}

func newEngine(tasks fakeTasks, users fakeUsers, skills fakeSkills) (*assignment.Engine, *distconfig.Provider) {
	cfg := distconfig.New()
	bal := workload.NewBalancer(tasks, users, cfg)
	return assignment.NewEngine(bal, skills, cfg), cfg
}

func TestSelectAssignee(t *testing.T) {
	ctx := context.Background()

	Convey("Given a purchase of two devices and two workers", t, func() {
		defs := generator.Generate(model.Event{
			Type: model.EventPurchaseConfirmed,
			Payload: model.Payload{"items": []any{
				map[string]any{"device_id": "d-1"},
				map[string]any{"device_id": "d-2"},
			}},
		})
		So(defs[0].Kind, ShouldEqual, model.KindInspection)

		// A: history .9, utilization .2. B: history .95, utilization .9.
		engine, _ := newEngine(
			fakeTasks{"A": 96, "B": 432},
			fakeUsers{"A", "B"},
			fakeSkills{"A": 0.9, "B": 0.95},
		)

		Convey("When selecting an assignee for the inspection", func() {
			c, err := engine.SelectAssignee(ctx, defs[0])

			Convey("Then the overloaded worker is excluded and A is auto-assigned", func() {
				So(err, ShouldBeNil)
				So(c, ShouldNotBeNil)
				So(c.UserID, ShouldEqual, "A")
				So(c.Score, ShouldAlmostEqual, 0.6*0.9+0.4*(1-0.2/0.85), 1e-9)
				So(c.AutoAssign, ShouldBeTrue)
			})
		})
	})

	Convey("Given no eligible workers", t, func() {
		engine, _ := newEngine(fakeTasks{"A": 480}, fakeUsers{"A"}, fakeSkills{})

		Convey("Then no candidate is returned", func() {
			c, err := engine.SelectAssignee(ctx, model.TaskDefinition{Kind: model.KindCleaning})
			So(err, ShouldBeNil)
			So(c, ShouldBeNil)
		})
	})

	Convey("Given a low-confidence match", t, func() {
		engine, _ := newEngine(fakeTasks{"A": 300}, fakeUsers{"A"}, fakeSkills{"A": 0.3})

		Convey("Then the candidate is not auto-assigned", func() {
			c, err := engine.SelectAssignee(ctx, model.TaskDefinition{Kind: model.KindDelivery})
			So(err, ShouldBeNil)
			So(c.UserID, ShouldEqual, "A")
			So(c.AutoAssign, ShouldBeFalse)
		})
	})

	Convey("Given tied composite scores", t, func() {
		engine, _ := newEngine(fakeTasks{}, fakeUsers{"c", "b", "a"}, fakeSkills{})

		Convey("Then the lowest id wins deterministically", func() {
			for i := 0; i < 5; i++ {
				c, err := engine.SelectAssignee(ctx, model.TaskDefinition{Kind: model.KindSales})
				So(err, ShouldBeNil)
				So(c.UserID, ShouldEqual, "a")
			}
		})

		Convey("Then excluded ids are skipped", func() {
			c, err := engine.SelectAssigneeExcluding(ctx, model.TaskDefinition{Kind: model.KindSales}, map[string]struct{}{"a": {}})
			So(err, ShouldBeNil)
			So(c.UserID, ShouldEqual, "b")
		})
	})

	Convey("Given a config change between decisions", t, func() {
		engine, cfg := newEngine(fakeTasks{"A": 240}, fakeUsers{"A"}, fakeSkills{"A": 0.5})
		first, _ := engine.SelectAssignee(ctx, model.TaskDefinition{Kind: model.KindSales})
		So(cfg.Apply(ctx, model.DistributionConfig{WeightSkill: 0, WeightWorkload: 1, MaxUtilization: 0.6, AutoAssignThreshold: 0.1}), ShouldBeNil)
		second, _ := engine.SelectAssignee(ctx, model.TaskDefinition{Kind: model.KindSales})

		Convey("Then the new weights apply immediately", func() {
			So(first.Score, ShouldNotEqual, second.Score)
			So(second.Score, ShouldAlmostEqual, 1-0.5/0.6, 1e-9)
		})
	})
}

func TestGetCandidateScores(t *testing.T) {
	ctx := context.Background()

	Convey("Given a caller-supplied candidate set", t, func() {
		engine, _ := newEngine(fakeTasks{"x": 48, "y": 240}, fakeUsers{"x", "y", "z"}, fakeSkills{"x": 0.4, "y": 0.9, "z": 1})

		Convey("Then only those candidates are ranked", func() {
			ranked := engine.GetCandidateScores(ctx, model.TaskDefinition{Kind: model.KindInspection}, []string{"y", "x", "x"})
			So(len(ranked), ShouldEqual, 2)
			So(ranked[0].Score, ShouldBeGreaterThanOrEqualTo, ranked[1].Score)
			for _, c := range ranked {
				So(c.UserID, ShouldNotEqual, "z")
			}
		})
	})

	Convey("Given equal scores with different utilization", t, func() {
		c := []assignment.Candidate{
			{UserID: "b", Score: 0.5, Utilization: 0.1},
			{UserID: "a", Score: 0.5, Utilization: 0.3},
			{UserID: "c", Score: 0.9, Utilization: 0.5},
		}
		assignment.Sort(c)
		So([]string{c[0].UserID, c[1].UserID, c[2].UserID}, ShouldResemble, []string{"c", "b", "a"})
	})
}
