package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/autodist/internal/adapters/mq/bus"
	"github.com/okian/autodist/internal/adapters/repository"
	service "github.com/okian/autodist/internal/app"
	"github.com/okian/autodist/internal/domain/distconfig"
	"github.com/okian/autodist/internal/domain/model"
	"github.com/okian/autodist/pkg/logger"
)

func init() {
	// Initialize logging for tests
	if err := logger.Init(logger.FormatText); err != nil {
		panic(err)
	}
	_ = logger.SetLevelString("error")
}

var fixedNow = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

const today = "2026-01-05"

type harness struct {
	ctx   context.Context
	store *repository.Store
	svc   *service.Service
}

// newHarness builds a started service over a fresh in-memory database with
// the given users and auto-assign threshold.
func newHarness(threshold float64, users []model.User, opts ...service.Option) *harness {
	ctx := context.Background()
	clock := func() time.Time { return fixedNow }
	store, err := repository.Open(ctx, "sqlite", ":memory:", repository.WithClock(clock))
	So(err, ShouldBeNil)
	So(store.Migrate(ctx), ShouldBeNil)
	for _, u := range users {
		So(store.UpsertUser(ctx, u), ShouldBeNil)
	}

	cfg := model.DefaultDistributionConfig()
	cfg.AutoAssignThreshold = threshold
	provider := distconfig.New(distconfig.WithStore(store), distconfig.WithInitial(cfg))

	opts = append([]service.Option{
		service.WithConfigProvider(provider),
		service.WithClock(clock),
		service.WithLogger(logger.Named("test")),
	}, opts...)
	svc := service.New(store, opts...)
	So(svc.Start(ctx), ShouldBeNil)
	return &harness{ctx: ctx, store: store, svc: svc}
}

func (h *harness) close() {
	h.svc.Stop()
	_ = h.store.Close()
}

// openTask gives userID an open task of the given size.
func (h *harness) openTask(userID string, minutes int, kind model.TaskKind) model.Task {
	t, err := h.store.CreateTask(h.ctx, model.Task{
		Title:            "existing " + string(kind),
		AssignedTo:       userID,
		Category:         kind,
		EstimatedMinutes: minutes,
	})
	So(err, ShouldBeNil)
	return t
}

func worker(id string) model.User {
	return model.User{ID: id, FullName: id, Role: "employee", Active: true}
}

func manager(id string) model.User {
	return model.User{ID: id, FullName: id, Role: "admin", Active: true}
}

func inspectionDef() model.TaskDefinition {
	return model.TaskDefinition{
		Kind:             model.KindInspection,
		Title:            "Inspect device D-1",
		TitleLocalized:   "فحص الجهاز D-1",
		Priority:         model.PriorityNormal,
		RequiredSkill:    model.SkillInspection,
		EstimatedMinutes: 15,
		SourceReference:  model.SourceReference{EventType: model.EventPurchaseConfirmed},
	}
}

func TestProcessGeneratedTask(t *testing.T) {
	Convey("Given two idle workers and a permissive threshold", t, func() {
		h := newHarness(0.5, []model.User{worker("u1"), worker("u2")})
		defer h.close()

		Convey("When a definition is processed", func() {
			res, err := h.svc.ProcessGeneratedTask(h.ctx, inspectionDef())
			So(err, ShouldBeNil)

			Convey("Then it is auto-assigned to the lowest id on a tie", func() {
				So(res.Created, ShouldBeTrue)
				So(res.AutoAssign, ShouldBeTrue)
				So(res.AssignedTo, ShouldEqual, "u1")

				task, err := h.store.GetTask(h.ctx, res.TaskID)
				So(err, ShouldBeNil)
				So(task.Title, ShouldEqual, "فحص الجهاز D-1")
				So(task.Description, ShouldEqual, "Inspect device D-1")
				So(task.Source, ShouldEqual, service.TaskSource)
				So(task.Category, ShouldEqual, model.KindInspection)
			})

			Convey("And the decision is logged and the assignee notified", func() {
				entries, err := h.svc.DistributionLog(h.ctx, 10)
				So(err, ShouldBeNil)
				So(entries, ShouldHaveLength, 1)
				So(entries[0].Method, ShouldEqual, model.MethodAuto)
				So(entries[0].TaskID, ShouldEqual, res.TaskID)

				notes, err := h.store.NotificationsForUser(h.ctx, "u1")
				So(err, ShouldBeNil)
				So(notes, ShouldHaveLength, 1)
				So(notes[0].EntityID, ShouldEqual, res.TaskID)
				So(notes[0].ActionURL, ShouldEqual, service.ActionTasks)
			})
		})

		Convey("When the first worker is busier", func() {
			h.openTask("u1", 120, model.KindCleaning)
			res, err := h.svc.ProcessGeneratedTask(h.ctx, inspectionDef())
			So(err, ShouldBeNil)

			Convey("Then the idle worker wins", func() {
				So(res.AssignedTo, ShouldEqual, "u2")
			})
		})
	})

	Convey("Given no eligible workers", t, func() {
		h := newHarness(0.5, []model.User{worker("u1")})
		defer h.close()
		h.openTask("u1", 480, model.KindCleaning)

		Convey("When a definition is processed", func() {
			res, err := h.svc.ProcessGeneratedTask(h.ctx, inspectionDef())
			So(err, ShouldBeNil)

			Convey("Then nothing is created and nothing is written", func() {
				So(res.Created, ShouldBeFalse)
				So(res.Reason, ShouldEqual, service.ReasonNoAssignee)

				pending, err := h.svc.PendingApprovals(h.ctx)
				So(err, ShouldBeNil)
				So(pending, ShouldBeEmpty)
				entries, err := h.svc.DistributionLog(h.ctx, 10)
				So(err, ShouldBeNil)
				So(entries, ShouldBeEmpty)
			})
		})
	})

	Convey("Given an empty directory", t, func() {
		h := newHarness(0.5, nil)
		defer h.close()

		res, err := h.svc.ProcessGeneratedTask(h.ctx, inspectionDef())
		So(err, ShouldBeNil)
		So(res.Created, ShouldBeFalse)
		So(res.Reason, ShouldEqual, service.ReasonNoAssignee)
	})

	Convey("Given a threshold no cold start worker reaches", t, func() {
		h := newHarness(0.95, []model.User{manager("m1"), worker("u1")})
		defer h.close()

		Convey("When a definition is processed", func() {
			res, err := h.svc.ProcessGeneratedTask(h.ctx, inspectionDef())
			So(err, ShouldBeNil)

			Convey("Then a pending approval is stored and the manager notified", func() {
				So(res.Created, ShouldBeFalse)
				So(res.Reason, ShouldEqual, service.ReasonPendingApproval)
				So(res.ApprovalID, ShouldNotBeEmpty)

				pending, err := h.svc.PendingApprovals(h.ctx)
				So(err, ShouldBeNil)
				So(pending, ShouldHaveLength, 1)
				So(pending[0].SuggestedUserID, ShouldEqual, res.AssignedTo)
				So(pending[0].TaskDefinition.Kind, ShouldEqual, model.KindInspection)

				notes, err := h.store.NotificationsForUser(h.ctx, "m1")
				So(err, ShouldBeNil)
				So(notes, ShouldNotBeEmpty)
				So(notes[0].EntityID, ShouldEqual, res.ApprovalID)
				So(notes[0].ActionURL, ShouldEqual, service.ActionDistribution)
			})
		})
	})

	Convey("Given a definition that always needs approval", t, func() {
		h := newHarness(0.1, []model.User{manager("m1"), worker("u1")})
		defer h.close()

		def := inspectionDef()
		def.RequiresApproval = true
		res, err := h.svc.ProcessGeneratedTask(h.ctx, def)
		So(err, ShouldBeNil)
		So(res.Created, ShouldBeFalse)
		So(res.ApprovalID, ShouldNotBeEmpty)
	})
}

func TestSkillAndCapacityRanking(t *testing.T) {
	Convey("Given a strong but overloaded worker and a good idle one", t, func() {
		h := newHarness(0.7, []model.User{worker("a"), worker("b")})
		defer h.close()
		So(h.store.ApplySkillUpdate(h.ctx, model.SkillUpdate{UserID: "a", Skill: model.SkillInspection, Score: 90}), ShouldBeNil)
		So(h.store.ApplySkillUpdate(h.ctx, model.SkillUpdate{UserID: "b", Skill: model.SkillInspection, Score: 95}), ShouldBeNil)
		h.openTask("a", 96, model.KindCleaning)  // utilization 0.2
		h.openTask("b", 432, model.KindCleaning) // utilization 0.9

		Convey("When a purchase with two items arrives", func() {
			results, err := h.svc.ProcessEvent(h.ctx, model.Event{
				ID:   "ev-1",
				Type: model.EventPurchaseConfirmed,
				Payload: model.Payload{
					"invoice_id": "inv-1",
					"items": []any{
						map[string]any{"device_id": "d-1", "quantity": 1},
						map[string]any{"device_id": "d-2", "quantity": 1},
					},
				},
			})
			So(err, ShouldBeNil)

			Convey("Then the inspections go to the idle worker automatically", func() {
				inspections := 0
				for _, r := range results {
					if r.Definition.Kind != model.KindInspection {
						continue
					}
					inspections++
					So(r.Created, ShouldBeTrue)
					So(r.AssignedTo, ShouldEqual, "a")
				}
				So(inspections, ShouldBeGreaterThanOrEqualTo, 1)
			})
		})
	})
}

func TestProcessEvent(t *testing.T) {
	Convey("Given two workers", t, func() {
		h := newHarness(0.3, []model.User{worker("u1"), worker("u2")})
		defer h.close()

		Convey("When a device is sold", func() {
			results, err := h.svc.ProcessEvent(h.ctx, model.Event{
				ID: "ev-2", Type: model.EventDeviceSold, Payload: model.Payload{"invoice_id": "inv-9"},
			})
			So(err, ShouldBeNil)

			Convey("Then packaging and delivery tasks are created", func() {
				So(results, ShouldHaveLength, 2)
				So(results[0].Definition.Kind, ShouldEqual, model.KindPackaging)
				So(results[1].Definition.Kind, ShouldEqual, model.KindDelivery)
				for _, r := range results {
					So(r.Created, ShouldBeTrue)
				}
			})
		})

		Convey("When an inspection fails", func() {
			results, err := h.svc.ProcessEvent(h.ctx, model.Event{
				Type: model.EventInspectionComplete, Payload: model.Payload{"device_id": "d-1", "result": "fail"},
			})

			Convey("Then nothing is generated", func() {
				So(err, ShouldBeNil)
				So(results, ShouldBeEmpty)
			})
		})
	})
}

func TestReassignTasksFromUser(t *testing.T) {
	Convey("Given an absent worker with three open tasks and two replacements", t, func() {
		h := newHarness(0.5, []model.User{manager("m1"), worker("abs"), worker("u1"), worker("u2")})
		defer h.close()
		for _, k := range []model.TaskKind{model.KindInspection, model.KindDelivery, model.KindPackaging} {
			h.openTask("abs", 60, k)
		}
		So(h.store.RecordAbsence(h.ctx, "abs", today), ShouldBeNil)

		Convey("When absences for the day are reassigned", func() {
			results, err := h.svc.ReassignAbsent(h.ctx, today)
			So(err, ShouldBeNil)
			So(results, ShouldHaveLength, 1)
			res := results[0]

			Convey("Then tasks move away from the absent worker only", func() {
				So(len(res.Reassigned), ShouldBeBetweenOrEqual, 1, 3)
				So(res.Skipped, ShouldEqual, 3-len(res.Reassigned))
				for _, r := range res.Reassigned {
					So(r.NewUserID, ShouldNotEqual, "abs")
				}
				open, err := h.store.OpenTasksByUser(h.ctx, "abs")
				So(err, ShouldBeNil)
				So(open, ShouldHaveLength, res.Skipped)
			})

			Convey("And each move is logged and the manager gets a summary", func() {
				st, err := h.svc.Stats(h.ctx)
				So(err, ShouldBeNil)
				So(st.Assignments[model.MethodReassign], ShouldEqual, len(res.Reassigned))

				notes, err := h.store.NotificationsForUser(h.ctx, "m1")
				So(err, ShouldBeNil)
				var summaries []model.Notification
				for _, n := range notes {
					if n.Type == service.NotifyInfo {
						summaries = append(summaries, n)
					}
				}
				So(summaries, ShouldHaveLength, 1)
				So(summaries[0].EntityID, ShouldEqual, "abs")
			})
		})

		Convey("When the absence list is read", func() {
			ids, err := h.svc.AbsentToday(h.ctx)
			So(err, ShouldBeNil)
			So(ids, ShouldResemble, []string{"abs"})
		})
	})

	Convey("Given two absent workers and one present worker", t, func() {
		h := newHarness(0.5, []model.User{worker("a1"), worker("a2"), worker("u1")})
		defer h.close()
		for i := 0; i < 3; i++ {
			h.openTask("a1", 60, model.KindPackaging)
		}
		h.openTask("u1", 120, model.KindCleaning)
		So(h.store.RecordAbsence(h.ctx, "a1", today), ShouldBeNil)
		So(h.store.RecordAbsence(h.ctx, "a2", today), ShouldBeNil)

		results, err := h.svc.ReassignAbsent(h.ctx, today)
		So(err, ShouldBeNil)
		So(results, ShouldHaveLength, 2)

		Convey("Then no task lands on either absentee", func() {
			for _, res := range results {
				for _, r := range res.Reassigned {
					So(r.NewUserID, ShouldEqual, "u1")
				}
			}
			for id, want := range map[string]int{"a1": 0, "a2": 0, "u1": 4} {
				open, err := h.store.OpenTasksByUser(h.ctx, id)
				So(err, ShouldBeNil)
				So(open, ShouldHaveLength, want)
			}
		})

		Convey("And only the real moves are logged", func() {
			st, err := h.svc.Stats(h.ctx)
			So(err, ShouldBeNil)
			So(st.Assignments[model.MethodReassign], ShouldEqual, 3)
		})
	})

	Convey("Given nobody else can take the work", t, func() {
		h := newHarness(0.5, []model.User{worker("abs"), worker("full")})
		defer h.close()
		h.openTask("full", 480, model.KindCleaning)
		for i := 0; i < 3; i++ {
			h.openTask("abs", 30, model.KindPackaging)
		}

		res, err := h.svc.ReassignTasksFromUser(h.ctx, "abs")
		So(err, ShouldBeNil)
		So(res.Reassigned, ShouldBeEmpty)
		So(res.Skipped, ShouldEqual, 3)
	})

	Convey("Given a worker without open tasks", t, func() {
		h := newHarness(0.5, []model.User{worker("idle"), worker("u1")})
		defer h.close()

		res, err := h.svc.ReassignTasksFromUser(h.ctx, "idle")
		So(err, ShouldBeNil)
		So(res.Reassigned, ShouldBeEmpty)
		So(res.Skipped, ShouldEqual, 0)
	})
}

func TestApprovalDecisions(t *testing.T) {
	Convey("Given a pending approval", t, func() {
		h := newHarness(0.95, []model.User{manager("m1"), worker("u1"), worker("u2"),
			{ID: "gone", Role: "employee", Active: false}})
		defer h.close()
		res, err := h.svc.ProcessGeneratedTask(h.ctx, inspectionDef())
		So(err, ShouldBeNil)
		So(res.ApprovalID, ShouldNotBeEmpty)
		So(res.AssignedTo, ShouldNotEqual, "u2")

		Convey("When it is approved with an override", func() {
			out, err := h.svc.ApproveAssignment(h.ctx, res.ApprovalID, "m1", "u2")
			So(err, ShouldBeNil)

			Convey("Then the task goes to the override", func() {
				So(out.AssignedTo, ShouldEqual, "u2")
				task, err := h.store.GetTask(h.ctx, out.TaskID)
				So(err, ShouldBeNil)
				So(task.AssignedTo, ShouldEqual, "u2")
				So(task.CreatedBy, ShouldEqual, "m1")

				a, err := h.store.GetApproval(h.ctx, res.ApprovalID)
				So(err, ShouldBeNil)
				So(a.Status, ShouldEqual, model.ApprovalApproved)
				So(a.CreatedTaskID, ShouldEqual, out.TaskID)
			})

			Convey("And a second decision is rejected as invalid state", func() {
				_, err := h.svc.ApproveAssignment(h.ctx, res.ApprovalID, "m1", "")
				So(errors.Is(err, service.ErrApprovalNotPending), ShouldBeTrue)

				rej, err := h.svc.RejectApproval(h.ctx, res.ApprovalID, "m1")
				So(errors.Is(err, service.ErrApprovalNotPending), ShouldBeTrue)
				So(rej.RowsAffected, ShouldEqual, 0)

				entries, err := h.svc.DistributionLog(h.ctx, 10)
				So(err, ShouldBeNil)
				So(entries, ShouldHaveLength, 1)
				So(entries[0].Method, ShouldEqual, model.MethodApproval)
			})
		})

		Convey("When it is approved without an override", func() {
			out, err := h.svc.ApproveAssignment(h.ctx, res.ApprovalID, "m1", "")
			So(err, ShouldBeNil)
			So(out.AssignedTo, ShouldEqual, res.AssignedTo)
		})

		Convey("When the override is inactive", func() {
			_, err := h.svc.ApproveAssignment(h.ctx, res.ApprovalID, "m1", "gone")
			So(errors.Is(err, service.ErrUnknownUser), ShouldBeTrue)

			_, err = h.svc.ApproveAssignment(h.ctx, res.ApprovalID, "m1", "nobody")
			So(errors.Is(err, service.ErrUnknownUser), ShouldBeTrue)

			pending, err := h.svc.PendingApprovals(h.ctx)
			So(err, ShouldBeNil)
			So(pending, ShouldHaveLength, 1)
		})

		Convey("When it is rejected", func() {
			rej, err := h.svc.RejectApproval(h.ctx, res.ApprovalID, "m1")
			So(err, ShouldBeNil)
			So(rej.RowsAffected, ShouldEqual, 1)

			_, err = h.svc.ApproveAssignment(h.ctx, res.ApprovalID, "m1", "")
			So(errors.Is(err, service.ErrApprovalNotPending), ShouldBeTrue)
		})

		Convey("When an unknown id is approved", func() {
			_, err := h.svc.ApproveAssignment(h.ctx, "missing", "m1", "")
			So(errors.Is(err, service.ErrApprovalNotPending), ShouldBeTrue)
		})

		Convey("When managers race to approve", func() {
			var (
				wg   sync.WaitGroup
				mu   sync.Mutex
				wins int
			)
			for i := 0; i < 6; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, err := h.svc.ApproveAssignment(h.ctx, res.ApprovalID, "m1", ""); err == nil {
						mu.Lock()
						wins++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			Convey("Then exactly one wins", func() {
				So(wins, ShouldEqual, 1)
			})
		})
	})
}

func TestTaskCompletion(t *testing.T) {
	Convey("Given an auto-assigned task", t, func() {
		h := newHarness(0.5, []model.User{worker("u1")})
		defer h.close()
		res, err := h.svc.ProcessGeneratedTask(h.ctx, inspectionDef())
		So(err, ShouldBeNil)
		So(res.Created, ShouldBeTrue)

		Convey("When the assignee completes it with a rating", func() {
			rating := 3.0
			out, err := h.svc.CompleteTask(h.ctx, res.TaskID, "u1", &rating)
			So(err, ShouldBeNil)

			Convey("Then the inspection skill rises by the rating", func() {
				So(out.OnTime, ShouldBeTrue)
				So(out.Skill, ShouldEqual, model.SkillInspection)
				So(out.Score, ShouldAlmostEqual, 53.0)

				skills, err := h.svc.AllSkills(h.ctx)
				So(err, ShouldBeNil)
				So(skills, ShouldHaveLength, 1)
				So(skills[0].Skills[model.SkillInspection], ShouldAlmostEqual, 53.0)
				So(skills[0].Skills[model.SkillSales], ShouldAlmostEqual, 50.0)
			})

			Convey("And completing it again fails", func() {
				_, err := h.svc.CompleteTask(h.ctx, res.TaskID, "u1", nil)
				So(errors.Is(err, service.ErrTaskNotOpen), ShouldBeTrue)
			})
		})

		Convey("When someone else reports it", func() {
			_, err := h.svc.OnTaskCompleted(h.ctx, res.TaskID, "u9", "")
			So(errors.Is(err, service.ErrAssigneeMismatch), ShouldBeTrue)

			_, err = h.svc.CompleteTask(h.ctx, res.TaskID, "u9", nil)
			So(errors.Is(err, service.ErrAssigneeMismatch), ShouldBeTrue)
		})

		Convey("When the task does not exist", func() {
			_, err := h.svc.OnTaskCompleted(h.ctx, "missing", "u1", "")
			So(errors.Is(err, service.ErrTaskNotFound), ShouldBeTrue)
		})
	})

	Convey("Given an overdue task", t, func() {
		h := newHarness(0.5, []model.User{worker("u1")})
		defer h.close()
		due := fixedNow.Add(-time.Hour)
		task, err := h.store.CreateTask(h.ctx, model.Task{
			Title: "late delivery", AssignedTo: "u1", Category: model.KindDelivery, DueAt: &due,
		})
		So(err, ShouldBeNil)

		out, err := h.svc.CompleteTask(h.ctx, task.ID, "", nil)
		So(err, ShouldBeNil)
		So(out.OnTime, ShouldBeFalse)
		So(out.Score, ShouldAlmostEqual, 48.0)
	})
}

func TestConcurrentAssignmentsRespectCapacity(t *testing.T) {
	Convey("Given a single worker and many simultaneous hour-long tasks", t, func() {
		h := newHarness(0.3, []model.User{worker("u1")})
		defer h.close()
		def := inspectionDef()
		def.EstimatedMinutes = 60

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			created int
		)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := h.svc.ProcessGeneratedTask(h.ctx, def)
				if err == nil && res.Created {
					mu.Lock()
					created++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		Convey("Then assignments stop once utilization crosses the cap", func() {
			// 6 hours leave utilization at 0.75, the 7th lifts it past 0.85.
			So(created, ShouldEqual, 7)
			loads, err := h.svc.AllWorkloads(h.ctx)
			So(err, ShouldBeNil)
			So(loads, ShouldHaveLength, 1)
			So(loads[0].TaskCount, ShouldEqual, 7)
		})
	})
}

func TestBusSubscription(t *testing.T) {
	Convey("Given a service subscribed to a running bus", t, func() {
		b := bus.New(bus.WithWorkerCount(2))
		b.Start(context.Background())
		defer func() { _ = b.Close(context.Background()) }()

		h := newHarness(0.3, []model.User{worker("u1"), worker("u2")}, service.WithBus(b))
		defer h.close()

		Convey("When a warranty claim is emitted synchronously", func() {
			_, outcomes := b.EmitSync(h.ctx, model.EventWarrantyClaim, model.Payload{"claim_id": "c-1"})

			Convey("Then the handler succeeds and both tasks are logged", func() {
				So(outcomes, ShouldHaveLength, 1)
				So(outcomes[0].Err, ShouldBeNil)
				entries, err := h.svc.DistributionLog(h.ctx, 10)
				So(err, ShouldBeNil)
				So(entries, ShouldHaveLength, 2)
			})
		})

		Convey("When the service stops", func() {
			h.svc.Stop()
			_, outcomes := b.EmitSync(h.ctx, model.EventWarrantyClaim, model.Payload{"claim_id": "c-2"})

			Convey("Then it no longer receives events", func() {
				So(outcomes, ShouldBeEmpty)
			})
		})
	})
}

func TestDistributionConfig(t *testing.T) {
	Convey("Given a running service", t, func() {
		h := newHarness(0.7, []model.User{worker("u1")})
		defer h.close()

		Convey("When a valid config is set", func() {
			cfg := model.DistributionConfig{WeightSkill: 0.5, WeightWorkload: 0.5, MaxUtilization: 0.9, AutoAssignThreshold: 0.6}
			So(h.svc.SetDistributionConfig(h.ctx, cfg), ShouldBeNil)

			Convey("Then it is active and persisted", func() {
				So(h.svc.DistributionConfig(), ShouldResemble, cfg)
				stored, ok, err := h.store.LoadDistributionConfig(h.ctx)
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(stored, ShouldResemble, cfg)
			})
		})

		Convey("When an invalid config is set", func() {
			err := h.svc.SetDistributionConfig(h.ctx, model.DistributionConfig{MaxUtilization: 2})

			Convey("Then it is refused and the old one stays", func() {
				So(errors.Is(err, model.ErrInvalidConfig), ShouldBeTrue)
				So(h.svc.DistributionConfig().AutoAssignThreshold, ShouldEqual, 0.7)
			})
		})

		Convey("When candidates are scored without assigning", func() {
			cands, err := h.svc.CandidateScores(h.ctx, inspectionDef())
			So(err, ShouldBeNil)
			So(cands, ShouldHaveLength, 1)
			So(cands[0].UserID, ShouldEqual, "u1")
		})
	})
}

func TestRoster(t *testing.T) {
	Convey("Given a service with one manager", t, func() {
		h := newHarness(0.5, []model.User{manager("admin")})
		defer h.close()

		Convey("When a worker is registered", func() {
			So(h.svc.RegisterUser(h.ctx, worker("w9")), ShouldBeNil)

			Convey("Then it gets cold start skill scores", func() {
				skills, err := h.svc.AllSkills(h.ctx)
				So(err, ShouldBeNil)
				So(skills, ShouldHaveLength, 2)
				So(skills[1].UserID, ShouldEqual, "w9")
				So(skills[1].Skills.Get(model.SkillInspection), ShouldEqual, model.ColdStartSkillScore)
			})

			Convey("Then marking it absent today lists it", func() {
				So(h.svc.MarkAbsent(h.ctx, "w9", ""), ShouldBeNil)
				ids, err := h.svc.AbsentToday(h.ctx)
				So(err, ShouldBeNil)
				So(ids, ShouldResemble, []string{"w9"})
			})
		})

		Convey("When an unknown user is marked absent", func() {
			err := h.svc.MarkAbsent(h.ctx, "ghost", today)
			So(errors.Is(err, service.ErrUnknownUser), ShouldBeTrue)
		})

		Convey("When the directory cannot be read", func() {
			So(h.store.Close(), ShouldBeNil)
			err := h.svc.MarkAbsent(h.ctx, "admin", today)

			Convey("Then the storage error is returned, not an unknown user", func() {
				So(err, ShouldNotBeNil)
				So(errors.Is(err, service.ErrUnknownUser), ShouldBeFalse)
			})
		})

		Convey("When a user without id is registered", func() {
			err := h.svc.RegisterUser(h.ctx, model.User{FullName: "nobody"})
			So(errors.Is(err, service.ErrUnknownUser), ShouldBeTrue)
		})
	})
}
