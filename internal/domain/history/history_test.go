package history_test

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/okian/autodist/internal/domain/history"
	"github.com/okian/autodist/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

type memStore struct {
	mu      sync.Mutex
	scores  map[string]model.SkillScoreSet
	stats   map[string]map[model.Skill]model.SkillStats
	readErr error
}

func newMemStore() *memStore {
	return &memStore{
		scores: map[string]model.SkillScoreSet{},
		stats:  map[string]map[model.Skill]model.SkillStats{},
	}
}

func (m *memStore) SkillScores(_ context.Context, userID string) (model.SkillScoreSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	out := model.SkillScoreSet{}
	for k, v := range m.scores[userID] {
		out[k] = v
	}
	return out, nil
}

func (m *memStore) AllSkillScores(context.Context) (map[string]model.SkillScoreSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]model.SkillScoreSet{}
	for id, set := range m.scores {
		cp := model.SkillScoreSet{}
		for k, v := range set {
			cp[k] = v
		}
		out[id] = cp
	}
	return out, nil
}

func (m *memStore) ApplySkillUpdate(_ context.Context, u model.SkillUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scores[u.UserID] == nil {
		m.scores[u.UserID] = model.SkillScoreSet{}
		m.stats[u.UserID] = map[model.Skill]model.SkillStats{}
	}
	m.scores[u.UserID][u.Skill] = u.Score
	st := m.stats[u.UserID][u.Skill]
	st.Completions++
	if u.OnTime {
		st.OnTime++
	}
	st.TotalMinutes += u.Minutes
	m.stats[u.UserID][u.Skill] = st
	return nil
}

func (m *memStore) SkillStats(_ context.Context, userID string, skill model.Skill) (model.SkillStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats[userID][skill], nil
}

func (m *memStore) SeedSkills(_ context.Context, userID string, skills []model.Skill, score float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scores[userID] == nil {
		m.scores[userID] = model.SkillScoreSet{}
	}
	for _, s := range skills {
		if _, ok := m.scores[userID][s]; !ok {
			m.scores[userID][s] = score
		}
	}
	return nil
}

func rating(v float64) *float64 { return &v }

func TestNudge(t *testing.T) {
	Convey("Given the memoryless update rule", t, func() {
		So(history.Nudge(50, history.Outcome{OnTime: true}), ShouldEqual, 55)
		So(history.Nudge(50, history.Outcome{OnTime: true, Rating: rating(3)}), ShouldEqual, 53)
		So(history.Nudge(50, history.Outcome{OnTime: true, Rating: rating(9)}), ShouldEqual, 55)
		So(history.Nudge(50, history.Outcome{OnTime: true, Rating: rating(-4)}), ShouldEqual, 50)
		So(history.Nudge(50, history.Outcome{OnTime: false, Rating: rating(5)}), ShouldEqual, 48)
		So(history.Nudge(98, history.Outcome{OnTime: true}), ShouldEqual, 100)
		So(history.Nudge(1, history.Outcome{OnTime: false}), ShouldEqual, 0)
	})

	Convey("Given any sequence of completions", t, func() {
		rng := rand.New(rand.NewSource(7))
		score := 50.0
		bounded := true
		for i := 0; i < 5000; i++ {
			o := history.Outcome{OnTime: rng.Intn(2) == 0}
			if rng.Intn(3) > 0 {
				o.Rating = rating(rng.Float64()*20 - 5)
			}
			score = history.Nudge(score, o)
			if score < 0 || score > 100 {
				bounded = false
			}
		}

		Convey("Then the score stays within [0,100]", func() {
			So(bounded, ShouldBeTrue)
		})
	})
}

func TestLearner(t *testing.T) {
	ctx := context.Background()

	Convey("Given a learner over an empty store", t, func() {
		store := newMemStore()
		l := history.NewLearner(store)

		Convey("Then unseen workers start at 50 in every skill", func() {
			scores := l.GetSkillScores(ctx, "w-1")
			So(len(scores), ShouldEqual, len(model.Skills()))
			So(scores.Get(model.SkillDelivery), ShouldEqual, 50)
			So(l.GetHistoryScore(ctx, "w-1", model.KindPackaging), ShouldEqual, 0.5)
		})

		Convey("When completions are recorded", func() {
			s, err := l.RecordCompletion(ctx, "w-1", model.KindPackaging, history.Outcome{OnTime: true, Rating: rating(4), Minutes: 10})
			So(err, ShouldBeNil)
			So(s, ShouldEqual, 54)
			s, err = l.RecordCompletion(ctx, "w-1", model.KindSticker, history.Outcome{OnTime: false, Minutes: 30})
			So(err, ShouldBeNil)
			So(s, ShouldEqual, 52)

			Convey("Then the mapped skill changes and others stay cold", func() {
				scores := l.GetSkillScores(ctx, "w-1")
				So(scores.Get(model.SkillPreparation), ShouldEqual, 52)
				So(scores.Get(model.SkillInspection), ShouldEqual, 50)
				So(l.GetHistoryScore(ctx, "w-1", model.KindPreparation), ShouldEqual, 0.52)
			})

			Convey("Then the aggregates reflect both completions", func() {
				avg, err := l.GetAverageCompletionMinutes(ctx, "w-1", model.SkillPreparation)
				So(err, ShouldBeNil)
				So(avg, ShouldEqual, 20)
				rate, err := l.GetOnTimeRate(ctx, "w-1", model.SkillPreparation)
				So(err, ShouldBeNil)
				So(rate, ShouldEqual, 0.5)
			})
		})

		Convey("When a worker is seeded", func() {
			So(l.EnsureWorker(ctx, "w-2"), ShouldBeNil)
			all, err := l.AllSkills(ctx, []string{"w-3"})
			So(err, ShouldBeNil)

			Convey("Then both listed and seeded workers have full sets", func() {
				So(len(all["w-2"]), ShouldEqual, len(model.Skills()))
				So(len(all["w-3"]), ShouldEqual, len(model.Skills()))
			})
		})

		Convey("When the store cannot be read", func() {
			store.readErr = errors.New("offline")

			Convey("Then reads degrade to cold start and updates fail", func() {
				So(l.GetSkillScores(ctx, "w-1").Get(model.SkillSales), ShouldEqual, 50)
				_, err := l.RecordCompletion(ctx, "w-1", model.KindSales, history.Outcome{OnTime: true})
				So(err, ShouldNotBeNil)
			})
		})
	})

	Convey("Given concurrent completions for one worker", t, func() {
		store := newMemStore()
		l := history.NewLearner(store)
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = l.RecordCompletion(ctx, "w-1", model.KindDelivery, history.Outcome{OnTime: true, Rating: rating(1)})
			}()
		}
		wg.Wait()

		Convey("Then no update is lost", func() {
			So(l.GetSkillScores(ctx, "w-1").Get(model.SkillDelivery), ShouldEqual, 58)
		})
	})
}
