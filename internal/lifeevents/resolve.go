package lifeevents

import (
	"context"
	"errors"
	"fmt"

	"github.com/nidhogg/nuka-society/internal/model"
	"github.com/nidhogg/nuka-society/internal/simerr"
	"github.com/nidhogg/nuka-society/internal/store"
	"go.uber.org/zap"
)

// fleeting event types resolve on their own once they are old.
var fleeting = map[model.LifeEventType]bool{
	model.EventBetrayal:       true,
	model.EventReconciliation: true,
	model.EventGraduation:     true,
	model.EventTransformation: true,
}

// CheckResolutions closes events whose story has ended: mentorships whose
// student caught up graduate, rivalries and feuds whose scores recovered
// reconcile, lapsed friendships end and old fleeting events are resolved.
// It returns the events it created.
func (e *Engine) CheckResolutions(ctx context.Context) ([]*model.LifeEvent, error) {
	active, err := e.repo.LifeEvents(store.LifeEventFilter{Status: model.LifeEventActive})
	if err != nil {
		return nil, err
	}
	now := e.clock.Now()
	var created []*model.LifeEvent

	for _, ev := range active {
		if ev.Status != model.LifeEventActive {
			continue // resolved earlier in this sweep
		}
		if fleeting[ev.Type] {
			if now.Sub(ev.Timestamp) >= e.th.StaleAfter {
				if err := e.resolve(ev); err != nil {
					return created, err
				}
			}
			continue
		}

		var (
			next *model.LifeEvent
			err  error
		)
		switch ev.Type {
		case model.EventMentorship:
			next, err = e.checkGraduation(ctx, ev)
		case model.EventRivalry, model.EventFeud:
			next, err = e.checkReconciliation(ctx, ev)
		case model.EventFriendship:
			err = e.checkLapse(ev)
		}
		if errors.Is(err, simerr.ErrNotFound) || errors.Is(err, simerr.ErrValidation) {
			e.logger.Warn("skipping malformed life event",
				zap.String("event", ev.ID),
				zap.String("type", string(ev.Type)),
				zap.Error(err))
			continue
		}
		if err != nil {
			return created, err
		}
		if next != nil {
			created = append(created, next)
		}
	}
	return created, nil
}

func (e *Engine) resolve(ev *model.LifeEvent) error {
	now := e.clock.Now()
	ev.Status = model.LifeEventResolved
	ev.ResolvedAt = &now
	return e.repo.SaveLifeEvent(ev)
}

func (e *Engine) checkGraduation(ctx context.Context, ev *model.LifeEvent) (*model.LifeEvent, error) {
	mentor, student, err := e.pair(ev)
	if err != nil {
		return nil, err
	}
	if ev.Trait == "" {
		return nil, simerr.Validation("mentorship %s has no trait", ev.ID)
	}
	if student.Traits.Get(ev.Trait) < mentor.Traits.Get(ev.Trait)-1 {
		return nil, nil
	}
	if err := e.resolve(ev); err != nil {
		return nil, err
	}
	grad := e.event(model.EventGraduation, mentor, student, 7,
		fmt.Sprintf("%s graduated from %s's teaching in %s", student.Name, mentor.Name, ev.Trait))
	grad.Trait = ev.Trait
	return e.create(ctx, grad)
}

func (e *Engine) checkReconciliation(ctx context.Context, ev *model.LifeEvent) (*model.LifeEvent, error) {
	a, b, err := e.pair(ev)
	if err != nil {
		return nil, err
	}
	for _, pair := range [][2]string{{a.ID, b.ID}, {b.ID, a.ID}} {
		r, err := e.repo.Relationship(pair[0], pair[1])
		if err != nil {
			return nil, err
		}
		if r == nil || r.Score < 0 {
			return nil, nil
		}
	}

	// A feud and the rivalry under it end together.
	for _, typ := range []model.LifeEventType{model.EventRivalry, model.EventFeud} {
		open, err := e.activeEvent(typ, a.ID, b.ID)
		if err != nil {
			return nil, err
		}
		if open != nil {
			if err := e.resolve(open); err != nil {
				return nil, err
			}
		}
	}
	return e.create(ctx, e.event(model.EventReconciliation, a, b, 7,
		fmt.Sprintf("%s and %s made peace", a.Name, b.Name)))
}

func (e *Engine) checkLapse(ev *model.LifeEvent) error {
	a, b, err := e.pair(ev)
	if err != nil {
		return err
	}
	for _, pair := range [][2]string{{a.ID, b.ID}, {b.ID, a.ID}} {
		r, err := e.repo.Relationship(pair[0], pair[1])
		if err != nil {
			return err
		}
		if r != nil && r.Score < e.th.FriendshipLapse {
			return e.resolve(ev)
		}
	}
	return nil
}
