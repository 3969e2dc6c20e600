package factions

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/nidhogg/nuka-society/internal/model"
	"github.com/nidhogg/nuka-society/internal/simerr"
	"github.com/nidhogg/nuka-society/internal/store"
	"go.uber.org/zap"
)

// beliefTrait maps belief keywords to the trait that draws agents to them.
var beliefTrait = map[string]model.TraitName{
	"community":  model.TraitEmpathy,
	"harmony":    model.TraitEmpathy,
	"kindness":   model.TraitEmpathy,
	"prosperity": model.TraitAmbition,
	"power":      model.TraitAmbition,
	"progress":   model.TraitAmbition,
	"discovery":  model.TraitCuriosity,
	"craft":      model.TraitCreativity,
	"honor":      model.TraitCourage,
	"fellowship": model.TraitCharm,
	"knowledge":  model.TraitIntelligence,
	"joy":        model.TraitHumor,
}

// traitBelief is the belief a founder brings from each trait.
var traitBelief = map[model.TraitName]string{
	model.TraitEmpathy:      "community",
	model.TraitAmbition:     "prosperity",
	model.TraitCuriosity:    "discovery",
	model.TraitCreativity:   "craft",
	model.TraitCourage:      "honor",
	model.TraitCharm:        "fellowship",
	model.TraitIntelligence: "knowledge",
	model.TraitHumor:        "joy",
}

var beliefGoal = map[string]string{
	"community":  "look after one another",
	"prosperity": "grow rich together",
	"discovery":  "map the unknown",
	"craft":      "make beautiful things",
	"honor":      "stand up for what is right",
	"fellowship": "welcome everyone",
	"knowledge":  "gather what is known",
	"joy":        "keep the town laughing",
}

var beliefTitle = map[string]string{
	"community":  "Neighbors",
	"prosperity": "Guild",
	"discovery":  "Wayfinders",
	"craft":      "Workshop",
	"honor":      "Wardens",
	"fellowship": "Circle",
	"knowledge":  "Society",
	"joy":        "Revelers",
}

// FormScore rates how likely an agent is to found a faction.
func FormScore(t model.Traits) int { return t.Ambition + t.Charm }

// JoinScore rates how strongly the agent is drawn to the beliefs: the highest
// trait matched by any belief keyword, or 0 when nothing matches.
func JoinScore(t model.Traits, beliefs []string) int {
	best := 0
	for _, b := range beliefs {
		if trait, ok := beliefTrait[b]; ok {
			best = max(best, t.Get(trait))
		}
	}
	return best
}

// Beliefs returns the two beliefs a founder with these traits would hold.
func Beliefs(t model.Traits) []string {
	traits := append([]model.TraitName(nil), model.AllTraits...)
	sort.SliceStable(traits, func(i, j int) bool { return t.Get(traits[i]) > t.Get(traits[j]) })
	return []string{traitBelief[traits[0]], traitBelief[traits[1]]}
}

// Pass runs one round of faction dynamics: loyalty drift and promotions,
// inter-faction drift, founding and joining.
func (e *Engine) Pass(ctx context.Context) error {
	live, err := e.repo.Factions(store.FactionFilter{Live: true})
	if err != nil {
		return err
	}
	for _, f := range live {
		if err := e.loyaltyDrift(ctx, f); err != nil {
			return fmt.Errorf("loyalty of %s: %w", f.ID, err)
		}
	}
	if err := e.relationsDrift(); err != nil {
		return err
	}
	if err := e.found(ctx); err != nil {
		return err
	}
	return e.join(ctx)
}

// loyaltyDrift: members who like the head gain loyalty, those who dislike
// them lose it, and members without a friend in the faction slowly drift away.
func (e *Engine) loyaltyDrift(ctx context.Context, f *model.Faction) error {
	members, err := e.repo.Memberships(store.MembershipFilter{FactionID: f.ID, ActiveOnly: true})
	if err != nil {
		return err
	}
	head := e.head(f, members)

	for _, ms := range members {
		if ms.AgentID == head || f.Status == model.FactionDisbanded {
			continue
		}
		delta := 0
		if head != "" {
			r, err := e.repo.Relationship(ms.AgentID, head)
			if err != nil {
				return err
			}
			switch {
			case r == nil:
			case r.Score >= 3:
				delta += 2
			case r.Score <= -2:
				delta -= 3
			}
		}
		friend, err := e.hasFriend(ms.AgentID, members)
		if err != nil {
			return err
		}
		if !friend {
			delta--
		}
		if delta == 0 {
			continue
		}
		updated, err := e.UpdateLoyalty(ctx, f.ID, ms.AgentID, delta)
		if err != nil {
			return err
		}
		if !updated.Active() {
			continue
		}
		if next, gate := e.nextRank(updated.Role); next != "" && updated.Loyalty >= gate {
			_, err := e.Promote(ctx, f.ID, ms.AgentID)
			if err != nil && !errors.Is(err, simerr.ErrConflict) {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) hasFriend(agentID string, members []*model.Membership) (bool, error) {
	for _, other := range members {
		if other.AgentID == agentID || !other.Active() {
			continue
		}
		r, err := e.repo.Relationship(agentID, other.AgentID)
		if err != nil {
			return false, err
		}
		if r != nil && r.Score >= 4 {
			return true, nil
		}
	}
	return false, nil
}

// relationsDrift moves each faction pair toward the average affinity between
// their members, at most 5 points per pass.
func (e *Engine) relationsDrift() error {
	live, err := e.repo.Factions(store.FactionFilter{Live: true})
	if err != nil {
		return err
	}
	roster := make(map[string][]string, len(live))
	for _, f := range live {
		members, err := e.repo.Memberships(store.MembershipFilter{FactionID: f.ID, ActiveOnly: true})
		if err != nil {
			return err
		}
		for _, ms := range members {
			roster[f.ID] = append(roster[f.ID], ms.AgentID)
		}
	}

	for i, a := range live {
		for _, b := range live[i+1:] {
			sum, n := 0, 0
			for _, x := range roster[a.ID] {
				for _, y := range roster[b.ID] {
					if x == y {
						continue
					}
					for _, pair := range [][2]string{{x, y}, {y, x}} {
						r, err := e.repo.Relationship(pair[0], pair[1])
						if err != nil {
							return err
						}
						if r != nil {
							sum += r.Score
							n++
						}
					}
				}
			}
			if n == 0 {
				continue
			}
			delta := int(math.Round(float64(sum) / float64(n)))
			delta = max(-5, min(5, delta))
			if delta == 0 {
				continue
			}
			if _, err := e.AdjustRelationship(a.ID, b.ID, delta, "members' feelings"); err != nil {
				return err
			}
		}
	}
	return nil
}

// found lets at most one ambitious, charming agent start a faction per pass.
func (e *Engine) found(ctx context.Context) error {
	agents, err := e.repo.Agents()
	if err != nil {
		return err
	}
	for _, a := range agents {
		if FormScore(a.Traits) < e.th.FoundScore || !a.Awake() {
			continue
		}
		founded, err := e.leadsLiveFaction(a.ID)
		if err != nil {
			return err
		}
		if founded || e.rng.Float64() >= e.th.FoundChance {
			continue
		}
		beliefs := Beliefs(a.Traits)
		goals := make([]string, 0, len(beliefs))
		for _, b := range beliefs {
			goals = append(goals, beliefGoal[b])
		}
		name := fmt.Sprintf("%s's %s", a.Name, beliefTitle[beliefs[0]])
		_, err = e.CreateFaction(ctx, a.ID, name, beliefs, goals, a.Location)
		if errors.Is(err, simerr.ErrConflict) {
			continue
		}
		if err != nil {
			return err
		}
		return nil
	}
	return nil
}

func (e *Engine) leadsLiveFaction(agentID string) (bool, error) {
	live, err := e.repo.Factions(store.FactionFilter{Live: true})
	if err != nil {
		return false, err
	}
	for _, f := range live {
		if f.FounderID == agentID {
			return true, nil
		}
	}
	return false, nil
}

// join lets each agent join at most one faction whose beliefs they share.
func (e *Engine) join(ctx context.Context) error {
	agents, err := e.repo.Agents()
	if err != nil {
		return err
	}
	live, err := e.repo.Factions(store.FactionFilter{Live: true})
	if err != nil {
		return err
	}
	for _, a := range agents {
		for _, f := range live {
			if f.Status == model.FactionDisbanded || JoinScore(a.Traits, f.Beliefs) < e.th.JoinScore {
				continue
			}
			ok, err := e.eligible(f.ID, a.ID)
			if err != nil {
				return err
			}
			if !ok || e.rng.Float64() >= e.th.JoinChance {
				continue
			}
			_, err = e.AddMember(ctx, f.ID, a.ID)
			if errors.Is(err, simerr.ErrConflict) {
				e.logger.Debug("join skipped", zap.String("agent", a.ID), zap.String("faction", f.ID), zap.Error(err))
				break
			}
			if err != nil {
				return err
			}
			break
		}
	}
	return nil
}

// eligible reports whether the agent is neither a member nor an outcast of the faction.
func (e *Engine) eligible(factionID, agentID string) (bool, error) {
	past, err := e.repo.Memberships(store.MembershipFilter{FactionID: factionID, AgentID: agentID})
	if err != nil {
		return false, err
	}
	for _, ms := range past {
		if ms.Active() || ms.Role == model.RoleOutcast {
			return false, nil
		}
	}
	return true, nil
}
