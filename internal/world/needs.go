package world

import (
	"math"
	"time"

	"github.com/nidhogg/nuka-society/internal/model"
)

// NeedsRates are per-hour changes. Energy is fatigue: it rises while awake
// and falls while asleep.
type NeedsRates struct {
	Hunger      float64 `json:"hunger"`
	Social      float64 `json:"social"`
	EnergyAwake float64 `json:"energy_awake"`
	EnergySleep float64 `json:"energy_sleep"`
}

// DefaultNeedsRates returns the standard decay rates.
func DefaultNeedsRates() NeedsRates {
	return NeedsRates{Hunger: 0.6, Social: 0.4, EnergyAwake: 0.5, EnergySleep: -1.5}
}

// NeedsModel decays agent needs linearly with elapsed time.
type NeedsModel struct {
	rates NeedsRates
}

// NewNeedsModel creates a needs model.
func NewNeedsModel(rates NeedsRates) *NeedsModel {
	return &NeedsModel{rates: rates}
}

// Decay advances the agent's needs by the given number of hours and lets
// mood follow them.
func (m *NeedsModel) Decay(a *model.Agent, hours float64) {
	if hours <= 0 {
		return
	}
	a.Needs.Hunger = model.ClampNeed(a.Needs.Hunger + m.rates.Hunger*hours)
	if a.State == model.StateSleeping {
		a.Needs.Energy = model.ClampNeed(a.Needs.Energy + m.rates.EnergySleep*hours)
	} else {
		a.Needs.Energy = model.ClampNeed(a.Needs.Energy + m.rates.EnergyAwake*hours)
		a.Needs.Social = model.ClampNeed(a.Needs.Social + m.rates.Social*hours)
	}
	UpdateMood(a)
}

// Urgency returns the most pressing need and its value.
func Urgency(a *model.Agent) (string, float64) {
	name, v := "hunger", a.Needs.Hunger
	if a.Needs.Energy > v {
		name, v = "energy", a.Needs.Energy
	}
	if a.Needs.Social > v {
		name, v = "social", a.Needs.Social
	}
	return name, v
}

// UpdateMood derives mood from needs.
func UpdateMood(a *model.Agent) {
	avg := (a.Needs.Hunger + a.Needs.Energy + a.Needs.Social) / 3
	a.Mood.Happiness = round1(model.MaxNeed - avg)
	a.Mood.Energy = round1(model.MaxNeed - a.Needs.Energy)
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

// DaySchedule decides when agents sleep.
type DaySchedule struct {
	SleepHour int `json:"sleep_hour"`
	WakeHour  int `json:"wake_hour"`
}

// DefaultDaySchedule sleeps at 23:00 and wakes at 07:00.
func DefaultDaySchedule() DaySchedule {
	return DaySchedule{SleepHour: 23, WakeHour: 7}
}

// Asleep reports whether t falls in the night window.
func (d DaySchedule) Asleep(t time.Time) bool {
	h := t.Hour()
	if d.SleepHour > d.WakeHour {
		return h >= d.SleepHour || h < d.WakeHour
	}
	return h >= d.SleepHour && h < d.WakeHour
}
