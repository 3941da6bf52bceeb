package engine

import (
	"capline/internal/domain"
	"capline/internal/rules"
)

const eventInterval = 3

// MaybeInjectEvent draws a random event after every third completed
// mission while the quota lasts. Events are drawn without replacement and
// affect the learner only. A checkpoint fires at most once, so callers may
// invoke this after every turn.
func (r *Run) MaybeInjectEvent() (*domain.Event, error) {
	if r.phase == PhaseFinished {
		return nil, nil
	}
	if r.pending != nil {
		return nil, domain.ErrTurnPending
	}
	if r.index == 0 || r.index%eventInterval != 0 || r.index == r.lastCheckpoint {
		return nil, nil
	}
	if r.eventsTriggered >= r.eventQuota {
		return nil, nil
	}
	used := make(map[string]bool, len(r.usedEventIDs))
	for _, id := range r.usedEventIDs {
		used[id] = true
	}
	var available []domain.Event
	for _, e := range r.eventPool {
		if !used[e.ID] {
			available = append(available, e)
		}
	}
	if len(available) == 0 {
		return nil, nil
	}

	event := available[int(r.rng.Float64()*float64(len(available)))]
	r.lastCheckpoint = r.index
	r.usedEventIDs = append(r.usedEventIDs, event.ID)
	r.eventsTriggered++

	r.learner.Finances = rules.ApplyFinancialDeltas(r.learner.Finances, event.FinancialDelta())
	r.learner.Metrics = rules.ApplyMetricDeltas(r.learner.Metrics, event.MetricDeltas)
	r.learner.Composite = rules.Composite(r.learner.Metrics)

	r.eventLog = append(r.eventLog, domain.EventLogEntry{
		Timestamp:         r.timestamp(),
		MissionCheckpoint: r.index,
		EventID:           event.ID,
		EventType:         event.Type,
		CapDeltaM:         event.CapDeltaM,
		DeadCapDeltaM:     event.DeadCapDeltaM,
		MetricDeltas:      event.MetricDeltas,
	})
	r.logger.Printf("run: event id=%s checkpoint=%d event=%s type=%s", r.id, r.index, event.ID, event.Type)
	return &event, nil
}
