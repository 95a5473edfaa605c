// internal/monitor/tracker.go - Debounced alert state machine
package monitor

import (
    "context"
    "fmt"
    "time"

    "github.com/google/uuid"
    "github.com/sirupsen/logrus"

    "github.com/goodmeow/tg-monitoring/internal/store"
)

type EventType string

const (
    EventAlert     EventType = "alert"
    EventRecovered EventType = "recovered"
)

// TransitionEvent is emitted exactly once per edge: when a metric enters
// alert after the configured number of consecutive breaches, and once when
// it leaves alert on the first clean reading.
type TransitionEvent struct {
    ID       string    `json:"id"`
    Type     EventType `json:"type"`
    MetricID string    `json:"metric_id"`
    Label    string    `json:"label"`
    Value    float64   `json:"value"`
    Message  string    `json:"message"`
    At       time.Time `json:"at"`
}

// Tracker applies check results to durable alert state. A breach bumps the
// consecutive counter, a clean reading resets it; the status only flips to
// alert once the counter reaches minConsecutive, so a single noisy sample
// never pages anyone.
type Tracker struct {
    store          store.Store
    minConsecutive int

    now func() time.Time
}

func NewTracker(s store.Store, minConsecutive int) *Tracker {
    return &Tracker{
        store:          s,
        minConsecutive: minConsecutive,
        now:            time.Now,
    }
}

// Apply folds one check into the stored state for its metric, returning
// the updated state and a transition event if this reading crossed an
// edge. Checks without a reading are skipped entirely.
func (t *Tracker) Apply(ctx context.Context, check Check) (*store.AlertState, *TransitionEvent, error) {
    if check.Value == nil {
        return nil, nil, nil
    }

    state, err := t.store.GetAlertState(ctx, check.MetricID)
    if err != nil {
        return nil, nil, fmt.Errorf("failed to load state for %s: %w", check.MetricID, err)
    }

    now := t.now()
    var event *TransitionEvent

    if check.Breach {
        state.ConsecutiveBreaches++
        if state.Status != store.StatusAlert {
            if state.ConsecutiveBreaches >= t.minConsecutive {
                state.Status = store.StatusAlert
                state.LastTransitionAt = now
                event = t.newEvent(EventAlert, check, now)
            } else {
                state.Status = store.StatusWarn
            }
        }
    } else {
        if state.Status == store.StatusAlert {
            state.LastTransitionAt = now
            event = t.newEvent(EventRecovered, check, now)
        }
        state.Status = store.StatusOK
        state.ConsecutiveBreaches = 0
    }

    state.LastValue = *check.Value
    state.Message = check.Message

    if err := t.store.PutAlertState(ctx, state); err != nil {
        return nil, nil, fmt.Errorf("failed to persist state for %s: %w", check.MetricID, err)
    }

    if event != nil {
        logrus.WithFields(logrus.Fields{
            "metric": check.MetricID,
            "type":   event.Type,
            "value":  event.Value,
        }).Info("Metric transition")
    }

    return state, event, nil
}

func (t *Tracker) newEvent(typ EventType, check Check, at time.Time) *TransitionEvent {
    return &TransitionEvent{
        ID:       uuid.New().String(),
        Type:     typ,
        MetricID: check.MetricID,
        Label:    check.Label,
        Value:    *check.Value,
        Message:  check.Message,
        At:       at,
    }
}
