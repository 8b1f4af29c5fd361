package ir

import (
	"encoding/json"
	"fmt"
)

// Dampening is the immutable temporal rule applied to one trigger in one mode.
//
// It is often the case that a trigger should not fire every time its
// condition set is met, only when the issue is not a spike of activity:
//
//	STRICT          N consecutive true evaluations
//	RELAXED_COUNT   N true evaluations out of M total evaluations
//	RELAXED_TIME    N true evaluations in T time
//	STRICT_TIME     only true evaluations for at least T time
//	STRICT_TIMEOUT  only true evaluations for T time
//
// Use the For* factories to build a validated Dampening. NewDampening builds
// one without validation for decoding and copying.
type Dampening struct {
	tenantID    string
	triggerID   string
	triggerMode Mode
	dampeningID string

	typ              DampeningType
	evalTrueSetting  int
	evalTotalSetting int
	evalTimeSetting  int64
}

// NewDampening builds a Dampening from raw settings without validation.
func NewDampening(tenantID, triggerID string, triggerMode Mode, typ DampeningType,
	evalTrueSetting, evalTotalSetting int, evalTimeSetting int64) Dampening {
	d := Dampening{
		tenantID:         tenantID,
		triggerID:        triggerID,
		triggerMode:      triggerMode,
		typ:              typ,
		evalTrueSetting:  evalTrueSetting,
		evalTotalSetting: evalTotalSetting,
		evalTimeSetting:  evalTimeSetting,
	}
	d.updateID()
	return d
}

// DefaultDampening is a STRICT(1) dampening in FIRING mode with empty ids.
func DefaultDampening() Dampening {
	return NewDampening("", "", ModeFiring, Strict, 1, 1, 0)
}

// ForStrict fires after numConsecutiveTrueEvals consecutive true evaluations
// of the condition set. There is no time limit for the evaluations.
func ForStrict(tenantID, triggerID string, triggerMode Mode, numConsecutiveTrueEvals int) (Dampening, error) {
	if numConsecutiveTrueEvals < 1 {
		return Dampening{}, InvalidArgument("numConsecutiveTrueEvals must be >= 1")
	}
	return NewDampening(tenantID, triggerID, triggerMode, Strict,
		numConsecutiveTrueEvals, numConsecutiveTrueEvals, 0), nil
}

// ForRelaxedCount fires after numTrueEvals true evaluations out of
// numTotalEvals. There is no time limit for the evaluations.
func ForRelaxedCount(tenantID, triggerID string, triggerMode Mode, numTrueEvals, numTotalEvals int) (Dampening, error) {
	if numTrueEvals < 1 {
		return Dampening{}, InvalidArgument("numTrueEvals must be >= 1")
	}
	if numTotalEvals <= numTrueEvals {
		return Dampening{}, InvalidArgument("numTotalEvals must be > numTrueEvals")
	}
	return NewDampening(tenantID, triggerID, triggerMode, RelaxedCount, numTrueEvals, numTotalEvals, 0), nil
}

// ForRelaxedTime fires after numTrueEvals true evaluations within evalPeriod
// milliseconds of the first one. The period is measured in evaluation time,
// not in the collection time of the data.
func ForRelaxedTime(tenantID, triggerID string, triggerMode Mode, numTrueEvals int, evalPeriod int64) (Dampening, error) {
	if numTrueEvals < 1 {
		return Dampening{}, InvalidArgument("numTrueEvals must be >= 1")
	}
	if evalPeriod < 1 {
		return Dampening{}, InvalidArgument("evalPeriod must be >= 1ms")
	}
	return NewDampening(tenantID, triggerID, triggerMode, RelaxedTime, numTrueEvals, 0, evalPeriod), nil
}

// ForStrictTime fires once only true evaluations have been seen for at least
// evalPeriod milliseconds. Any false evaluation resets the dampening.
func ForStrictTime(tenantID, triggerID string, triggerMode Mode, evalPeriod int64) (Dampening, error) {
	if evalPeriod < 1 {
		return Dampening{}, InvalidArgument("evalPeriod must be >= 1ms")
	}
	return NewDampening(tenantID, triggerID, triggerMode, StrictTime, 0, 0, evalPeriod), nil
}

// ForStrictTimeout fires once only true evaluations have been seen for
// evalPeriod milliseconds, the clock starting at the first true evaluation.
// Any false evaluation resets the dampening.
func ForStrictTimeout(tenantID, triggerID string, triggerMode Mode, evalPeriod int64) (Dampening, error) {
	if evalPeriod < 1 {
		return Dampening{}, InvalidArgument("evalPeriod must be >= 1ms")
	}
	return NewDampening(tenantID, triggerID, triggerMode, StrictTimeout, 0, 0, evalPeriod), nil
}

// Validate checks the settings against the factory contract for d's type.
// Dampenings built by NewDampening or decoded from JSON should be validated
// before they are activated.
func (d Dampening) Validate() error {
	if !d.triggerMode.Valid() {
		return InvalidArgument("unknown trigger mode %q", d.triggerMode)
	}
	var err error
	switch d.typ {
	case Strict:
		_, err = ForStrict(d.tenantID, d.triggerID, d.triggerMode, d.evalTrueSetting)
	case RelaxedCount:
		_, err = ForRelaxedCount(d.tenantID, d.triggerID, d.triggerMode, d.evalTrueSetting, d.evalTotalSetting)
	case RelaxedTime:
		_, err = ForRelaxedTime(d.tenantID, d.triggerID, d.triggerMode, d.evalTrueSetting, d.evalTimeSetting)
	case StrictTime:
		_, err = ForStrictTime(d.tenantID, d.triggerID, d.triggerMode, d.evalTimeSetting)
	case StrictTimeout:
		_, err = ForStrictTimeout(d.tenantID, d.triggerID, d.triggerMode, d.evalTimeSetting)
	default:
		err = InvalidArgument("unknown dampening type %q", d.typ)
	}
	if err != nil {
		if e, ok := err.(*Error); ok {
			e.Key = d.dampeningID
		}
		return err
	}
	return nil
}

// Accessors. Dampening has no exported fields so the derived id cannot drift.

func (d Dampening) TenantID() string { return d.tenantID }
func (d Dampening) TriggerID() string { return d.triggerID }
func (d Dampening) TriggerMode() Mode { return d.triggerMode }
func (d Dampening) Type() DampeningType { return d.typ }
func (d Dampening) EvalTrueSetting() int { return d.evalTrueSetting }
func (d Dampening) EvalTotalSetting() int { return d.evalTotalSetting }
func (d Dampening) EvalTimeSetting() int64 { return d.evalTimeSetting }
func (d Dampening) DampeningID() string { return d.dampeningID }

// Key returns the composite key of d.
func (d Dampening) Key() Key {
	return Key{TenantID: d.tenantID, TriggerID: d.triggerID, Mode: d.triggerMode}
}

// WithTenantID returns a copy of d owned by tenantID.
func (d Dampening) WithTenantID(tenantID string) Dampening {
	d.tenantID = tenantID
	d.updateID()
	return d
}

// WithTriggerID returns a copy of d attached to triggerID.
func (d Dampening) WithTriggerID(triggerID string) Dampening {
	d.triggerID = triggerID
	d.updateID()
	return d
}

// WithTriggerMode returns a copy of d active in mode.
func (d Dampening) WithTriggerMode(mode Mode) Dampening {
	d.triggerMode = mode
	d.updateID()
	return d
}

func (d *Dampening) updateID() {
	d.dampeningID = d.Key().String()
}

// Equal reports whether d and o have the same composite dampening id.
func (d Dampening) Equal(o Dampening) bool {
	return d.dampeningID == o.dampeningID
}

// IsSame reports whether d and o are equal and carry identical settings.
func (d Dampening) IsSame(o Dampening) bool {
	return d.Equal(o) &&
		d.typ == o.typ &&
		d.evalTrueSetting == o.evalTrueSetting &&
		d.evalTotalSetting == o.evalTotalSetting &&
		d.evalTimeSetting == o.evalTimeSetting
}

func (d Dampening) String() string {
	return fmt.Sprintf("Dampening [triggerId=%s, triggerMode=%s, type=%s, evalTrueSetting=%d, evalTotalSetting=%d, evalTimeSetting=%d]",
		d.triggerID, d.triggerMode, d.typ, d.evalTrueSetting, d.evalTotalSetting, d.evalTimeSetting)
}

// dampeningJSON is the wire form. dampening_id is output only.
type dampeningJSON struct {
	TenantID         string        `json:"tenant_id"`
	TriggerID        string        `json:"trigger_id"`
	TriggerMode      Mode          `json:"trigger_mode"`
	Type             DampeningType `json:"type"`
	EvalTrueSetting  int           `json:"eval_true_setting"`
	EvalTotalSetting int           `json:"eval_total_setting"`
	EvalTimeSetting  int64         `json:"eval_time_setting"`
	DampeningID      string        `json:"dampening_id,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (d Dampening) MarshalJSON() ([]byte, error) {
	return json.Marshal(dampeningJSON{
		TenantID:         d.tenantID,
		TriggerID:        d.triggerID,
		TriggerMode:      d.triggerMode,
		Type:             d.typ,
		EvalTrueSetting:  d.evalTrueSetting,
		EvalTotalSetting: d.evalTotalSetting,
		EvalTimeSetting:  d.evalTimeSetting,
		DampeningID:      d.dampeningID,
	})
}

// UnmarshalJSON implements json.Unmarshaler. Any dampening_id in the input is
// ignored and recomputed. Missing fields take DefaultDampening values.
func (d *Dampening) UnmarshalJSON(data []byte) error {
	def := DefaultDampening()
	w := dampeningJSON{
		TriggerMode:      def.triggerMode,
		Type:             def.typ,
		EvalTrueSetting:  def.evalTrueSetting,
		EvalTotalSetting: def.evalTotalSetting,
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*d = NewDampening(w.TenantID, w.TriggerID, w.TriggerMode, w.Type,
		w.EvalTrueSetting, w.EvalTotalSetting, w.EvalTimeSetting)
	return nil
}
