package domain

import "encoding/json"

// LifecycleStatus is the end-of-life disposition recorded on a passport.
type LifecycleStatus string

const (
	LifecycleOriginal       LifecycleStatus = "original"
	LifecycleReused         LifecycleStatus = "reused"
	LifecycleRepurposed     LifecycleStatus = "repurposed"
	LifecycleRemanufactured LifecycleStatus = "remanufactured"
	LifecycleWaste          LifecycleStatus = "waste"
)

// LifecycleStatuses lists every status in display order.
var LifecycleStatuses = []LifecycleStatus{
	LifecycleOriginal,
	LifecycleReused,
	LifecycleRepurposed,
	LifecycleRemanufactured,
	LifecycleWaste,
}

// Valid reports whether the status is one of the known lifecycle values.
func (s LifecycleStatus) Valid() bool {
	for _, known := range LifecycleStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// BatteryStatus is the owner-facing summary returned by the status endpoint.
type BatteryStatus struct {
	BatteryID   string   `json:"battery_id"`
	Status      string   `json:"status"`
	Voltage     float64  `json:"voltage"`
	Capacity    float64  `json:"capacity"`
	SOHPercent  float64  `json:"soh_percent"`
	Temperature *float64 `json:"temperature,omitempty"`

	// Extra keeps fields the backend adds that the dashboard does not model.
	Extra map[string]json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes known fields and keeps the rest in Extra.
func (s *BatteryStatus) UnmarshalJSON(data []byte) error {
	type plain BatteryStatus
	var known plain
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}

	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, key := range []string{"battery_id", "status", "voltage", "capacity", "soh_percent", "temperature"} {
		delete(all, key)
	}
	if len(all) > 0 {
		known.Extra = all
	}

	*s = BatteryStatus(known)
	return nil
}

// MarshalJSON encodes known fields and passes Extra through. Known fields
// win over an Extra entry with the same key.
func (s BatteryStatus) MarshalJSON() ([]byte, error) {
	type plain BatteryStatus
	data, err := json.Marshal(plain(s))
	if err != nil || len(s.Extra) == 0 {
		return data, err
	}

	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for key, value := range s.Extra {
		if _, known := all[key]; !known {
			all[key] = value
		}
	}
	return json.Marshal(all)
}

// BatteryDetails is the garage view of a battery record.
type BatteryDetails struct {
	BatteryID        string   `json:"battery_id"`
	Voltage          float64  `json:"voltage"`
	Capacity         float64  `json:"capacity"`
	Temperature      float64  `json:"temperature"`
	CreatedAt        string   `json:"created_at"`
	SOHPercent       *float64 `json:"soh_percent"`
	Chemistry        string   `json:"chemistry,omitempty"`
	BatteryModel     string   `json:"battery_model,omitempty"`
	BatteryStatus    string   `json:"battery_status,omitempty"`
	EnergyThroughput *float64 `json:"energy_throughput,omitempty"`
}

// CreateBatteryPayload is the body sent when registering a battery.
type CreateBatteryPayload struct {
	BatteryID   string  `json:"battery_id"`
	Voltage     float64 `json:"voltage"`
	Capacity    float64 `json:"capacity"`
	Temperature float64 `json:"temperature"`
}

// CreateBatteryResponse is the backend acknowledgement for a new battery.
type CreateBatteryResponse struct {
	Message   string `json:"message"`
	BatteryID string `json:"battery_id"`
}

// MeasurementUpdate carries the measurements a garage may correct.
type MeasurementUpdate struct {
	Voltage     *float64 `json:"voltage,omitempty"`
	Capacity    *float64 `json:"capacity,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u MeasurementUpdate) Empty() bool {
	return u.Voltage == nil && u.Capacity == nil && u.Temperature == nil
}

// EvaluationRequest asks the recycler model to score a battery.
type EvaluationRequest struct {
	ID       string `json:"id"`
	MarketID string `json:"market_id"`
}

// Evaluation maps a disposition name such as "Reuse" to its score.
type Evaluation map[string]float64

// Best returns the highest scoring disposition, ties broken by name.
func (e Evaluation) Best() (string, float64, bool) {
	var (
		bestName  string
		bestScore float64
		found     bool
	)
	for name, score := range e {
		if !found || score > bestScore || (score == bestScore && name < bestName) {
			bestName, bestScore, found = name, score, true
		}
	}
	return bestName, bestScore, found
}

// PendingStatusRequest is a status change waiting for backend confirmation.
type PendingStatusRequest struct {
	BatteryID      string          `json:"batteryId"`
	ProposedStatus LifecycleStatus `json:"proposedStatus"`
	CreatedAt      int64           `json:"createdAt"`
}
