package models

import "time"

// Event types written to the alarm/event log.
const (
	EventStepChange     = "STEP_CHANGE"
	EventTrip           = "TRIP"
	EventAlarm          = "ALARM"
	EventAlarmCleared   = "ALARM_CLEARED"
	EventFault          = "FAULT"
	EventMaintenance    = "MAINTENANCE"
	EventRotation       = "ROTATION"
	EventSensorFault    = "SENSOR_FAULT"
	EventCommand        = "COMMAND"
	EventSetpointChange = "SETPOINT_CHANGE"
)

// PlantEvent is a single log entry.
type PlantEvent struct {
	EventID     string    `json:"event_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Type        string    `json:"type"`        // one of the Event* constants
	Description string    `json:"description"` // human-readable
	Metadata    any       `json:"metadata,omitempty"`
}
