package service

import "time"

// LogFilter supports history filtering by time range and type.
type LogFilter struct {
	From time.Time // inclusive; zero means no lower bound
	To   time.Time // inclusive; zero means no upper bound
	// Type is a comma-separated list of event types ("TRIP") or categories
	// ("ALARMS", "EQUIPMENT", "OPERATOR", "SEQUENCE"). Empty means all.
	Type string
	// Limit caps the result to the newest events. Zero means 500.
	Limit int
}

// ScanOptions tune the runner.
type ScanOptions struct {
	// PersistEvery saves the snapshot and pump records every N scans, and
	// always on a scan that produced events. Zero means 10.
	PersistEvery int
	// CommLossScans is the number of consecutive failed reads after which
	// the plant sees a communication loss. Zero means 3.
	CommLossScans int
	// CommandQueue is the command buffer size. Zero means 16.
	CommandQueue int
}

func (o ScanOptions) withDefaults() ScanOptions {
	if o.PersistEvery <= 0 {
		o.PersistEvery = 10
	}
	if o.CommLossScans <= 0 {
		o.CommLossScans = 3
	}
	if o.CommandQueue <= 0 {
		o.CommandQueue = 16
	}
	return o
}
