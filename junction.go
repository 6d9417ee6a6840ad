// Package junction schedules a four-way intersection: twelve lane queues, a
// traffic light that always passes through all-red between greens, adaptive
// green durations and a congestion override for the priority lane.
//
// The sub-packages hold the implementation; this package re-exports the
// surface most callers need.
package junction

import (
	"github.com/anggasct/junction/pkg/core"
	"github.com/anggasct/junction/pkg/ingest"
	"github.com/anggasct/junction/pkg/lanes"
	"github.com/anggasct/junction/pkg/policy"
	"github.com/anggasct/junction/pkg/scheduler"
	"github.com/anggasct/junction/pkg/signal"
	"github.com/anggasct/junction/pkg/simulation"
)

// Core types
type (
	// Direction is one of the four approaches
	Direction = core.Direction

	// LaneID identifies one of the twelve lanes
	LaneID = core.LaneID

	// Classification describes how a lane is scheduled
	Classification = core.Classification

	// Maneuver is the movement a vehicle makes
	Maneuver = core.Maneuver

	// Vehicle is the logical vehicle record
	Vehicle = core.Vehicle
)

// Scheduler types
type (
	// Scheduler is the intersection orchestrator
	Scheduler = scheduler.Scheduler

	// Config holds the scheduler constants
	Config = scheduler.Config

	// Snapshot is an immutable view of the world
	Snapshot = scheduler.Snapshot

	// TickReport summarizes one tick
	TickReport = scheduler.TickReport

	// LaneSnapshot is the read-only view of one lane
	LaneSnapshot = lanes.LaneSnapshot

	// LightStatus is the read-only view of the traffic light
	LightStatus = signal.Status

	// Thresholds is the priority hysteresis band
	Thresholds = policy.Thresholds

	// ParsedArrival is one arrival record
	ParsedArrival = ingest.ParsedArrival

	// Runner drives the tick loop
	Runner = simulation.Runner
)

// Re-export constants
const (
	North = core.North
	East  = core.East
	South = core.South
	West  = core.West

	Straight = core.Straight
	Left     = core.Left
	Right    = core.Right

	IncomingOnly     = core.IncomingOnly
	Normal           = core.Normal
	FreeLeft         = core.FreeLeft
	PriorityEligible = core.PriorityEligible

	PhaseAllRed = signal.PhaseAllRed
	PhaseGreen  = signal.PhaseGreen
)

// Re-export constructors
var (
	// NewScheduler validates a config and builds a scheduler
	NewScheduler = scheduler.New

	// DefaultConfig returns the standard scheduler constants
	DefaultConfig = scheduler.DefaultConfig

	// NewRunner wraps a scheduler in a tick loop
	NewRunner = simulation.NewRunner

	// NewIngestor opens an arrival file reader
	NewIngestor = ingest.New

	// ParseLaneID validates a lane identifier
	ParseLaneID = core.ParseLaneID

	// ParseManeuver validates a maneuver name
	ParseManeuver = core.ParseManeuver

	// FormatRecord encodes one arrival record
	FormatRecord = ingest.FormatRecord
)

// Re-export error helpers
var (
	IsEmptyQueue         = core.IsEmptyQueue
	IsUnknownLane        = core.IsUnknownLane
	IsInvalidDirection   = core.IsInvalidDirection
	IsMalformedRecord    = core.IsMalformedRecord
	IsInvariantViolation = core.IsInvariantViolation
	IsConfigurationError = core.IsConfigurationError
)
