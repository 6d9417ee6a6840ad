// Package core holds the domain vocabulary shared by every junction package:
// directions, lane identifiers, maneuvers, vehicles and the typed errors
// returned by the core operations.
package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Direction is one of the four approaches to the intersection
type Direction string

const (
	// North is road A
	North Direction = "north"
	// East is road B
	East Direction = "east"
	// South is road C
	South Direction = "south"
	// West is road D
	West Direction = "west"
)

// Directions lists the canonical directions in round-robin order
var Directions = []Direction{North, East, South, West}

var directionCodes = map[Direction]byte{
	North: 'A',
	East:  'B',
	South: 'C',
	West:  'D',
}

// Valid reports whether d is one of the four canonical directions
func (d Direction) Valid() bool {
	_, ok := directionCodes[d]
	return ok
}

// Index returns the position of d in Directions, or -1
func (d Direction) Index() int {
	for i, candidate := range Directions {
		if candidate == d {
			return i
		}
	}
	return -1
}

// Code returns the road letter used in lane identifiers
func (d Direction) Code() byte {
	return directionCodes[d]
}

// DirectionFromCode maps a road letter back to its direction
func DirectionFromCode(code byte) (Direction, bool) {
	for d, c := range directionCodes {
		if c == code {
			return d, true
		}
	}
	return "", false
}

// Classification describes how a lane is scheduled
type Classification string

const (
	// IncomingOnly lanes are gated by the light of their direction
	IncomingOnly Classification = "INCOMING_ONLY"
	// Normal lanes are gated by the light of their direction
	Normal Classification = "NORMAL"
	// FreeLeft lanes release LEFT vehicles regardless of the light
	FreeLeft Classification = "FREE_LEFT"
	// PriorityEligible lanes may override the rotation when congested
	PriorityEligible Classification = "PRIORITY_ELIGIBLE"
)

// Gated reports whether lanes of this class wait for their direction's green
func (c Classification) Gated() bool {
	return c != FreeLeft
}

// LaneID identifies one of the twelve lanes, e.g. "A2"
type LaneID string

// priorityLanes are the lanes allowed to request a priority override
var priorityLanes = map[LaneID]bool{
	"A2": true,
}

// AllLanes returns the twelve lane identifiers ordered by direction then sub-lane
func AllLanes() []LaneID {
	ids := make([]LaneID, 0, len(Directions)*3)
	for _, d := range Directions {
		for slot := 1; slot <= 3; slot++ {
			ids = append(ids, NewLaneID(d, slot))
		}
	}
	return ids
}

// NewLaneID builds the identifier for a direction and sub-lane (1..3)
func NewLaneID(d Direction, slot int) LaneID {
	return LaneID(fmt.Sprintf("%c%d", d.Code(), slot))
}

// ParseLaneID validates and normalizes a lane identifier
func ParseLaneID(raw string) (LaneID, error) {
	id := LaneID(strings.ToUpper(strings.TrimSpace(raw)))
	if !id.Valid() {
		return "", NewUnknownLaneError(raw, "parse")
	}
	return id, nil
}

// Valid reports whether the identifier is one of the fixed twelve
func (l LaneID) Valid() bool {
	if len(l) != 2 {
		return false
	}
	if _, ok := DirectionFromCode(l[0]); !ok {
		return false
	}
	return l[1] >= '1' && l[1] <= '3'
}

// Direction returns the approach the lane belongs to
func (l LaneID) Direction() Direction {
	if len(l) == 0 {
		return ""
	}
	d, _ := DirectionFromCode(l[0])
	return d
}

// Slot returns the sub-lane number (1..3), or 0 for an invalid id
func (l LaneID) Slot() int {
	if !l.Valid() {
		return 0
	}
	return int(l[1] - '0')
}

// Classification is derived statically from the identifier
func (l LaneID) Classification() Classification {
	switch l.Slot() {
	case 1:
		return IncomingOnly
	case 2:
		if priorityLanes[l] {
			return PriorityEligible
		}
		return Normal
	case 3:
		return FreeLeft
	}
	return ""
}

// Maneuver is the movement a vehicle makes through the intersection
type Maneuver string

const (
	Straight Maneuver = "STRAIGHT"
	Left     Maneuver = "LEFT"
	Right    Maneuver = "RIGHT"
)

// ParseManeuver accepts the maneuver names case-insensitively
func ParseManeuver(raw string) (Maneuver, error) {
	m := Maneuver(strings.ToUpper(strings.TrimSpace(raw)))
	switch m {
	case Straight, Left, Right:
		return m, nil
	}
	return "", fmt.Errorf("unknown maneuver %q", raw)
}

// VehicleState tracks a vehicle through the core
type VehicleState string

const (
	Queued   VehicleState = "QUEUED"
	Released VehicleState = "RELEASED"
	Exited   VehicleState = "EXITED"
)

// Vehicle is the logical vehicle record. Positions belong to the renderer.
type Vehicle struct {
	ID         string
	Lane       LaneID
	Maneuver   Maneuver
	ArrivedAt  time.Time
	ReleasedAt time.Time
	State      VehicleState
}

// NewVehicle creates a queued vehicle with a fresh identifier
func NewVehicle(lane LaneID, maneuver Maneuver, arrivedAt time.Time) *Vehicle {
	return &Vehicle{
		ID:        uuid.New().String(),
		Lane:      lane,
		Maneuver:  maneuver,
		ArrivedAt: arrivedAt,
		State:     Queued,
	}
}

// Wait returns how long the vehicle queued before release
func (v *Vehicle) Wait() time.Duration {
	if v.ReleasedAt.IsZero() {
		return 0
	}
	return v.ReleasedAt.Sub(v.ArrivedAt)
}
