package model

import "time"

// Sample is one (time, value) reading. Time is in the owning buffer's raw unit
// (milliseconds or microseconds); Stamp is the wall-clock instant derived from it.
type Sample struct {
	Time  float64   `json:"time"`
	Value float64   `json:"value"`
	Stamp time.Time `json:"timestamp"`
}

type ChainEventKind string

const (
	ChainStarted  ChainEventKind = "started"
	ChainExtended ChainEventKind = "extended"
	ChainEnded    ChainEventKind = "ended"
)

// ChainEvent describes one transition of a trigger chain. Rows holds only the
// samples that were added by the transition (all of them on start, none on end).
type ChainEvent struct {
	ChainID  string         `json:"chain_id"`
	Trigger  string         `json:"trigger"`
	Kind     ChainEventKind `json:"kind"`
	Earliest float64        `json:"earliest_time"`
	Length   int            `json:"length"`
	Rows     []Sample       `json:"rows,omitempty"`
	At       time.Time      `json:"at"`
}
