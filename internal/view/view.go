// Package view turns canonical ticks into the rows, cards and ticker items the
// widgets render.
package view

import "maps"

type Direction string

const (
	Up      Direction = "up"
	Down    Direction = "down"
	Neutral Direction = "neutral"
)

// Diff compares last against the previous value stored under key and returns
// a new map holding last under key. prev is not modified.
func Diff(prev map[string]float64, key string, last float64) (map[string]float64, Direction) {
	dir := Neutral
	if p, ok := prev[key]; ok {
		switch {
		case last > p:
			dir = Up
		case last < p:
			dir = Down
		}
	}
	next := maps.Clone(prev)
	if next == nil {
		next = make(map[string]float64, 1)
	}
	next[key] = last
	return next, dir
}

// WidgetState is the loading/reconnecting banner state of one widget.
type WidgetState struct {
	Loading      bool `json:"loading"`
	Reconnecting bool `json:"reconnecting"`
	hasData      bool
}

func NewWidgetState() WidgetState {
	return WidgetState{Loading: true}
}

func (s *WidgetState) OnData() {
	s.hasData = true
	s.Loading = false
	s.Reconnecting = false
}

// OnError flags a reconnect. Loading comes back only if nothing was ever shown.
func (s *WidgetState) OnError() {
	s.Reconnecting = true
	if !s.hasData {
		s.Loading = true
	}
}
