package sparkline

import (
	"fmt"
)

// State is the presentation state of a widget
type State int

const (
	Loading State = iota
	Unavailable
	TimedOut
	NoData
	Broken
	Loaded
)

var stateNames = map[State]string{
	Loading:     "loading",
	Unavailable: "notavailable",
	TimedOut:    "timedout",
	NoData:      "nodata",
	Broken:      "broken",
	Loaded:      "loaded",
}

// AllStates lists every state in declaration order
var AllStates = []State{Loading, Unavailable, TimedOut, NoData, Broken, Loaded}

// String returns the wire name of the state
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ParseState is the inverse of String
func ParseState(name string) (State, error) {
	for s, n := range stateNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown widget state %q", name)
}

// MarshalText implements encoding.TextMarshaler
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *State) UnmarshalText(text []byte) error {
	parsed, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Retryable reports whether a retry request is accepted from this state
func (s State) Retryable() bool {
	_, ok := Transition(s, EventRetry)
	return ok
}

// Terminal reports whether no event can leave this state
func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}

// Event drives a state transition
type Event int

const (
	// EventUnavailable: discovery could not locate the backend
	EventUnavailable Event = iota
	// EventQueryFailed: the query answered with a non-success status
	EventQueryFailed
	// EventNoData: the query succeeded without samples
	EventNoData
	// EventLoaded: the query succeeded with samples
	EventLoaded
	// EventTimedOut: the transport timed out
	EventTimedOut
	// EventTransportFailed: any other transport or decoding failure
	EventTransportFailed
	// EventRetry: the user asked for another attempt
	EventRetry
)

var eventNames = map[Event]string{
	EventUnavailable:     "unavailable",
	EventQueryFailed:     "query_failed",
	EventNoData:          "no_data",
	EventLoaded:          "loaded",
	EventTimedOut:        "timed_out",
	EventTransportFailed: "transport_failed",
	EventRetry:           "retry",
}

func (e Event) String() string {
	if name, ok := eventNames[e]; ok {
		return name
	}
	return fmt.Sprintf("Event(%d)", int(e))
}

// fetchOutcomes maps every classified fetch outcome to its target state. Any
// state other than Unavailable accepts all of them.
var fetchOutcomes = map[Event]State{
	EventUnavailable:     Unavailable,
	EventQueryFailed:     Broken,
	EventNoData:          NoData,
	EventLoaded:          Loaded,
	EventTimedOut:        TimedOut,
	EventTransportFailed: Broken,
}

var transitions = buildTransitions()

func buildTransitions() map[State]map[Event]State {
	table := make(map[State]map[Event]State, len(AllStates))
	for _, s := range AllStates {
		table[s] = make(map[Event]State)
		if s == Unavailable {
			continue
		}
		for e, next := range fetchOutcomes {
			table[s][e] = next
		}
	}
	for _, s := range []State{TimedOut, NoData, Broken} {
		table[s][EventRetry] = Loading
	}
	return table
}

// Transition returns the state reached from current on event, and false when
// the table has no such edge.
func Transition(current State, event Event) (State, bool) {
	next, ok := transitions[current][event]
	return next, ok
}
