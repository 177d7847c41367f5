package calibration

import (
	"fmt"
)

// Kind classifies a calibration state.
type Kind int

const (
	KindControl  Kind = iota // IDLE, BEGIN
	KindSearch               // successive approximation of the nominal TXGC value
	KindPoint                // three-point characterization
	KindTerminal             // FINISHED
	KindSentinel             // MAX, never entered
)

func (k Kind) String() string {
	switch k {
	case KindControl:
		return "Control"
	case KindSearch:
		return "Search"
	case KindPoint:
		return "Point"
	case KindTerminal:
		return "Terminal"
	case KindSentinel:
		return "Sentinel"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

const (
	// SearchBits is the number of successive approximation steps per search group.
	SearchBits = 6
	// PointsPerChannel is the number of characterization points per RF channel.
	PointsPerChannel = 3
	// NoChannel is reported by states not bound to an RF channel index.
	NoChannel = -1
)

// State is a calibration state-machine state. Its numeric value is the index the
// device firmware uses, so it must only be created from the catalogue.
type State int

type stateInfo struct {
	name    string
	kind    Kind
	channel int
	bit     int
	point   int
}

// group is a contiguous run of RF channels. When search is set, the first channel
// of the group is preceded by a successive approximation sub-sequence.
type group struct {
	first, last int
	search      bool
}

// channelGroups mirrors the firmware's calibration plan.
var channelGroups = []group{
	{first: 0, last: 6, search: true},
	{first: 7, last: 7, search: true},
	{first: 8, last: 18, search: true},
	{first: 19, last: 34, search: true},
}

var (
	catalogue []stateInfo
	byName    map[string]State
)

// Well-known states. The channel sub-sequences are reachable through SearchState and
// PointState.
var (
	StateIdle     State
	StateBegin    State
	StateFinished State
	StateMax      State
)

func init() {
	catalogue, byName = buildCatalogue(channelGroups)
	StateIdle = byName["RADIOCALSTATE_IDLE"]
	StateBegin = byName["RADIOCALSTATE_BEGIN"]
	StateFinished = byName["RADIOCALSTATE_FINISHED"]
	StateMax = byName["RADIOCALSTATE_MAX"]
}

func buildCatalogue(groups []group) ([]stateInfo, map[string]State) {
	infos := []stateInfo{
		{name: "RADIOCALSTATE_IDLE", kind: KindControl, channel: NoChannel, bit: -1, point: -1},
		{name: "RADIOCALSTATE_BEGIN", kind: KindControl, channel: NoChannel, bit: -1, point: -1},
	}

	for _, g := range groups {
		if g.search {
			for bit := SearchBits - 1; bit >= 0; bit-- {
				infos = append(infos, stateInfo{
					name:    fmt.Sprintf("RADIOCALSTATE_F%d_B%d", g.first, bit),
					kind:    KindSearch,
					channel: g.first,
					bit:     bit,
					point:   -1,
				})
			}
		}
		for ch := g.first; ch <= g.last; ch++ {
			for p := 0; p < PointsPerChannel; p++ {
				infos = append(infos, stateInfo{
					name:    fmt.Sprintf("RADIOCALSTATE_F%d_P%d", ch, p),
					kind:    KindPoint,
					channel: ch,
					bit:     -1,
					point:   p,
				})
			}
		}
	}

	infos = append(infos,
		stateInfo{name: "RADIOCALSTATE_FINISHED", kind: KindTerminal, channel: NoChannel, bit: -1, point: -1},
		stateInfo{name: "RADIOCALSTATE_MAX", kind: KindSentinel, channel: NoChannel, bit: -1, point: -1},
	)

	names := make(map[string]State, len(infos))
	for i, info := range infos {
		names[info.name] = State(i)
	}

	return infos, names
}

// States returns every catalogue entry in firmware order, the sentinel included.
func States() []State {
	states := make([]State, len(catalogue))
	for i := range catalogue {
		states[i] = State(i)
	}
	return states
}

// ParseState looks a state up by its canonical name, e.g. "RADIOCALSTATE_F7_P1".
func ParseState(name string) (State, error) {
	s, ok := byName[name]
	if !ok {
		return 0, fmt.Errorf("unknown calibration state %q", name)
	}
	return s, nil
}

// SearchState returns the successive approximation state for the given channel and bit.
func SearchState(channel, bit int) (State, bool) {
	s, ok := byName[fmt.Sprintf("RADIOCALSTATE_F%d_B%d", channel, bit)]
	return s, ok
}

// PointState returns the characterization state for the given channel and point.
func PointState(channel, point int) (State, bool) {
	s, ok := byName[fmt.Sprintf("RADIOCALSTATE_F%d_P%d", channel, point)]
	return s, ok
}

// Valid reports whether s is a catalogue entry that can actually be entered.
func (s State) Valid() bool {
	return s >= 0 && int(s) < len(catalogue) && catalogue[s].kind != KindSentinel
}

func (s State) info() stateInfo {
	if s < 0 || int(s) >= len(catalogue) {
		return stateInfo{name: fmt.Sprintf("RADIOCALSTATE(%d)", int(s)), kind: KindSentinel, channel: NoChannel, bit: -1, point: -1}
	}
	return catalogue[s]
}

func (s State) String() string { return s.info().name }

// Kind returns the structural class of the state.
func (s State) Kind() Kind { return s.info().kind }

// Channel returns the RF channel index, or NoChannel.
func (s State) Channel() int { return s.info().channel }

// Bit returns the successive approximation bit of a search state, or -1.
func (s State) Bit() int { return s.info().bit }

// Point returns the characterization point of a point state, or -1.
func (s State) Point() int { return s.info().point }

// ActuationOnly reports whether entering s only needs the module to transmit, with no
// measurement handed to the device. This holds for BEGIN and for the first (seed) step
// of every successive approximation group.
func (s State) ActuationOnly() bool {
	info := s.info()
	if s == StateBegin {
		return true
	}
	return info.kind == KindSearch && info.bit == SearchBits-1
}

func (s State) MarshalText() ([]byte, error) {
	if s < 0 || int(s) >= len(catalogue) {
		return nil, fmt.Errorf("calibration state %d out of range", int(s))
	}
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	parsed, err := ParseState(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
