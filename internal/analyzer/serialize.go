package analyzer

import (
	"encoding/json"
	"fmt"

	"github.com/withterm/term-sub003/internal/errs"
)

// envelope wraps a State's JSON with its Kind tag so Unmarshal can
// reconstruct the correct concrete type (spec §8.6 cache/state serializer
// round-trip invariant: Unmarshal(Marshal(s)) must equal s). The one
// exception is approxDistinctState, whose Values set is not serialized:
// only its Count survives the round-trip.
type envelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// Marshal serializes a State to JSON, tagged with its Kind for round-tripping.
func Marshal(s State) (json.RawMessage, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("%w: marshaling analyzer state: %v", errs.ErrSerialization, err)
	}

	env, err := json.Marshal(envelope{Kind: s.Kind(), Data: data})
	if err != nil {
		return nil, fmt.Errorf("%w: marshaling analyzer state envelope: %v", errs.ErrSerialization, err)
	}

	return env, nil
}

// Unmarshal reconstructs a State from bytes produced by Marshal.
func Unmarshal(raw json.RawMessage) (State, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: unmarshaling analyzer state envelope: %v", errs.ErrSerialization, err)
	}

	var state State

	switch env.Kind {
	case "count":
		state = &countState{}
	case "ratio":
		state = &ratioState{}
	case "sum":
		state = &sumState{}
	case "min_max":
		state = &minMaxState{}
	case "moment":
		state = &momentState{}
	case "approx_distinct":
		state = &approxDistinctState{}
	case "histogram":
		state = &histogramState{}
	case "data_type":
		state = &dataTypeState{}
	default:
		return nil, fmt.Errorf("%w: unknown analyzer state kind %q", errs.ErrSerialization, env.Kind)
	}

	if err := json.Unmarshal(env.Data, state); err != nil {
		return nil, fmt.Errorf("%w: unmarshaling analyzer state data: %v", errs.ErrSerialization, err)
	}

	return state, nil
}
