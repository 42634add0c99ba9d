package track

import (
	"encoding/json"
	"fmt"
)

// Envelope is the on-disk and on-wire form of a stored object.
type Envelope struct {
	Kind Kind            `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// Marshal encodes an object into its JSON envelope. The output is
// deterministic: map keys are sorted by encoding/json.
func Marshal(obj Object) ([]byte, error) {
	data, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", obj.Name(), err)
	}
	return json.Marshal(Envelope{Kind: obj.Kind(), Data: data})
}

// Unmarshal decodes a JSON envelope into a typed object.
func Unmarshal(data []byte) (Object, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}

	var obj Object
	switch env.Kind {
	case KindNumeric:
		obj = NewNumericDataset("")
	case KindRegion:
		obj = NewRegionDataset("")
	case KindSequenceCollection:
		obj = &SequenceCollection{}
	case KindNumericVariable:
		obj = &NumericVariable{}
	default:
		return nil, fmt.Errorf("unknown object kind %q", env.Kind)
	}

	if err := json.Unmarshal(env.Data, obj); err != nil {
		return nil, fmt.Errorf("failed to decode %s object: %w", env.Kind, err)
	}
	if obj.Name() == "" {
		return nil, fmt.Errorf("%s object has no name", env.Kind)
	}
	return obj, nil
}
