package dataflag

import (
	"fmt"
	"sort"
)

// Recognized metadata keys. Anything else is carried through opaquely.
const (
	MetaInstrument  = "instrument"
	MetaFreq        = "freq"
	MetaInputs      = "inputs"
	MetaDescription = "description"
	MetaUser        = "user"
)

// NumFreq is the size of the frequency mask.
const NumFreq = 1024

// InstrumentInputs maps instrument names to their input (feed) counts.
var InstrumentInputs = map[string]int{
	"chime":      2048,
	"pathfinder": 256,
}

// Instruments returns the closed set of known instrument names, sorted.
func Instruments() []string {
	names := make([]string, 0, len(InstrumentInputs))
	for name := range InstrumentInputs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Metadata is the structured key-value blob attached to flags and opinions.
// It is stored as JSON, so integer lists may come back as []any of float64.
type Metadata map[string]any

// BuildMetadata assembles a metadata blob from the recognized fields plus
// free-form extra keys. Recognized fields win over extra on key collision.
func BuildMetadata(instrument string, freq []int, inputs []int, description string, user string, extra Metadata) Metadata {
	md := Metadata{}
	for k, v := range extra {
		md[k] = v
	}
	if instrument != "" {
		md[MetaInstrument] = instrument
	}
	if freq != nil {
		md[MetaFreq] = intsToAny(freq)
	}
	if inputs != nil {
		md[MetaInputs] = intsToAny(inputs)
	}
	if description != "" {
		md[MetaDescription] = description
	}
	if user != "" {
		md[MetaUser] = user
	}
	return md
}

// Validate checks the recognized keys: instrument must be known, freq and
// inputs must be lists of integer indices within their mask sizes.
func (m Metadata) Validate() error {
	if m == nil {
		return nil
	}

	inputSize := 0
	if raw, ok := m[MetaInstrument]; ok {
		name, ok := raw.(string)
		if !ok {
			return fmt.Errorf("%w: instrument must be a string, got %T", ErrInvalidMetadata, raw)
		}
		size, known := InstrumentInputs[name]
		if !known {
			return fmt.Errorf("%w: %q (choose one of %v)", ErrUnknownInstrument, name, Instruments())
		}
		inputSize = size
	}

	if _, ok := m[MetaFreq]; ok {
		freq, err := m.Freq()
		if err != nil {
			return err
		}
		for _, f := range freq {
			if f < 0 || f >= NumFreq {
				return fmt.Errorf("%w: freq index %d outside [0, %d)", ErrInvalidMetadata, f, NumFreq)
			}
		}
	}

	if _, ok := m[MetaInputs]; ok {
		inputs, err := m.Inputs()
		if err != nil {
			return err
		}
		// Input indices are only checkable against a known instrument.
		if inputSize > 0 {
			for _, in := range inputs {
				if in < 0 || in >= inputSize {
					return fmt.Errorf("%w: input index %d outside [0, %d)", ErrInvalidMetadata, in, inputSize)
				}
			}
		}
	}

	return nil
}

// Instrument returns the instrument name, or "" if unset.
func (m Metadata) Instrument() string {
	if m == nil {
		return ""
	}
	name, _ := m[MetaInstrument].(string)
	return name
}

// Freq returns the list of affected frequency indices, nil if unset.
func (m Metadata) Freq() ([]int, error) {
	return m.intList(MetaFreq)
}

// Inputs returns the list of affected input indices, nil if unset.
func (m Metadata) Inputs() ([]int, error) {
	return m.intList(MetaInputs)
}

// Description returns the free-text description, or "" if unset.
func (m Metadata) Description() string {
	if m == nil {
		return ""
	}
	desc, _ := m[MetaDescription].(string)
	return desc
}

// User returns the authoring user recorded in the metadata, or "".
func (m Metadata) User() string {
	if m == nil {
		return ""
	}
	user, _ := m[MetaUser].(string)
	return user
}

// FreqMask inverts the sparse freq list into a full mask: true at flagged
// indices. A nil freq list means the flag applies to all frequencies.
func (m Metadata) FreqMask() ([]bool, error) {
	freq, err := m.Freq()
	if err != nil {
		return nil, err
	}

	mask := make([]bool, NumFreq)
	if freq == nil {
		for i := range mask {
			mask[i] = true
		}
		return mask, nil
	}
	for _, f := range freq {
		if f >= 0 && f < NumFreq {
			mask[f] = true
		}
	}
	return mask, nil
}

// InputMask inverts the sparse input list into an instrument-sized mask.
// Without an instrument the mask size is undefined and nil is returned.
func (m Metadata) InputMask() ([]bool, error) {
	size, ok := InstrumentInputs[m.Instrument()]
	if !ok {
		return nil, nil
	}

	inputs, err := m.Inputs()
	if err != nil {
		return nil, err
	}

	mask := make([]bool, size)
	if inputs == nil {
		for i := range mask {
			mask[i] = true
		}
		return mask, nil
	}
	for _, in := range inputs {
		if in >= 0 && in < size {
			mask[in] = true
		}
	}
	return mask, nil
}

// Merge overlays other onto a copy of m, as administrative flag edit does.
func (m Metadata) Merge(other Metadata) Metadata {
	merged := Metadata{}
	for k, v := range m {
		merged[k] = v
	}
	for k, v := range other {
		merged[k] = v
	}
	return merged
}

func (m Metadata) intList(key string) ([]int, error) {
	if m == nil {
		return nil, nil
	}
	raw, ok := m[key]
	if !ok || raw == nil {
		return nil, nil
	}

	switch list := raw.(type) {
	case []int:
		out := make([]int, len(list))
		copy(out, list)
		return out, nil
	case []any:
		out := make([]int, 0, len(list))
		for _, item := range list {
			n, err := toInt(item)
			if err != nil {
				return nil, fmt.Errorf("%w: %s must be a list of integers: %v", ErrInvalidMetadata, key, err)
			}
			out = append(out, n)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %s must be a list, got %T", ErrInvalidMetadata, key, raw)
	}
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("%v is not an integer", n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

func intsToAny(values []int) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
