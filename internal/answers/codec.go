package answers

import "encoding/json"

// The remote storage layer persists a single scalar per question, so the
// client picks the encoding: one selected option goes over the wire as the
// bare option key, several (true/false-set questions) as a JSON array string.

// EncodeSelection encodes a non-empty selection for sync.
func EncodeSelection(selections []string) string {
	if len(selections) == 1 {
		return selections[0]
	}
	encoded, err := json.Marshal(selections)
	if err != nil {
		// []string cannot fail to marshal; keep the signature total anyway.
		return ""
	}
	return string(encoded)
}

// DecodeSelection is the inverse of EncodeSelection. A value that parses as a
// JSON string array is a multi-select answer, anything else is a single
// selection. Malformed input never fails: the raw value is treated as a
// single selected option.
func DecodeSelection(raw string) []string {
	var parsed []string
	if err := json.Unmarshal([]byte(raw), &parsed); err == nil && parsed != nil {
		return parsed
	}
	return []string{raw}
}
