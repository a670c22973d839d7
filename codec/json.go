package codec

import "encoding/json"

// JSON uses encoding/json. Numbers inside interface-typed fields come back as
// float64.
type JSON struct{}

var _ Codec = JSON{}

func (JSON) Encode(v any) ([]byte, error)   { return json.Marshal(v) }
func (JSON) Decode(b []byte, dst any) error { return json.Unmarshal(b, dst) }
