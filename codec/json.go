package codec

import "encoding/json"

// JSON encodes/decodes values as JSON.
type JSON struct{}

func (c *JSON) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (c *JSON) Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (c *JSON) Name() string { return NameJSON }
