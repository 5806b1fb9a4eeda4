package event

import "encoding/json"

// MarshalBatch serialises a Batch to its wire JSON. Sinks use this for
// every batch they emit, so the encoding stays uniform across outputs.
func MarshalBatch(b *Batch) ([]byte, error) {
	return json.Marshal(b)
}

// UnmarshalBatch deserialises a Batch from its wire JSON.
func UnmarshalBatch(data []byte) (*Batch, error) {
	var b Batch
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, err
	}
	return &b, nil
}
