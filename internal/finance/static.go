package finance

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
)

//go:embed sample_record.json
var sampleRecordJSON []byte

// StaticProvider serves the built-in sample record to every user. Each Fetch decodes a
// fresh copy so callers never share nested maps.
type StaticProvider struct{}

func NewStaticProvider() *StaticProvider { return &StaticProvider{} }

func (p *StaticProvider) Fetch(ctx context.Context, _ string) (Record, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	var rec Record
	if err := json.Unmarshal(sampleRecordJSON, &rec); err != nil {
		return nil, fmt.Errorf("decode sample record: %w", err)
	}
	return rec, nil
}
