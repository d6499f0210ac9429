package codec_test

import (
	"bytes"
	"testing"

	"github.com/agentoven/agentmarket/internal/codec"
)

type record struct {
	Name   string            `json:"name"`
	Count  uint64            `json:"count"`
	Labels map[string]string `json:"labels"`
}

func TestMarshalIsDeterministic(t *testing.T) {
	r := record{Name: "job", Count: 3, Labels: map[string]string{"b": "2", "a": "1", "c": "3"}}

	first, err := codec.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	for i := 0; i < 20; i++ {
		again, err := codec.Marshal(r)
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("Marshal() produced different bytes on run %d", i)
		}
	}

	var got record
	if err := codec.Unmarshal(first, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got.Name != "job" || got.Count != 3 || got.Labels["b"] != "2" {
		t.Errorf("Unmarshal() = %+v", got)
	}
}
