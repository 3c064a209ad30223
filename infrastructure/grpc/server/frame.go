package server

import (
	"encoding/json"
	"fmt"

	"campus-chat/services"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// ToStruct converts a frame to its google.protobuf.Struct form.
func ToStruct(f services.Frame) (*structpb.Struct, error) {
	raw, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("marshal frame %s: %w", f.Event, err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	return structpb.NewStruct(fields)
}

// FromStruct reads a frame back from a google.protobuf.Struct.
func FromStruct(s *structpb.Struct) (services.Frame, error) {
	var f services.Frame
	raw, err := protojson.Marshal(s)
	if err != nil {
		return f, err
	}
	if err := json.Unmarshal(raw, &f); err != nil {
		return f, fmt.Errorf("decode frame: %w", err)
	}
	return f, nil
}
