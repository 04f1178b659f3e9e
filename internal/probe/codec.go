// Package probe replays capture files as a stream of classified records over
// NATS and persists what it receives.
package probe

import (
	"encoding/json"
	"fmt"

	"PcapLedger/internal/core/model"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// EncodeRecord serializes a record as a binary google.protobuf.Struct holding
// its JSON document.
func EncodeRecord(r model.Record) ([]byte, error) {
	doc, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}
	msg := &structpb.Struct{}
	if err := protojson.Unmarshal(doc, msg); err != nil {
		return nil, fmt.Errorf("failed to build record message: %w", err)
	}
	return proto.Marshal(msg)
}

// DecodeRecord is the inverse of EncodeRecord.
func DecodeRecord(data []byte) (model.Record, error) {
	msg := &structpb.Struct{}
	if err := proto.Unmarshal(data, msg); err != nil {
		return model.Record{}, fmt.Errorf("error unmarshalling protobuf: %w", err)
	}
	doc, err := protojson.Marshal(msg)
	if err != nil {
		return model.Record{}, fmt.Errorf("failed to render record message: %w", err)
	}
	var r model.Record
	if err := json.Unmarshal(doc, &r); err != nil {
		return model.Record{}, fmt.Errorf("failed to decode record: %w", err)
	}
	return r, nil
}
