// Package rpc exposes the query service over gRPC. Messages are
// google.protobuf.Struct values carrying the same JSON documents as the HTTP
// API, so no generated stubs are needed.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"PcapLedger/internal/api"
	"PcapLedger/internal/engine/filter"
	"PcapLedger/internal/metrics"
	"PcapLedger/internal/query"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "pcapledger.v1.ReportService"

const (
	recordsMethod   = "/" + ServiceName + "/Records"
	summarizeMethod = "/" + ServiceName + "/Summarize"
)

// ReportServiceServer is the server API of the report service.
type ReportServiceServer interface {
	Records(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Summarize(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes the report service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ReportServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Records", Handler: recordsHandler},
		{MethodName: "Summarize", Handler: summarizeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pcapledger/v1/report.proto",
}

func recordsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ReportServiceServer).Records(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: recordsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ReportServiceServer).Records(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func summarizeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ReportServiceServer).Summarize(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: summarizeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ReportServiceServer).Summarize(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// Server implements ReportServiceServer on top of a query.Querier.
type Server struct {
	querier query.Querier
}

// Register attaches a report service backed by q to s.
func Register(s grpc.ServiceRegistrar, q query.Querier) {
	s.RegisterService(&ServiceDesc, &Server{querier: q})
}

// Records returns the records matching the filter in req.
func (s *Server) Records(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	raw, err := RawSpecFromStruct(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	res, err := s.querier.Records(ctx, raw)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(api.RecordsResponse{
		FiltersApplied: specOrNil(res.Filter),
		Total:          len(res.Records),
		Records:        res.Records,
	})
}

// Summarize returns statistics over the records matching the filter in req.
func (s *Server) Summarize(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	raw, err := RawSpecFromStruct(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	res, err := s.querier.Summarize(ctx, raw)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(api.StatisticsResponse{
		FiltersApplied: specOrNil(res.Filter),
		Statistics:     res.Report,
	})
}

// filterFields maps request keys onto RawSpec fields.
func filterFields(raw *filter.RawSpec) map[string]*string {
	return map[string]*string{
		"protocol":   &raw.Protocol,
		"ip":         &raw.Address,
		"port":       &raw.Port,
		"min_size":   &raw.MinSize,
		"max_size":   &raw.MaxSize,
		"start_time": &raw.StartTime,
		"end_time":   &raw.EndTime,
	}
}

// RawSpecFromStruct reads a filter from a request. Values may be strings or
// numbers; unknown keys are rejected.
func RawSpecFromStruct(req *structpb.Struct) (filter.RawSpec, error) {
	var raw filter.RawSpec
	fields := filterFields(&raw)
	for key, v := range req.GetFields() {
		dst, ok := fields[key]
		if !ok {
			return filter.RawSpec{}, fmt.Errorf("unknown filter field %q", key)
		}
		switch kind := v.GetKind().(type) {
		case *structpb.Value_StringValue:
			*dst = kind.StringValue
		case *structpb.Value_NumberValue:
			*dst = strconv.FormatFloat(kind.NumberValue, 'f', -1, 64)
		case *structpb.Value_NullValue:
		default:
			return filter.RawSpec{}, fmt.Errorf("filter field %q must be a string or number", key)
		}
	}
	return raw, nil
}

// StructFromRawSpec builds a request carrying the set fields of raw.
func StructFromRawSpec(raw filter.RawSpec) *structpb.Struct {
	out := &structpb.Struct{Fields: map[string]*structpb.Value{}}
	for key, v := range filterFields(&raw) {
		if *v != "" {
			out.Fields[key] = structpb.NewStringValue(*v)
		}
	}
	return out
}

func specOrNil(spec filter.Spec) *filter.Spec {
	if spec.IsEmpty() {
		return nil
	}
	return &spec
}

func toStruct(v any) (*structpb.Struct, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to marshal response: %v", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(body, out); err != nil {
		return nil, status.Errorf(codes.Internal, "failed to convert response: %v", err)
	}
	return out, nil
}

func toStatus(err error) error {
	var invalid *filter.InvalidSpecError
	if errors.As(err, &invalid) {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

// MetricsInterceptor counts every call by method and status code.
func MetricsInterceptor(m *metrics.Metrics) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		m.APIRequest(info.FullMethod, int(status.Code(err)))
		return resp, err
	}
}
