// Package data serves the DataService contract from devbackend storage.
package data

import (
	"context"
	"errors"
	"time"

	"github.com/louisbranch/cargo.space/internal/datacore/realtime"
	"github.com/louisbranch/cargo.space/internal/integration/remote"
	platformerrors "github.com/louisbranch/cargo.space/internal/platform/errors"
	"github.com/louisbranch/cargo.space/internal/services/devbackend/filter"
	"github.com/louisbranch/cargo.space/internal/services/devbackend/hub"
	"github.com/louisbranch/cargo.space/internal/services/devbackend/storage"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Store is the read side of devbackend storage.
type Store interface {
	Query(ctx context.Context, q storage.Query) (storage.Result, error)
	Schema(resource string) (filter.Schema, bool)
}

// Service implements remote.DataServiceServer.
type Service struct {
	store Store
	hub   *hub.Hub
}

// NewService creates a DataService over store, streaming changes from h.
func NewService(store Store, h *hub.Hub) *Service {
	return &Service{store: store, hub: h}
}

// Execute runs one query.
func (s *Service) Execute(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if in == nil {
		return nil, status.Error(codes.InvalidArgument, "query request is required")
	}
	if s == nil || s.store == nil {
		return nil, status.Error(codes.Internal, "data store is not configured")
	}
	q, err := remote.QueryFromStruct(in)
	if err != nil {
		return nil, domainStatus(err)
	}
	result, err := s.store.Query(ctx, storage.Query{
		Resource:  q.Resource,
		Columns:   q.Select,
		Filter:    q.Filter,
		OrderBy:   q.OrderBy,
		Limit:     q.Limit,
		CountOnly: q.CountOnly,
	})
	if err != nil {
		return nil, storageStatus(err)
	}
	out := remote.Result{Count: result.Count, Rows: make([]map[string]any, len(result.Records))}
	for i, record := range result.Records {
		out.Rows[i] = wireRecord(record)
	}
	msg, err := out.Struct()
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode result: %v", err)
	}
	return msg, nil
}

// Subscribe streams change events for one topic until the client leaves.
// The first message acknowledges the subscription.
func (s *Service) Subscribe(in *structpb.Struct, stream remote.SubscribeServer) error {
	if s == nil || s.store == nil || s.hub == nil {
		return status.Error(codes.Internal, "change feed is not configured")
	}
	topic, err := remote.TopicFromStruct(in)
	if err != nil {
		return domainStatus(err)
	}
	schema, ok := s.store.Schema(topic.Resource)
	if !ok {
		return status.Errorf(codes.InvalidArgument, "unknown resource %q", topic.Resource)
	}
	parsed, err := filter.Parse(topic.Filter, schema)
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid filter: %v", err)
	}

	id, changes, cancel := s.hub.Subscribe(topic.Resource, schema, parsed)
	defer cancel()
	if err := stream.Send(remote.AckStruct(id)); err != nil {
		return err
	}

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case change, ok := <-changes:
			if !ok {
				return nil
			}
			event := realtime.Event{
				Topic:      topic,
				Kind:       realtime.EventKind(change.Kind),
				RecordID:   change.Record.ID(),
				OccurredAt: change.At,
			}
			if err := stream.Send(remote.EventStruct(event)); err != nil {
				return err
			}
		}
	}
}

// wireRecord converts a record to structpb-compatible values.
func wireRecord(record storage.Record) map[string]any {
	row := make(map[string]any, len(record))
	for key, value := range record {
		if at, ok := value.(time.Time); ok {
			row[key] = at.UTC().Format(time.RFC3339Nano)
			continue
		}
		row[key] = value
	}
	return row
}

func storageStatus(err error) error {
	switch {
	case errors.Is(err, storage.ErrUnknownResource), errors.Is(err, storage.ErrInvalidQuery):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Errorf(codes.Internal, "query: %v", err)
	}
}

func domainStatus(err error) error {
	var domainErr *platformerrors.Error
	if errors.As(err, &domainErr) {
		return domainErr.ToGRPCStatus()
	}
	return status.Error(codes.Internal, err.Error())
}
