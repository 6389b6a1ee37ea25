package remote

import (
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/cargo.space/internal/datacore/realtime"
	platformerrors "github.com/louisbranch/cargo.space/internal/platform/errors"
	"google.golang.org/protobuf/types/known/structpb"
)

// KindSubscribed is the acknowledgement sent once a Subscribe stream is
// registered on the backend.
const KindSubscribed = "SUBSCRIBED"

// Query is one Execute request.
type Query struct {
	Resource string
	// Select lists columns; empty selects every column.
	Select []string
	// Filter is an AIP-160 expression such as `user_id = "u1"`.
	Filter string
	// OrderBy is an AIP-132 ordering such as "created_at desc".
	OrderBy string
	Limit   int
	// CountOnly asks for the matching row count without rows.
	CountOnly bool
}

// Result is one Execute response.
type Result struct {
	Rows  []map[string]any
	Count int64
}

// Struct encodes q for the wire.
func (q Query) Struct() (*structpb.Struct, error) {
	resource := strings.TrimSpace(q.Resource)
	if resource == "" {
		return nil, platformerrors.New(platformerrors.CodeInvalidArgument, "query resource is required")
	}
	fields := map[string]any{
		"resource":   resource,
		"filter":     q.Filter,
		"order_by":   q.OrderBy,
		"limit":      q.Limit,
		"count_only": q.CountOnly,
	}
	if len(q.Select) > 0 {
		columns := make([]any, len(q.Select))
		for i, column := range q.Select {
			columns[i] = column
		}
		fields["select"] = columns
	}
	msg, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}
	return msg, nil
}

// QueryFromStruct decodes an Execute request.
func QueryFromStruct(msg *structpb.Struct) (Query, error) {
	fields := msg.GetFields()
	q := Query{
		Resource:  strings.TrimSpace(fields["resource"].GetStringValue()),
		Filter:    fields["filter"].GetStringValue(),
		OrderBy:   fields["order_by"].GetStringValue(),
		Limit:     int(fields["limit"].GetNumberValue()),
		CountOnly: fields["count_only"].GetBoolValue(),
	}
	for _, column := range fields["select"].GetListValue().GetValues() {
		q.Select = append(q.Select, column.GetStringValue())
	}
	if q.Resource == "" {
		return Query{}, platformerrors.New(platformerrors.CodeInvalidArgument, "query resource is required")
	}
	if q.Limit < 0 {
		return Query{}, platformerrors.New(platformerrors.CodeInvalidArgument, "query limit must not be negative")
	}
	return q, nil
}

// Struct encodes r for the wire.
func (r Result) Struct() (*structpb.Struct, error) {
	rows := make([]any, len(r.Rows))
	for i, row := range r.Rows {
		rows[i] = row
	}
	msg, err := structpb.NewStruct(map[string]any{
		"rows":  rows,
		"count": r.Count,
	})
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return msg, nil
}

// ResultFromStruct decodes an Execute response.
func ResultFromStruct(msg *structpb.Struct) Result {
	fields := msg.GetFields()
	values := fields["rows"].GetListValue().GetValues()
	result := Result{
		Rows:  make([]map[string]any, 0, len(values)),
		Count: int64(fields["count"].GetNumberValue()),
	}
	for _, value := range values {
		result.Rows = append(result.Rows, value.GetStructValue().AsMap())
	}
	return result
}

// TopicStruct encodes a Subscribe request.
func TopicStruct(topic realtime.Topic) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"resource": structpb.NewStringValue(topic.Resource),
		"filter":   structpb.NewStringValue(topic.Filter),
	}}
}

// TopicFromStruct decodes a Subscribe request.
func TopicFromStruct(msg *structpb.Struct) (realtime.Topic, error) {
	fields := msg.GetFields()
	topic := realtime.Topic{
		Resource: strings.TrimSpace(fields["resource"].GetStringValue()),
		Filter:   strings.TrimSpace(fields["filter"].GetStringValue()),
	}
	if topic.Resource == "" {
		return realtime.Topic{}, platformerrors.New(platformerrors.CodeInvalidArgument, "subscription resource is required")
	}
	return topic, nil
}

// EventStruct encodes one change event.
func EventStruct(event realtime.Event) *structpb.Struct {
	occurredAt := ""
	if !event.OccurredAt.IsZero() {
		occurredAt = event.OccurredAt.UTC().Format(time.RFC3339Nano)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"resource":    structpb.NewStringValue(event.Topic.Resource),
		"filter":      structpb.NewStringValue(event.Topic.Filter),
		"kind":        structpb.NewStringValue(string(event.Kind)),
		"record_id":   structpb.NewStringValue(event.RecordID),
		"occurred_at": structpb.NewStringValue(occurredAt),
	}}
}

// EventFromStruct decodes one change event. An unparsable timestamp is left
// zero rather than dropping the event.
func EventFromStruct(msg *structpb.Struct) realtime.Event {
	fields := msg.GetFields()
	event := realtime.Event{
		Topic: realtime.Topic{
			Resource: fields["resource"].GetStringValue(),
			Filter:   fields["filter"].GetStringValue(),
		},
		Kind:     realtime.EventKind(fields["kind"].GetStringValue()),
		RecordID: fields["record_id"].GetStringValue(),
	}
	if raw := fields["occurred_at"].GetStringValue(); raw != "" {
		if at, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			event.OccurredAt = at
		}
	}
	return event
}

// AckStruct is the first message on every Subscribe stream.
func AckStruct(subscriptionID string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"kind":            structpb.NewStringValue(KindSubscribed),
		"subscription_id": structpb.NewStringValue(subscriptionID),
	}}
}
