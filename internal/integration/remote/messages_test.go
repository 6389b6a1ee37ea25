package remote

import (
	"testing"

	"github.com/louisbranch/cargo.space/internal/datacore/realtime"
	platformerrors "github.com/louisbranch/cargo.space/internal/platform/errors"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestQueryFromStructValidates(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]any
	}{
		{name: "missing resource", fields: map[string]any{"filter": `user_id = "u1"`}},
		{name: "blank resource", fields: map[string]any{"resource": "  "}},
		{name: "negative limit", fields: map[string]any{"resource": "bookings", "limit": -1}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := structpb.NewStruct(tc.fields)
			if err != nil {
				t.Fatalf("new struct: %v", err)
			}
			if _, err := QueryFromStruct(msg); !platformerrors.HasCode(err, platformerrors.CodeInvalidArgument) {
				t.Fatalf("err = %v, want INVALID_ARGUMENT", err)
			}
		})
	}
}

func TestResultFromStructSkipsMissingFields(t *testing.T) {
	result := ResultFromStruct(&structpb.Struct{})
	if len(result.Rows) != 0 || result.Count != 0 {
		t.Fatalf("result = %+v, want empty", result)
	}
}

func TestEventFromStructToleratesBadTimestamp(t *testing.T) {
	msg := EventStruct(realtime.Event{Topic: realtime.Topic{Resource: "bookings"}, Kind: realtime.EventDelete, RecordID: "b9"})
	msg.Fields["occurred_at"] = structpb.NewStringValue("yesterday")

	event := EventFromStruct(msg)
	if event.Kind != realtime.EventDelete || event.RecordID != "b9" {
		t.Fatalf("event = %+v", event)
	}
	if !event.OccurredAt.IsZero() {
		t.Fatalf("occurred at = %v, want zero", event.OccurredAt)
	}
}

func TestTopicFromStructTrims(t *testing.T) {
	topic, err := TopicFromStruct(TopicStruct(realtime.Topic{Resource: " profiles ", Filter: ` id = "u1" `}))
	if err != nil {
		t.Fatalf("topic: %v", err)
	}
	if topic.Resource != "profiles" || topic.Filter != `id = "u1"` {
		t.Fatalf("topic = %+v", topic)
	}
	if _, err := TopicFromStruct(TopicStruct(realtime.Topic{})); err == nil {
		t.Fatal("expected missing resource error")
	}
}
