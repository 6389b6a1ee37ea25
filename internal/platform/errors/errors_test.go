package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestErrorMessageIncludesCause(t *testing.T) {
	err := Wrap(CodeFetchFailed, "fetch bookings-u1", fmt.Errorf("boom"))
	if got, want := err.Error(), "fetch bookings-u1: boom"; got != want {
		t.Fatalf("error = %q, want %q", got, want)
	}
	if !stderrors.Is(err, New(CodeFetchFailed, "")) {
		t.Fatal("expected errors.Is to match by code")
	}
	if stderrors.Is(err, New(CodeCallbackFailed, "")) {
		t.Fatal("expected errors.Is to reject other codes")
	}
}

func TestHasCodeWalksNestedDomainErrors(t *testing.T) {
	inner := New(CodeNotFound, "no such booking")
	outer := Wrap(CodeFetchFailed, "fetch", fmt.Errorf("execute: %w", inner))

	if !HasCode(outer, CodeFetchFailed) {
		t.Fatal("expected outer code")
	}
	if !HasCode(outer, CodeNotFound) {
		t.Fatal("expected nested code")
	}
	if HasCode(outer, CodeUnavailable) {
		t.Fatal("unexpected code match")
	}
	if got := CodeOf(outer); got != CodeFetchFailed {
		t.Fatalf("code = %s, want %s", got, CodeFetchFailed)
	}
	if got := CodeOf(fmt.Errorf("plain")); got != CodeUnknown {
		t.Fatalf("code = %s, want %s", got, CodeUnknown)
	}
}

func TestGRPCRoundTripKeepsReasonAndMetadata(t *testing.T) {
	original := WrapWithMetadata(CodeNotFound, "resource missing", map[string]string{"resource": "bookings"}, nil)

	converted := FromGRPC(original.ToGRPCStatus())
	if converted.Code != CodeNotFound {
		t.Fatalf("code = %s, want %s", converted.Code, CodeNotFound)
	}
	if converted.Metadata["resource"] != "bookings" {
		t.Fatalf("metadata = %v, want resource=bookings", converted.Metadata)
	}
	if converted.Metadata["grpc_code"] != codes.NotFound.String() {
		t.Fatalf("grpc code = %q, want %q", converted.Metadata["grpc_code"], codes.NotFound.String())
	}
}

func TestFromGRPCMapsPlainStatus(t *testing.T) {
	converted := FromGRPC(status.Error(codes.Unavailable, "backend down"))
	if converted.Code != CodeUnavailable {
		t.Fatalf("code = %s, want %s", converted.Code, CodeUnavailable)
	}
	if converted.Message != "backend down" {
		t.Fatalf("message = %q, want %q", converted.Message, "backend down")
	}
}

func TestFromGRPCWrapsNonStatusError(t *testing.T) {
	cause := fmt.Errorf("socket closed")
	converted := FromGRPC(cause)
	if converted.Code != CodeUnknown {
		t.Fatalf("code = %s, want %s", converted.Code, CodeUnknown)
	}
	if !stderrors.Is(converted, cause) {
		t.Fatal("expected cause to be preserved")
	}
	if FromGRPC(nil) != nil {
		t.Fatal("expected nil for nil error")
	}
}
