package engine

import (
	"context"
	"errors"
	"testing"
)

func TestFakeEngineReceiveQueue(t *testing.T) {
	f := &FakeEngine{
		ReceiveQueue: []ReceiveResult{
			{Raw: "900 -450 900"},
			{Raw: "901 -449 899"},
		},
	}
	got1, err := f.ReceiveOne(context.Background(), 1000, false)
	if err != nil {
		t.Fatalf("ReceiveOne #1: %v", err)
	}
	if got1.Raw != "900 -450 900" {
		t.Fatalf("ReceiveOne #1 = %q", got1.Raw)
	}
	got2, err := f.ReceiveOne(context.Background(), 1000, false)
	if err != nil {
		t.Fatalf("ReceiveOne #2: %v", err)
	}
	if got2.Raw != "901 -449 899" {
		t.Fatalf("ReceiveOne #2 = %q", got2.Raw)
	}
	if _, err := f.ReceiveOne(context.Background(), 1000, false); !errors.Is(err, ErrTimeout) {
		t.Fatalf("ReceiveOne #3 err = %v, want ErrTimeout (queue exhausted)", err)
	}
}

func TestFakeEngineReceiveErr(t *testing.T) {
	f := &FakeEngine{ReceiveErrs: []error{ErrTimeout}}
	if _, err := f.ReceiveOne(context.Background(), 1000, false); !errors.Is(err, ErrTimeout) {
		t.Fatalf("ReceiveOne err = %v, want ErrTimeout", err)
	}
}

func TestFakeEngineSendFilesRecordsCall(t *testing.T) {
	f := &FakeEngine{SendResult: SendResult{Stdout: "ok"}}
	gap := 45000
	res, err := f.SendFiles(context.Background(), []string{"a.txt", "b.txt"}, &gap, nil, nil, nil)
	if err != nil {
		t.Fatalf("SendFiles: %v", err)
	}
	if res.Stdout != "ok" {
		t.Fatalf("SendFiles stdout = %q, want ok", res.Stdout)
	}
	if len(f.SendCalls) != 1 || len(f.SendCalls[0].Paths) != 2 {
		t.Fatalf("SendCalls = %+v, want one call with two paths", f.SendCalls)
	}
	if *f.SendCalls[0].GapUs != 45000 {
		t.Fatalf("SendCalls[0].GapUs = %v, want 45000", f.SendCalls[0].GapUs)
	}
}

func TestEngineFailureError(t *testing.T) {
	err := &EngineFailure{Stderr: "device busy"}
	if err.Error() == "" {
		t.Fatal("EngineFailure.Error() returned empty string")
	}
}
