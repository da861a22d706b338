package engine

import "context"

// FakeEngine is a test double for Engine used by internal/learning and
// internal/sender tests, so they don't need a real ir-ctl binary.
type FakeEngine struct {
	ReceiveQueue []ReceiveResult
	ReceiveErrs  []error
	receiveCalls int

	SendResult SendResult
	SendErr    error
	SendCalls  []SendCall
}

// SendCall records one SendFiles invocation for assertions.
type SendCall struct {
	Paths     []string
	GapUs     *int
	CarrierHz *int
	DutyCycle *int
	Emitters  []string
}

func (f *FakeEngine) ReceiveOne(_ context.Context, _ int, _ bool) (ReceiveResult, error) {
	i := f.receiveCalls
	f.receiveCalls++
	var err error
	if i < len(f.ReceiveErrs) {
		err = f.ReceiveErrs[i]
	}
	if err != nil {
		return ReceiveResult{}, err
	}
	if i < len(f.ReceiveQueue) {
		return f.ReceiveQueue[i], nil
	}
	return ReceiveResult{}, ErrTimeout
}

func (f *FakeEngine) SendFiles(_ context.Context, paths []string, gapUs, carrierHz, dutyCycle *int, emitters []string) (SendResult, error) {
	f.SendCalls = append(f.SendCalls, SendCall{
		Paths: append([]string(nil), paths...), GapUs: gapUs, CarrierHz: carrierHz, DutyCycle: dutyCycle, Emitters: emitters,
	})
	if f.SendErr != nil {
		return SendResult{}, f.SendErr
	}
	return f.SendResult, nil
}
