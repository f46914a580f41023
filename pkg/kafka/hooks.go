package kafka

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// ConsumerHook observes message handling. BeforeHandle may rewrite the payload
// or reject it; a rejected message skips the handler and goes through the
// error path (OnError, DLQ, commit).
type ConsumerHook interface {
	BeforeHandle(ctx context.Context, km kafka.Message, data []byte) (context.Context, []byte, error)
	AfterHandle(ctx context.Context, km kafka.Message, err error)
	OnError(ctx context.Context, km kafka.Message, err error)
}

type NoopHook struct{}

func (NoopHook) BeforeHandle(ctx context.Context, _ kafka.Message, data []byte) (context.Context, []byte, error) {
	return ctx, data, nil
}
func (NoopHook) AfterHandle(context.Context, kafka.Message, error) {}
func (NoopHook) OnError(context.Context, kafka.Message, error)     {}

// HookFuncs implements ConsumerHook from optional plain functions.
type HookFuncs struct {
	Before func(context.Context, kafka.Message, []byte) (context.Context, []byte, error)
	After  func(context.Context, kafka.Message, error)
	Err    func(context.Context, kafka.Message, error)
}

func (h HookFuncs) BeforeHandle(ctx context.Context, km kafka.Message, data []byte) (context.Context, []byte, error) {
	if h.Before == nil {
		return ctx, data, nil
	}
	return h.Before(ctx, km, data)
}

func (h HookFuncs) AfterHandle(ctx context.Context, km kafka.Message, err error) {
	if h.After != nil {
		h.After(ctx, km, err)
	}
}

func (h HookFuncs) OnError(ctx context.Context, km kafka.Message, err error) {
	if h.Err != nil {
		h.Err(ctx, km, err)
	}
}

type ctxKey string

// CtxTraceID holds the correlation id copied from message headers.
const CtxTraceID ctxKey = "kafka_trace_id"

// TraceIDHook copies the trace_id header into the handler context.
func TraceIDHook() HookFuncs {
	return HookFuncs{Before: func(ctx context.Context, km kafka.Message, data []byte) (context.Context, []byte, error) {
		for _, h := range km.Headers {
			if h.Key == "trace_id" && len(h.Value) > 0 {
				return context.WithValue(ctx, CtxTraceID, string(h.Value)), data, nil
			}
		}
		return ctx, data, nil
	}}
}

// TraceID returns the id stored by TraceIDHook, if any.
func TraceID(ctx context.Context) string {
	v, _ := ctx.Value(CtxTraceID).(string)
	return v
}
