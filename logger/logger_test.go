package logger

import (
	"context"
	"testing"

	opentracing "github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/mocktracer"
)

// It is expected that WithContext will have trace ID set
func BenchmarkWrappedLogger_FromContextTraceID(b *testing.B) {
	tests := []struct {
		name string
	}{
		{
			name: "positive",
		},
	}
	for _, test := range tests {
		b.Run(test.name, func(b *testing.B) {

			New("NOOP")

			tracer := mocktracer.New()
			span := tracer.StartSpan("bench")
			ctx := opentracing.ContextWithSpan(context.Background(), span)
			for n := 0; n < b.N; n++ {
				func(inctx context.Context) {
					log := Sugar.FromContext(inctx)
					defer log.Close()
				}(ctx)
			}
			span.Finish()
		})
	}
}
