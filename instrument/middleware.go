package instrument

import (
	"context"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go/middleware"

	"github.com/nrbedrock/bedrock-observability/events"
	"github.com/nrbedrock/bedrock-observability/monitor"
)

// MiddlewareID names the Initialize middleware added by WithMonitoring.
const MiddlewareID = "BedrockMonitoring"

// WithMonitoring instruments a client built with
// bedrockruntime.NewFromConfig(cfg, instrument.WithMonitoring(mon)).
// Adding it more than once has no further effect.
func WithMonitoring(mon *monitor.Monitor) func(*bedrockruntime.Options) {
	return func(o *bedrockruntime.Options) {
		if mon == nil {
			return
		}
		o.APIOptions = append(o.APIOptions, func(stack *middleware.Stack) error {
			if _, ok := stack.Initialize.Get(MiddlewareID); ok {
				return nil
			}
			return stack.Initialize.Add(newMonitoringMiddleware(mon), middleware.After)
		}, addStreamTap)
	}
}

func newMonitoringMiddleware(mon *monitor.Monitor) middleware.InitializeMiddleware {
	rec := recorder{mon: mon}

	return middleware.InitializeMiddlewareFunc(MiddlewareID, func(ctx context.Context,
		in middleware.InitializeInput, next middleware.InitializeHandler,
	) (out middleware.InitializeOutput, md middleware.Metadata, err error) {
		if observed(ctx) {
			return next.HandleInitialize(ctx, in)
		}

		switch params := in.Parameters.(type) {
		case *bedrockruntime.InvokeModelInput:
			inv := events.Invocation{ModelID: aws.ToString(params.ModelId), Body: params.Body}
			err = rec.observeInvoke(markObserved(ctx), inv, func(ctx context.Context) ([]byte, http.Header, error) {
				var callErr error
				out, md, callErr = next.HandleInitialize(ctx, in)
				if res, ok := out.Result.(*bedrockruntime.InvokeModelOutput); ok && res != nil && callErr == nil {
					return res.Body, headersOf(md), nil
				}
				return nil, headersOf(md), callErr
			})
			return out, md, err

		case *bedrockruntime.InvokeModelWithResponseStreamInput:
			inv := events.Invocation{ModelID: aws.ToString(params.ModelId), Body: params.Body}
			_, err = rec.observeStream(markObserved(ctx), inv,
				func(ctx context.Context) (*bedrockruntime.InvokeModelWithResponseStreamOutput, http.Header, error) {
					var callErr error
					out, md, callErr = next.HandleInitialize(ctx, in)
					res, _ := out.Result.(*bedrockruntime.InvokeModelWithResponseStreamOutput)
					return res, headersOf(md), callErr
				})
			return out, md, err

		case *bedrockruntime.ConverseInput:
			_, err = rec.observeConverse(markObserved(ctx), params,
				func(ctx context.Context) (*bedrockruntime.ConverseOutput, http.Header, error) {
					var callErr error
					out, md, callErr = next.HandleInitialize(ctx, in)
					res, _ := out.Result.(*bedrockruntime.ConverseOutput)
					return res, headersOf(md), callErr
				})
			return out, md, err
		}

		return next.HandleInitialize(ctx, in)
	})
}
