// Package instrument records New Relic telemetry for AWS Bedrock runtime
// calls, either through the Client wrapper or the WithMonitoring option.
package instrument

import (
	"context"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/nrbedrock/bedrock-observability/events"
	"github.com/nrbedrock/bedrock-observability/monitor"
)

// BedrockRuntimeAPI is the part of *bedrockruntime.Client that is instrumented.
type BedrockRuntimeAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput,
		optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
	InvokeModelWithResponseStream(ctx context.Context, params *bedrockruntime.InvokeModelWithResponseStreamInput,
		optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelWithResponseStreamOutput, error)
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput,
		optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

var (
	_ BedrockRuntimeAPI = (*bedrockruntime.Client)(nil)
	_ BedrockRuntimeAPI = (*Client)(nil)
)

// Client records every call of the wrapped API with a Monitor.
type Client struct {
	api BedrockRuntimeAPI
	rec recorder
}

// Wrap instruments api. Wrapping a *Client returns it unchanged. With a
// nil monitor every call passes straight through.
func Wrap(api BedrockRuntimeAPI, mon *monitor.Monitor) *Client {
	if c, ok := api.(*Client); ok {
		return c
	}
	return &Client{api: api, rec: recorder{mon: mon}}
}

// Unwrap returns the wrapped API.
func (c *Client) Unwrap() BedrockRuntimeAPI { return c.api }

func (c *Client) enabled() bool { return c.rec.mon != nil }

// InvokeModel calls the wrapped API and records BedrockEvent and
// BedrockSummary events, or a BedrockEmbedding event for embedding models.
func (c *Client) InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput,
	optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	if !c.enabled() || params == nil {
		return c.api.InvokeModel(ctx, params, optFns...)
	}

	ctx = markObserved(ctx)
	inv := events.Invocation{ModelID: aws.ToString(params.ModelId), Body: params.Body}

	var out *bedrockruntime.InvokeModelOutput
	err := c.rec.observeInvoke(ctx, inv, func(ctx context.Context) ([]byte, http.Header, error) {
		var err error
		out, err = c.api.InvokeModel(ctx, params, optFns...)
		if err != nil || out == nil {
			return nil, nil, err
		}
		return out.Body, headersOf(out.ResultMetadata), nil
	})
	return out, err
}

// InvokeModelWithResponseStream calls the wrapped API. The events are
// recorded once the returned stream ends or is closed.
func (c *Client) InvokeModelWithResponseStream(ctx context.Context, params *bedrockruntime.InvokeModelWithResponseStreamInput,
	optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelWithResponseStreamOutput, error) {
	if !c.enabled() || params == nil {
		return c.api.InvokeModelWithResponseStream(ctx, params, optFns...)
	}

	ctx = markObserved(ctx)
	inv := events.Invocation{ModelID: aws.ToString(params.ModelId), Body: params.Body}

	return c.rec.observeStream(ctx, inv,
		func(ctx context.Context) (*bedrockruntime.InvokeModelWithResponseStreamOutput, http.Header, error) {
			opts := append(optFns[:len(optFns):len(optFns)], withStreamTapOption)
			out, err := c.api.InvokeModelWithResponseStream(ctx, params, opts...)
			if err != nil || out == nil {
				return out, nil, err
			}
			return out, headersOf(out.ResultMetadata), nil
		})
}

// Converse calls the wrapped API and records its messages and summary.
func (c *Client) Converse(ctx context.Context, params *bedrockruntime.ConverseInput,
	optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	if !c.enabled() || params == nil {
		return c.api.Converse(ctx, params, optFns...)
	}

	ctx = markObserved(ctx)
	return c.rec.observeConverse(ctx, params,
		func(ctx context.Context) (*bedrockruntime.ConverseOutput, http.Header, error) {
			out, err := c.api.Converse(ctx, params, optFns...)
			if err != nil || out == nil {
				return out, nil, err
			}
			return out, headersOf(out.ResultMetadata), nil
		})
}
