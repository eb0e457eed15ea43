package instrument

import (
	"context"

	"github.com/Laisky/errors/v2"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/nrbedrock/bedrock-observability/common/config"
	"github.com/nrbedrock/bedrock-observability/monitor"
)

// NewClient loads the default AWS configuration for region (AWS_REGION
// when empty) and returns a Bedrock runtime client instrumented with mon.
// Static credentials are used when AWS_ACCESS_KEY_ID and
// AWS_SECRET_ACCESS_KEY are both set.
func NewClient(ctx context.Context, mon *monitor.Monitor, region string,
	optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.Client, error) {
	if region == "" {
		region = appconfig.AWSRegion
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if appconfig.AWSAccessKeyID != "" && appconfig.AWSSecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			appconfig.AWSAccessKeyID, appconfig.AWSSecretAccessKey, appconfig.AWSSessionToken)))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "load aws config")
	}

	opts := append([]func(*bedrockruntime.Options){WithMonitoring(mon)}, optFns...)
	return bedrockruntime.NewFromConfig(cfg, opts...), nil
}
