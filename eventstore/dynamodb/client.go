package dynamodb

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/dynavault/dynavault/internal/config"
)

// NewClient returns a configured DynamoDB client based on the given
// conf. Endpoint and static credentials are only set when configured,
// which keeps the default AWS credential chain in play for real
// deployments while allowing dynamodb-local for development.
func NewClient(ctx context.Context, conf config.DynamoDbClient) (*ddb.Client, error) {
	var loadOptions []func(*awsconfig.LoadOptions) error
	if conf.Region != nil {
		loadOptions = append(loadOptions, awsconfig.WithRegion(*conf.Region))
	}
	if conf.Credentials != nil {
		loadOptions = append(loadOptions, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(conf.Credentials.AccessKeyId, conf.Credentials.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, err
	}
	client := ddb.NewFromConfig(awsCfg, func(o *ddb.Options) {
		if conf.Endpoint != nil {
			o.BaseEndpoint = aws.String(*conf.Endpoint)
		}
	})
	return client, nil
}
