// Package route53 implements the zonesync provider interface for AWS
// Route53, plus registrar delegation sync through Route53 Domains.
package route53

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// Config holds the AWS connection settings. Empty AccessKeyID means the SDK
// default credential chain (environment, shared config, instance role).
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// LoadAWSConfig resolves an aws.Config from cfg.
func LoadAWSConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS configuration: %w", err)
	}
	return awsCfg, nil
}
