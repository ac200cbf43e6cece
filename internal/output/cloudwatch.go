package output

import (
	"context"
	"fmt"

	"driftwatch/internal/metrics"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// RepositoryDimension is the dimension name carried by every datum.
const RepositoryDimension = "Repository"

// MetricPutter is the subset of the CloudWatch API the sink uses.
type MetricPutter interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchSink publishes one datum per metric into a namespace.
type CloudWatchSink struct {
	client    MetricPutter
	namespace string
}

func NewCloudWatchSink(client MetricPutter, namespace string) *CloudWatchSink {
	return &CloudWatchSink{client: client, namespace: namespace}
}

// NewCloudWatchClient loads the default AWS credential chain.
func NewCloudWatchClient(ctx context.Context, region string) (*cloudwatch.Client, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return cloudwatch.NewFromConfig(awsCfg), nil
}

func (s *CloudWatchSink) Name() string { return "cloudwatch" }

func (s *CloudWatchSink) Ship(ctx context.Context, r metrics.Record) error {
	if s.namespace == "" {
		return fmt.Errorf("cloudwatch: namespace is empty")
	}
	if s.client == nil {
		return fmt.Errorf("cloudwatch: client is nil")
	}

	samples := r.Samples()
	data := make([]types.MetricDatum, 0, len(samples))
	for _, sample := range samples {
		data = append(data, types.MetricDatum{
			MetricName: aws.String(sample.Metric.Name()),
			Dimensions: []types.Dimension{{
				Name:  aws.String(RepositoryDimension),
				Value: aws.String(r.Repository),
			}},
			Unit:      standardUnit(sample.Metric.Unit()),
			Value:     aws.Float64(sample.Value),
			Timestamp: aws.Time(r.Timestamp),
		})
	}

	_, err := s.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(s.namespace),
		MetricData: data,
	})
	if err != nil {
		return fmt.Errorf("cloudwatch: put metric data: %w", err)
	}
	return nil
}

func standardUnit(u metrics.Unit) types.StandardUnit {
	switch u {
	case metrics.UnitCount:
		return types.StandardUnitCount
	case metrics.UnitMilliseconds:
		return types.StandardUnitMilliseconds
	case metrics.UnitBytes:
		return types.StandardUnitBytes
	default:
		return types.StandardUnitNone
	}
}
