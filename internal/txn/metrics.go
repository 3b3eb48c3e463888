package txn

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/kbediako/sikaflow/internal/aws"
)

const metricNamespace = "Sikaflow/Transactions"

// Metrics emits transaction outcome counts to CloudWatch. A nil *Metrics is
// a no-op, so local runs can skip wiring it.
type Metrics struct {
	client aws.CloudWatchAPI
}

// NewMetrics returns a Metrics bound to a CloudWatch client.
func NewMetrics(client aws.CloudWatchAPI) *Metrics {
	return &Metrics{client: client}
}

// RecordOutcome publishes one count for a kind/status pair. Fire-and-forget:
// failures are ignored, metrics must never fail a transaction.
func (m *Metrics) RecordOutcome(kind Kind, status Status) {
	if m == nil || m.client == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		_, _ = m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace: awsString(metricNamespace),
			MetricData: []cwtypes.MetricDatum{
				{
					MetricName: awsString("TransactionOutcome"),
					Value:      awsFloat(1),
					Unit:       cwtypes.StandardUnitCount,
					Dimensions: []cwtypes.Dimension{
						{Name: awsString("Kind"), Value: awsString(string(kind))},
						{Name: awsString("Status"), Value: awsString(string(status))},
					},
				},
			},
		})
	}()
}

func awsFloat(f float64) *float64 { return &f }
