package kafka

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counterValue reads a counter from the default registry. Returns 0 when the
// label combination has not been observed yet.
func counterValue(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, m := range fam.GetMetric() {
			if matchLabels(m.GetLabel(), labels) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func matchLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	if len(pairs) != len(want) {
		return false
	}
	for _, p := range pairs {
		if want[p.GetName()] != p.GetValue() {
			return false
		}
	}
	return true
}

func TestConsumerMetrics_Increment(t *testing.T) {
	labels := map[string]string{"topic": "metrics-test-orders", "consumer_group": "metrics-test-cart"}
	before := counterValue(t, "kafka_consumer_messages_processed_total", labels)

	ConsumerMessagesProcessed.WithLabelValues("metrics-test-orders", "metrics-test-cart").Inc()
	ConsumerMessagesProcessed.WithLabelValues("metrics-test-orders", "metrics-test-cart").Inc()

	assert.Equal(t, before+2, counterValue(t, "kafka_consumer_messages_processed_total", labels))
}

func TestProducerMetrics_Increment(t *testing.T) {
	labels := map[string]string{"topic": "metrics-test-cart-synced"}
	before := counterValue(t, "kafka_producer_publish_errors_total", labels)

	ProducerPublishErrors.WithLabelValues("metrics-test-cart-synced").Inc()

	assert.Equal(t, before+1, counterValue(t, "kafka_producer_publish_errors_total", labels))
}

func TestDuplicateMetric_ByEventType(t *testing.T) {
	labels := map[string]string{"event_type": "metrics.test.duplicate"}
	before := counterValue(t, "kafka_consumer_messages_duplicate_total", labels)

	ConsumerMessagesDuplicate.WithLabelValues("metrics.test.duplicate").Inc()

	assert.Equal(t, before+1, counterValue(t, "kafka_consumer_messages_duplicate_total", labels))
}
