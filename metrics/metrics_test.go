package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("nil 配置返回错误", func(t *testing.T) {
		_, err := New(nil)
		assert.Error(t, err)
	})

	t.Run("禁用时返回 noop Meter", func(t *testing.T) {
		meter, err := New(&Config{Enabled: false})
		require.NoError(t, err)

		ctx := context.Background()
		counter, err := meter.Counter("noop_total", "noop counter")
		require.NoError(t, err)
		counter.Inc(ctx)

		assert.NoError(t, meter.Shutdown(ctx))
	})

	t.Run("启用时创建真实 Meter", func(t *testing.T) {
		meter, err := New(&Config{
			Enabled:     true,
			ServiceName: "metrics-test",
			Version:     "v0.0.1",
		})
		require.NoError(t, err)
		defer meter.Shutdown(context.Background())

		ctx := context.Background()

		counter, err := meter.Counter("test_operations_total", "测试操作总数")
		require.NoError(t, err)
		counter.Inc(ctx, L("service", "ledger"))
		counter.Add(ctx, 5, L("service", "ledger"))

		gauge, err := meter.Gauge("test_queue_depth", "测试队列深度")
		require.NoError(t, err)
		gauge.Set(ctx, 10)
		gauge.Inc(ctx)
		gauge.Dec(ctx)

		histogram, err := meter.Histogram("test_duration_seconds", "测试耗时", WithUnit("seconds"))
		require.NoError(t, err)
		histogram.Record(ctx, 0.123, L("outcome", OutcomeSuccess))
	})
}

func TestLabelKey(t *testing.T) {
	assert.Equal(t, "", labelKey(nil))
	assert.Equal(t, "a=1|b=2", labelKey([]Label{L("a", "1"), L("b", "2")}))
}

func TestL(t *testing.T) {
	l := L("service", "ledger")
	assert.Equal(t, "service", l.Key)
	assert.Equal(t, "ledger", l.Value)
}
