package eccentric

import (
	"context"
	"testing"

	"github.com/go-errors/errors"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func histogramCount(t *testing.T, o prometheus.Observer) uint64 {
	var m dto.Metric
	require.NoError(t, o.(prometheus.Metric).Write(&m))
	return m.GetHistogram().GetSampleCount()
}

func TestMetrics_Delivery(t *testing.T) {
	delivered := counterValue(t, metricDelivery.WithLabelValues("delivered"))
	discarded := counterValue(t, metricDelivery.WithLabelValues("discarded"))
	failed := counterValue(t, metricDelivery.WithLabelValues("delivererror"))
	tooBig := counterValue(t, metricDelivery.WithLabelValues("toobig"))

	message := "MAIL FROM:<a@b.c>\r\nRCPT TO:<d@e.f>\r\nDATA\r\nbody line\r\n.\r\n"

	srv := newTestServer(t)
	_, _, err := serve(t, srv, message)
	require.NoError(t, err)
	assert.Equal(t, discarded+1, counterValue(t, metricDelivery.WithLabelValues("discarded")))

	srv.Handler = DiscardHandler
	_, _, err = serve(t, srv, message)
	require.NoError(t, err)
	assert.Equal(t, delivered+1, counterValue(t, metricDelivery.WithLabelValues("delivered")))

	srv.Handler = HandlerFunc(func(context.Context, *Envelope) (string, error) {
		return "", errors.New("spool is full")
	})
	_, _, err = serve(t, srv, message)
	require.NoError(t, err)
	assert.Equal(t, failed+1, counterValue(t, metricDelivery.WithLabelValues("delivererror")))

	limits := DefaultLimits
	limits.MsgSize = 4
	_, _, err = serve(t, newTestServer(t, limits), message)
	require.NoError(t, err)
	assert.Equal(t, tooBig+1, counterValue(t, metricDelivery.WithLabelValues("toobig")))
}

func TestMetrics_Commands(t *testing.T) {
	noop := histogramCount(t, metricCommands.WithLabelValues("noop", "250"))
	unknown := histogramCount(t, metricCommands.WithLabelValues("unrecognized", "500"))

	_, _, err := serve(t, newTestServer(t), "NOOP\r\nFOO bar\r\nNOOP\r\n")
	require.NoError(t, err)

	assert.Equal(t, noop+2, histogramCount(t, metricCommands.WithLabelValues("noop", "250")))
	assert.Equal(t, unknown+1, histogramCount(t, metricCommands.WithLabelValues("unrecognized", "500")))
}
