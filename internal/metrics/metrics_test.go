package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestDirection(t *testing.T) {
	assert.Equal(t, "add", Direction(1))
	assert.Equal(t, "remove", Direction(-1))
}

func TestEventsAppliedLabels(t *testing.T) {
	c := EventsApplied.WithLabelValues("student", Direction(1))
	before := testutil.ToFloat64(c)
	c.Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(c))
}
