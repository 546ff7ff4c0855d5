package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveCommand(t *testing.T) {
	before := testutil.ToFloat64(commandsTotal.WithLabelValues("create", ResultDegraded))
	ObserveCommand("create", ResultDegraded)
	assert.Equal(t, before+1, testutil.ToFloat64(commandsTotal.WithLabelValues("create", ResultDegraded)))
}

func TestObserveGatewayCall_Result(t *testing.T) {
	okBefore := testutil.ToFloat64(gatewayCallsTotal.WithLabelValues("schedule", ResultOK))
	errBefore := testutil.ToFloat64(gatewayCallsTotal.WithLabelValues("schedule", ResultError))

	ObserveGatewayCall("schedule", nil)
	ObserveGatewayCall("schedule", errors.New("boom"))

	assert.Equal(t, okBefore+1, testutil.ToFloat64(gatewayCallsTotal.WithLabelValues("schedule", ResultOK)))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(gatewayCallsTotal.WithLabelValues("schedule", ResultError)))
}

func TestSetActiveAlarms(t *testing.T) {
	SetActiveAlarms(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(activeAlarms))
}

func TestHandler_ServesNamespace(t *testing.T) {
	ObserveDose()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "medminder_adherence_doses_recorded_total"))
}
