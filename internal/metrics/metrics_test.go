package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecordTurn(t *testing.T) {
	turnsTotal.Reset()
	RecordTurn("success")
	RecordTurn("success")
	RecordTurn("provider_error")

	require.Equal(t, 2.0, testutil.ToFloat64(turnsTotal.WithLabelValues("success")))
	require.Equal(t, 1.0, testutil.ToFloat64(turnsTotal.WithLabelValues("provider_error")))
}

func TestRecordProviderRequestAndTokens(t *testing.T) {
	providerRequestsTotal.Reset()
	providerRequestDuration.Reset()
	providerTokensTotal.Reset()

	RecordProviderRequest("azure", "success", 0.4)
	RecordProviderTokens("azure", 120, 30)
	RecordProviderTokens("mock", 0, 0)

	require.Equal(t, 1.0, testutil.ToFloat64(providerRequestsTotal.WithLabelValues("azure", "success")))
	require.Equal(t, 1, testutil.CollectAndCount(providerRequestDuration))
	require.Equal(t, 120.0, testutil.ToFloat64(providerTokensTotal.WithLabelValues("azure", "prompt")))
	require.Equal(t, 30.0, testutil.ToFloat64(providerTokensTotal.WithLabelValues("azure", "completion")))
	require.Equal(t, 2, testutil.CollectAndCount(providerTokensTotal))
}

func TestGaugesAndReloads(t *testing.T) {
	configReloadsTotal.Reset()
	stageCoverageTotal.Reset()

	SetSessionsActive(3)
	RecordConfigReload("error")
	RecordStageCovered("problem")

	require.Equal(t, 3.0, testutil.ToFloat64(sessionsActive))
	require.Equal(t, 1.0, testutil.ToFloat64(configReloadsTotal.WithLabelValues("error")))
	require.Equal(t, 1.0, testutil.ToFloat64(stageCoverageTotal.WithLabelValues("problem")))
}

func TestHandler_ExposesCoachMetrics(t *testing.T) {
	RecordTurn("success")
	srv := httptest.NewServer(Handler(NewRegistry()))
	defer srv.Close()

	res, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Contains(t, string(body), "coach_turns_total")
	require.Contains(t, string(body), "go_goroutines")
}
