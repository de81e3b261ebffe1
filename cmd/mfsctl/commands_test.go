package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	method string
	path   string
	query  string
	apiKey string
	body   string
}

func fakeServer(t *testing.T, status int, reply string) (*httptest.Server, *[]recorded) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		calls = append(calls, recorded{
			method: r.Method,
			path:   r.URL.Path,
			query:  r.URL.RawQuery,
			apiKey: r.Header.Get("X-API-Key"),
			body:   string(body),
		})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSignalShow(t *testing.T) {
	srv, calls := fakeServer(t, http.StatusOK, `{"code":0,"message":"ok","data":{"signal":{"signal_id":7}}}`)
	out, err := run(t, "--server", srv.URL, "signal", "show", "7")
	require.NoError(t, err)
	require.Len(t, *calls, 1)
	assert.Equal(t, "/api/v1/signals/7", (*calls)[0].path)
	assert.Contains(t, out, `"signal_id": 7`)
}

func TestSignalShowRejectsNonNumericID(t *testing.T) {
	srv, calls := fakeServer(t, http.StatusOK, `{}`)
	_, err := run(t, "--server", srv.URL, "signal", "show", "abc")
	require.Error(t, err)
	assert.Empty(t, *calls)
}

func TestJobsRequeueSendsAPIKey(t *testing.T) {
	srv, calls := fakeServer(t, http.StatusOK, `{"code":0,"message":"ok","data":{"id":3}}`)
	_, err := run(t, "--server", srv.URL, "--api-key", "secret", "jobs", "requeue", "3")
	require.NoError(t, err)
	require.Len(t, *calls, 1)
	c := (*calls)[0]
	assert.Equal(t, http.MethodPost, c.method)
	assert.Equal(t, "/api/v1/jobs/failed/3/requeue", c.path)
	assert.Equal(t, "secret", c.apiKey)
}

func TestJobsListStatusFilter(t *testing.T) {
	srv, calls := fakeServer(t, http.StatusOK, `{"code":0,"message":"ok","data":[]}`)
	_, err := run(t, "--server", srv.URL, "jobs", "list", "--status", "requeued")
	require.NoError(t, err)
	assert.Equal(t, "status=requeued", (*calls)[0].query)
}

func TestServerErrorMessageSurfaces(t *testing.T) {
	srv, _ := fakeServer(t, http.StatusConflict, `{"code":409,"message":"job is not parked"}`)
	_, err := run(t, "--server", srv.URL, "jobs", "requeue", "3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "409 job is not parked")
}

func TestSwitchSet(t *testing.T) {
	srv, calls := fakeServer(t, http.StatusOK, `{"code":0,"message":"ok","data":{"enabled":false}}`)
	_, err := run(t, "--server", srv.URL, "switch", "set", "reconcile", "off")
	require.NoError(t, err)
	c := (*calls)[0]
	assert.Equal(t, http.MethodPut, c.method)
	assert.Equal(t, "/api/v1/system-settings/switches/reconcile", c.path)
	var body map[string]bool
	require.NoError(t, json.Unmarshal([]byte(c.body), &body))
	assert.False(t, body["enabled"])

	_, err = run(t, "--server", srv.URL, "switch", "set", "reconcile", "maybe")
	require.Error(t, err)
	assert.Len(t, *calls, 1)
}

func TestEventsPushFromStdin(t *testing.T) {
	srv, calls := fakeServer(t, http.StatusServiceUnavailable, `{"code":503,"message":"some events were not applied","meta":{"failed":1}}`)
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader(`[{"kind":"FidBanned"}]`))
	cmd.SetArgs([]string{"--server", srv.URL, "events", "push", "-"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, `[{"kind":"FidBanned"}]`, (*calls)[0].body)
	assert.Contains(t, out.String(), `"failed": 1`)
}

func TestPrintJSONPassesThroughText(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printJSON(&out, []byte("not json")))
	assert.Equal(t, "not json\n", out.String())
}
