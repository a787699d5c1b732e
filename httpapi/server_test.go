package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/notnil/canrelay/canbus"
	"github.com/notnil/canrelay/relay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 3, 9, 16, 30, 0, 0, time.FixedZone("PST", -8*3600))

type testEnv struct {
	srv     *httptest.Server
	network *canbus.LoopbackNetwork
	relay   *relay.Relay
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	network := canbus.NewLoopbackNetwork("vcan0", "vcan1")
	rl, err := relay.New(network, relay.NewCounters([]string{"vcan0", "vcan1"}),
		relay.WithLogger(logger),
		relay.WithMaxTimeout(time.Second),
	)
	require.NoError(t, err)

	srv := httptest.NewServer(NewServer(rl,
		WithLogger(logger),
		WithClock(func() time.Time { return fixedNow }),
	))
	t.Cleanup(func() {
		srv.Close()
		_ = network.Close()
	})
	return &testEnv{srv: srv, network: network, relay: rl}
}

func (e *testEnv) getJSON(t *testing.T, path string, v any) int {
	t.Helper()
	resp, err := http.Get(e.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	return resp.StatusCode
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t)

	var got map[string]any
	require.Equal(t, http.StatusOK, env.getJSON(t, "/status", &got))
	assert.Equal(t, float64(1), got["operational"])
	assert.Equal(t, map[string]any{"automotive": true}, got["hw_specialty"])
	assert.Equal(t, map[string]any{"can": true}, got["hw_capabilities"])
	assert.Equal(t, APIVersion, got["api_version"])
	assert.Equal(t, Version, got["fw_version"])
	assert.Equal(t, HardwareVersion, got["hw_version"])
	assert.Equal(t, DeviceName, got["device_name"])
}

func TestSettings(t *testing.T) {
	env := newTestEnv(t)

	var dt datetimeResponse
	env.getJSON(t, "/settings/datetime", &dt)
	assert.Equal(t, fixedNow.Unix(), dt.SystemDatetime)

	var tz timezoneResponse
	env.getJSON(t, "/settings/timezone", &tz)
	assert.Equal(t, "PST", tz.SystemTimezone)
}

func TestSupportedBuses(t *testing.T) {
	env := newTestEnv(t)

	var got []busName
	env.getJSON(t, "/automotive/supported_buses", &got)
	assert.Equal(t, []busName{{BusName: "vcan0"}, {BusName: "vcan1"}}, got)
}

func TestStatistics(t *testing.T) {
	env := newTestEnv(t)

	var raw map[string]any
	env.getJSON(t, "/statistics", &raw)
	assert.Nil(t, raw["last_request"], "no send yet")
	assert.Equal(t, float64(0), raw["packet_stats"])
	assert.Equal(t, float64(0), raw["voltage"])

	var sent successResponse
	env.getJSON(t, "/automotive/vcan1/cansend?id=7DF&data=0201", &sent)
	require.True(t, sent.Success)

	var st statsResponse
	env.getJSON(t, "/statistics", &st)
	assert.Equal(t, uint32(1), st.PacketStats)
	require.NotNil(t, st.LastRequest)
	assert.InDelta(t, time.Now().Unix(), *st.LastRequest, 5)
	assert.GreaterOrEqual(t, st.Uptime, int64(0))
	assert.Equal(t, map[string]int64{"vcan0": 0, "vcan1": 1}, st.BusStats)
}

func TestCansend(t *testing.T) {
	env := newTestEnv(t)
	listener, err := env.network.Open("vcan0")
	require.NoError(t, err)
	defer listener.Close()

	var got successResponse
	require.Equal(t, http.StatusOK, env.getJSON(t, "/automotive/vcan0/cansend?id=123&data=DEADBEEF", &got))
	assert.True(t, got.Success)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	f, err := listener.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, canbus.MustFrame(0x123, []byte{0xDE, 0xAD, 0xBE, 0xEF}), f)
}

func TestCansend_Failures(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{
		"/automotive/vcan0/cansend?id=ZZ&data=00",
		"/automotive/vcan0/cansend?id=123&data=0",
		"/automotive/vcan0/cansend?data=00",
		"/automotive/vcan0/cansend?id=FFFF&data=00",
		"/automotive/can9/cansend?id=123&data=00",
	} {
		t.Run(path, func(t *testing.T) {
			var got successResponse
			require.Equal(t, http.StatusOK, env.getJSON(t, path, &got))
			assert.False(t, got.Success)
		})
	}

	// The server is still serving after malformed input.
	var st statsResponse
	require.Equal(t, http.StatusOK, env.getJSON(t, "/statistics", &st))
	assert.Equal(t, uint32(0), st.PacketStats)
}

func TestIsotpSendAndWait(t *testing.T) {
	env := newTestEnv(t)
	ecu, err := env.network.Open("vcan0")
	require.NoError(t, err)
	defer ecu.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		req, err := ecu.Receive(ctx)
		if err != nil {
			return
		}
		// Echo the request payload back on the response identifier.
		_ = ecu.Send(ctx, canbus.MustFrame(0x7E8, req.Payload()))
	}()

	var got packetsResponse
	env.getJSON(t, "/automotive/vcan0/isotpsend_and_wait?srcid=7E0&dstid=7E8&data=0902&timeout=500&maxpkts=1&padding=00", &got)
	wg.Wait()

	require.True(t, got.Success)
	assert.Equal(t, []relay.Packet{
		{ID: "7E8", Data: []string{"2", "9", "2", "0", "0", "0", "0", "0"}},
	}, got.Packets)
}

func TestIsotpSendAndWait_Timeout(t *testing.T) {
	env := newTestEnv(t)

	start := time.Now()
	var got packetsResponse
	env.getJSON(t, "/automotive/vcan0/isotpsend_and_wait?srcid=1&dstid=2&data=AA&timeout=100&maxpkts=1", &got)
	elapsed := time.Since(start)

	assert.True(t, got.Success)
	assert.Empty(t, got.Packets)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, 600*time.Millisecond)
}

func TestIsotpSendAndWait_BadParams(t *testing.T) {
	env := newTestEnv(t)

	for _, query := range []string{
		"srcid=ZZ&dstid=7E8&data=00",
		"srcid=7E0&dstid=7E8&data=00&timeout=abc",
		"srcid=7E0&dstid=7E8&data=00&timeout=-5",
		"srcid=7E0&dstid=7E8&data=00&maxpkts=x",
		"srcid=7E0&dstid=7E8&data=00&padding=XYZ",
	} {
		t.Run(query, func(t *testing.T) {
			var raw map[string]any
			env.getJSON(t, "/automotive/vcan0/isotpsend_and_wait?"+query, &raw)
			assert.Equal(t, false, raw["success"])
			assert.Equal(t, []any{}, raw["packets"])
		})
	}
	assert.Equal(t, uint32(0), env.relay.Counters().Snapshot().PacketsSent)
}

func TestNotSupported(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/", "/nope", "/automotive/vcan0/candump", "/automotive"} {
		t.Run(path, func(t *testing.T) {
			var got notSupportedResponse
			assert.Equal(t, http.StatusNotFound, env.getJSON(t, path, &got))
			assert.Equal(t, "not supported", got.Status)
		})
	}

	resp, err := http.Post(env.srv.URL+"/status", "text/plain", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCBORNegotiation(t *testing.T) {
	env := newTestEnv(t)

	req, err := http.NewRequest(http.MethodGet, env.srv.URL+"/automotive/supported_buses", nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "application/cbor, application/json;q=0.5")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "application/cbor", resp.Header.Get("Content-Type"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var got []map[string]string
	require.NoError(t, cbor.Unmarshal(body, &got))
	assert.Equal(t, []map[string]string{{"bus_name": "vcan0"}, {"bus_name": "vcan1"}}, got)
}
