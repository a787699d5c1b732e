package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/notnil/canrelay/relay"
)

// Identity reported by /status.
const (
	Version         = "0.1.0"
	APIVersion      = "0.0.3"
	HardwareVersion = "0.0.1"
	DeviceName      = "Go CANRelay"
)

type statusResponse struct {
	Operational    uint8          `json:"operational"`
	HWSpecialty    hwSpecialty    `json:"hw_specialty"`
	HWCapabilities hwCapabilities `json:"hw_capabilities"`
	APIVersion     string         `json:"api_version"`
	FWVersion      string         `json:"fw_version"`
	HWVersion      string         `json:"hw_version"`
	DeviceName     string         `json:"device_name"`
}

type hwSpecialty struct {
	Automotive bool `json:"automotive"`
}

type hwCapabilities struct {
	CAN bool `json:"can"`
}

type statsResponse struct {
	Uptime      int64            `json:"uptime"`
	PacketStats uint32           `json:"packet_stats"`
	LastRequest *int64           `json:"last_request"`
	Voltage     float32          `json:"voltage"`
	BusStats    map[string]int64 `json:"bus_stats"`
}

type datetimeResponse struct {
	SystemDatetime int64 `json:"system_datetime"`
}

type timezoneResponse struct {
	SystemTimezone string `json:"system_timezone"`
}

type busName struct {
	BusName string `json:"bus_name"`
}

type successResponse struct {
	Success bool `json:"success"`
}

type packetsResponse struct {
	Success bool           `json:"success"`
	Packets []relay.Packet `json:"packets"`
}

type notSupportedResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, statusResponse{
		Operational:    1,
		HWSpecialty:    hwSpecialty{Automotive: true},
		HWCapabilities: hwCapabilities{CAN: true},
		APIVersion:     APIVersion,
		FWVersion:      Version,
		HWVersion:      HardwareVersion,
		DeviceName:     DeviceName,
	})
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	st := s.counters.Snapshot()
	resp := statsResponse{
		Uptime:      int64(st.Uptime / time.Second),
		PacketStats: st.PacketsSent,
		BusStats:    st.PerBus,
	}
	if st.LastPacketSent != nil {
		ts := st.LastPacketSent.Unix()
		resp.LastRequest = &ts
	}
	s.render(w, r, http.StatusOK, resp)
}

func (s *Server) handleDatetime(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, datetimeResponse{SystemDatetime: s.now().Unix()})
}

func (s *Server) handleTimezone(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, timezoneResponse{SystemTimezone: s.now().Format("MST")})
}

func (s *Server) handleSupportedBuses(w http.ResponseWriter, r *http.Request) {
	buses := s.counters.Buses()
	resp := make([]busName, len(buses))
	for i, b := range buses {
		resp[i] = busName{BusName: b}
	}
	s.render(w, r, http.StatusOK, resp)
}

func (s *Server) handleCansend(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res := s.relay.Send(r.Context(), relay.SendRequest{
		Bus:  r.PathValue("bus"),
		ID:   q.Get("id"),
		Data: q.Get("data"),
	})
	s.render(w, r, http.StatusOK, successResponse{Success: res.Success})
}

func (s *Server) handleIsotpSendAndWait(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := relay.WaitRequest{
		Bus:     r.PathValue("bus"),
		SrcID:   q.Get("srcid"),
		DstID:   q.Get("dstid"),
		Data:    q.Get("data"),
		Padding: q.Get("padding"),
	}

	var err error
	if req.Timeout, err = parseMillis(q.Get("timeout")); err == nil {
		req.MaxPackets, err = parseCount(q.Get("maxpkts"))
	}
	if err != nil {
		s.logger.Warn("isotpsend_and_wait rejected", "bus", req.Bus, "query", r.URL.RawQuery, "error", err)
		s.render(w, r, http.StatusOK, packetsResponse{Packets: []relay.Packet{}})
		return
	}

	res := s.relay.SendAndWait(r.Context(), req)
	s.render(w, r, http.StatusOK, packetsResponse{Success: res.Success, Packets: res.Packets})
}

func (s *Server) handleNotSupported(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusNotFound, notSupportedResponse{Status: "not supported"})
}

// parseMillis parses an optional unsigned millisecond count.
func parseMillis(v string) (*time.Duration, error) {
	if v == "" {
		return nil, nil
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: timeout %q", relay.ErrDecode, v)
	}
	d := time.Duration(n) * time.Millisecond
	return &d, nil
}

// parseCount parses an optional unsigned packet count.
func parseCount(v string) (*int, error) {
	if v == "" {
		return nil, nil
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: maxpkts %q", relay.ErrDecode, v)
	}
	c := int(n)
	return &c, nil
}
