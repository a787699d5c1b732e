package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/notnil/canrelay/canbus"
)

// WaitRequest transmits one ISO-TP single frame from SrcID and collects the
// frames that answer on DstID.
type WaitRequest struct {
	Bus   string
	SrcID string // hexadecimal transmit identifier
	DstID string // hexadecimal response identifier
	Data  string // hexadecimal payload, before length prefixing

	// Optional; nil selects the relay default. Values above the relay limits
	// are clamped.
	Timeout    *time.Duration
	MaxPackets *int
	// Padding is an optional hexadecimal fill byte.
	Padding string
}

// WaitResult reports the outcome of a WaitRequest. Packets may be populated
// even when Success is false (a failed filter reset after collection).
type WaitResult struct {
	Success bool
	Packets []Packet
	Err     error
}

type waitPlan struct {
	frame      canbus.Frame
	dstID      uint32
	timeout    time.Duration
	maxPackets int
	truncated  bool
}

// SendAndWait transmits one single frame and collects up to MaxPackets
// responses within Timeout of the transmission. The receive filter installed
// for the response identifier is always reset before the handle is closed.
//
// Cancellation of ctx does not cut the collection short; only the count and
// time bounds end it.
func (r *Relay) SendAndWait(ctx context.Context, req WaitRequest) WaitResult {
	res := r.sendAndWait(context.WithoutCancel(ctx), req)
	if res.Err != nil {
		r.logger.Warn("isotpsend_and_wait failed",
			"bus", req.Bus, "srcid", req.SrcID, "dstid", req.DstID, "data", req.Data,
			"packets", len(res.Packets), "error", res.Err)
	} else {
		r.logger.Debug("isotpsend_and_wait",
			"bus", req.Bus, "srcid", req.SrcID, "dstid", req.DstID, "data", req.Data,
			"packets", len(res.Packets))
	}
	return res
}

func (r *Relay) sendAndWait(ctx context.Context, req WaitRequest) (res WaitResult) {
	res.Packets = []Packet{}

	plan, err := r.planWait(req)
	if err != nil {
		res.Err = err
		return res
	}
	if plan.truncated {
		r.logger.Debug("payload truncated to single frame", "bus", req.Bus, "data", req.Data)
	}

	bus, err := r.open(req.Bus)
	if err != nil {
		res.Err = err
		return res
	}

	// The accept-all reset runs on every exit once a filter install was attempted.
	defer func() {
		if err := bus.ClearFilter(); err != nil {
			res.Success = false
			res.Err = errors.Join(res.Err, fmt.Errorf("%w: %v", ErrFilterReset, err))
		}
		_ = bus.Close()
	}()

	if err := bus.SetFilter(plan.dstID, IsoTPFilterMask); err != nil {
		res.Err = fmt.Errorf("%w: %v", ErrFilter, err)
		return res
	}

	if err := bus.Send(ctx, plan.frame); err != nil {
		res.Err = fmt.Errorf("%w: %v", ErrTransmit, err)
		return res
	}
	sent := time.Now()
	r.recordSent(req.Bus)

	accept := canbus.ByMask(plan.dstID, IsoTPFilterMask)
	res.Packets, res.Err = collect(ctx, bus, accept, sent, plan.timeout, plan.maxPackets)
	res.Success = res.Err == nil
	return res
}

// planWait decodes and validates everything a wait needs before the bus is
// touched.
func (r *Relay) planWait(req WaitRequest) (waitPlan, error) {
	var plan waitPlan

	srcID, err := ParseID(req.SrcID)
	if err != nil {
		return plan, err
	}
	if plan.dstID, err = ParseID(req.DstID); err != nil {
		return plan, err
	}
	if plan.dstID > canbus.MaxStdID {
		return plan, fmt.Errorf("%w: response identifier 0x%X exceeds 0x%X", ErrFrameBuild, plan.dstID, canbus.MaxStdID)
	}
	payload, err := DecodePayload(req.Data)
	if err != nil {
		return plan, err
	}
	padding, err := ParsePadding(req.Padding)
	if err != nil {
		return plan, err
	}
	if plan.timeout, err = r.clampTimeout(req.Timeout); err != nil {
		return plan, err
	}
	if plan.maxPackets, err = r.clampMaxPackets(req.MaxPackets); err != nil {
		return plan, err
	}

	data, err := BuildSingleFrame(payload, padding)
	if err != nil {
		return plan, err
	}
	plan.truncated = Truncated(payload)
	if plan.frame, err = newFrame(srcID, data); err != nil {
		return plan, err
	}
	return plan, nil
}

func (r *Relay) clampTimeout(d *time.Duration) (time.Duration, error) {
	switch {
	case d == nil:
		return r.cfg.defaultTimeout, nil
	case *d < 0:
		return 0, fmt.Errorf("%w: negative timeout %s", ErrDecode, *d)
	case *d > r.cfg.maxTimeout:
		return r.cfg.maxTimeout, nil
	default:
		return *d, nil
	}
}

func (r *Relay) clampMaxPackets(n *int) (int, error) {
	switch {
	case n == nil:
		return r.cfg.defaultMaxPackets, nil
	case *n < 0:
		return 0, fmt.Errorf("%w: negative maxpkts %d", ErrDecode, *n)
	case *n > r.cfg.maxPackets:
		return r.cfg.maxPackets, nil
	default:
		return *n, nil
	}
}

// collect reads frames until maxPackets accepted frames have arrived or
// timeout has elapsed since sent. The remaining budget is measured on the
// monotonic clock before every read. Frames queued before the bus filter took
// effect are dropped by accept. Read timeouts only advance to the next bound
// check; any other read error ends collection and is returned with the frames
// gathered so far.
func collect(ctx context.Context, bus canbus.Bus, accept canbus.FrameFilter, sent time.Time, timeout time.Duration, maxPackets int) ([]Packet, error) {
	packets := make([]Packet, 0, min(maxPackets, DefaultPacketLimit))
	for len(packets) < maxPackets {
		remaining := timeout - time.Since(sent)
		if remaining <= 0 {
			break
		}
		rctx, cancel := context.WithTimeout(ctx, remaining)
		f, err := bus.Receive(rctx)
		cancel()
		if err != nil {
			if canbus.IsTimeout(err) {
				continue
			}
			return packets, fmt.Errorf("%w: %v", ErrReceive, err)
		}
		if !accept(f) {
			continue
		}
		packets = append(packets, EncodeFrame(f))
	}
	return packets, nil
}
