package relay

import (
	"context"
	"fmt"
)

// SendRequest transmits one frame with a raw payload.
type SendRequest struct {
	Bus  string
	ID   string // hexadecimal identifier
	Data string // hexadecimal payload
}

// SendResult reports the outcome of a SendRequest. Err carries the cause of a
// failure for logging; it is not part of the wire response.
type SendResult struct {
	Success bool
	Err     error
}

// Send transmits one frame on the named bus. The counters are updated only
// after the frame was accepted by the driver.
func (r *Relay) Send(ctx context.Context, req SendRequest) SendResult {
	err := r.send(ctx, req)
	if err != nil {
		r.logger.Warn("cansend failed", "bus", req.Bus, "id", req.ID, "data", req.Data, "error", err)
		return SendResult{Err: err}
	}
	r.recordSent(req.Bus)
	r.logger.Debug("cansend", "bus", req.Bus, "id", req.ID, "data", req.Data)
	return SendResult{Success: true}
}

func (r *Relay) send(ctx context.Context, req SendRequest) error {
	id, err := ParseID(req.ID)
	if err != nil {
		return err
	}
	payload, err := DecodePayload(req.Data)
	if err != nil {
		return err
	}
	frame, err := newFrame(id, payload)
	if err != nil {
		return err
	}

	bus, err := r.open(req.Bus)
	if err != nil {
		return err
	}
	defer bus.Close()

	if err := bus.Send(ctx, frame); err != nil {
		return fmt.Errorf("%w: %v", ErrTransmit, err)
	}
	return nil
}
