package shipper

import (
	"context"
	"fmt"
)

// HasNumbers reports whether the pool of carrier/group still holds a tracking number.
func HasNumbers(ctx context.Context, numbers NumberCounter, carrier, group string) (bool, error) {
	if numbers == nil {
		return false, fmt.Errorf("%s: no tracking number pool configured", carrier)
	}
	n, err := numbers.Available(ctx, carrier, group)
	if err != nil {
		return false, fmt.Errorf("%s: count tracking numbers: %w", carrier, err)
	}
	return n > 0, nil
}

// TakeNumber draws a tracking number for a send, mapping exhaustion to a fatal error.
func TakeNumber(ctx context.Context, req *SendRequest, carrier, group string) (string, error) {
	if req.Numbers == nil {
		return "", Fatal(carrier, "NO_POOL", "no tracking number pool bound to the send").WithCause(ErrNumberPoolExhausted)
	}
	number, err := req.Numbers.Take(ctx, carrier, group)
	if err != nil {
		return "", Fatal(carrier, "NO_TRACKING_NUMBER", "cannot take tracking number").WithCause(err)
	}
	return number, nil
}
