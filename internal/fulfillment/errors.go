package fulfillment

import "errors"

var (
	// ErrShipmentNotFound is returned when the shipment id is unknown.
	ErrShipmentNotFound = errors.New("shipment not found")

	// ErrAlreadySent is returned when the shipment already has a tracking number.
	ErrAlreadySent = errors.New("shipment already sent")

	// ErrNoEligibleCarrier is returned when no carrier accepts the shipment.
	ErrNoEligibleCarrier = errors.New("no eligible carrier")

	// ErrCarrierNotEligible is returned when the requested carrier is not
	// among the eligible ones.
	ErrCarrierNotEligible = errors.New("carrier not eligible")

	// ErrOrderLocked is returned when another dispatch of the order is running.
	ErrOrderLocked = errors.New("order is being dispatched")

	// ErrNotSent is returned for operations that need a carrier booking.
	ErrNotSent = errors.New("shipment not sent")

	// ErrUnknownDocument is returned for a document kind no carrier renders.
	ErrUnknownDocument = errors.New("unknown document kind")
)
