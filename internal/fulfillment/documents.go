package fulfillment

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/tournevent/fulfillment/internal/storage"
	"github.com/tournevent/fulfillment/pkg/shipper"
)

// Document returns a document of a sent shipment from the carrier that
// booked it: the label issued at send time or the rendered invoice.
func (d *Dispatcher) Document(ctx context.Context, shipmentID int64, kind shipper.DocumentKind) (*shipper.Document, error) {
	ctx, span := d.tracer.Start(ctx, "fulfillment.Document")
	defer span.End()
	span.SetAttributes(attribute.Int64("shipment_id", shipmentID), attribute.String("kind", string(kind)))

	if kind != shipper.DocumentShipping && kind != shipper.DocumentInvoice {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDocument, kind)
	}

	sh, err := d.deps.Store.Shipment(ctx, shipmentID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrShipmentNotFound, shipmentID)
	}
	if err != nil {
		return nil, fmt.Errorf("load shipment %d: %w", shipmentID, err)
	}
	if sh.Carrier == "" || sh.TrackingNumber == "" {
		return nil, fmt.Errorf("%w: %d", ErrNotSent, shipmentID)
	}

	c, err := d.deps.Registry.Get(sh.Carrier)
	if err != nil {
		return nil, err
	}

	var doc *shipper.Document
	if kind == shipper.DocumentShipping {
		doc, err = c.CreateShippingDocument(ctx, sh)
	} else {
		doc, err = c.CreateInvoiceDocument(ctx, sh)
	}
	if err != nil {
		span.RecordError(err)
		d.logger.Ctx(ctx).Warn("Document unavailable",
			zap.Int64("shipment_id", shipmentID),
			zap.String("carrier", sh.Carrier),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		return nil, err
	}
	return doc, nil
}
