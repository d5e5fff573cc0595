package shipper

import "context"

// Waybill variants understood by the document service.
const (
	VariantBase            = "base"
	VariantEnigmo          = "enigmo"
	VariantEgypt           = "eg"
	VariantSaudi           = "sa"
	VariantEmirates        = "ae"
	VariantClickAndCollect = "click_and_collect"
)

// enigmo orders are resold by a partner and carry the partner's waybill.
const enigmoChannel = "enigmo"

// DocumentRenderer renders shipping documents. Rendering itself lives in an
// external service; carriers only choose the template and variant.
type DocumentRenderer interface {
	Render(ctx context.Context, kind DocumentKind, variant string, shipment *Shipment) (*Document, error)
}

// WaybillVariant picks the waybill layout for a shipment.
func WaybillVariant(shipment *Shipment) string {
	if shipment.Channel() == enigmoChannel {
		return VariantEnigmo
	}
	switch shipment.Country() {
	case "EG":
		return VariantEgypt
	case "SA":
		return VariantSaudi
	case "AE":
		return VariantEmirates
	}
	return VariantBase
}
