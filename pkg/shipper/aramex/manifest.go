package aramex

import (
	"bytes"
	"encoding/csv"
	"strconv"

	"github.com/tournevent/fulfillment/pkg/shipper"
)

var manifestHeader = []string{
	"AWB", "Reference", "ShipperAccount", "ProductGroup", "ProductType",
	"ConsigneeName", "ConsigneeAddress", "ConsigneeCity", "ConsigneeCountry",
	"ConsigneePostCode", "ConsigneePhone", "ConsigneeEmail",
	"Pieces", "Quantity", "CustomsValue", "Currency", "CODAmount", "Description",
}

// buildManifest writes the one-shipment manifest Aramex imports.
func buildManifest(shipment *shipper.Shipment, number string, settings shipper.ChannelSettings) ([]byte, error) {
	order := shipment.Order
	addr := order.ShippingAddress

	cod := ""
	if order.IsCOD && shipment.CODAmount > 0 {
		cod = money(shipment.CODAmount)
	}

	row := []string{
		number,
		order.Code,
		settings.String("account_number"),
		settings.String("product_group"),
		settings.String("product_type"),
		addr.FullName,
		joinNonEmpty(", ", addr.District, addr.Address),
		addr.City,
		addr.Country,
		addr.Postcode,
		addr.Phone,
		order.Email,
		strconv.Itoa(shipment.BoxQty),
		strconv.Itoa(shipment.ShippedQuantity()),
		money(shipment.DeclaredValue),
		order.Currency,
		cod,
		settings.String("goods_description"),
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(manifestHeader); err != nil {
		return nil, err
	}
	if err := w.Write(row); err != nil {
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
