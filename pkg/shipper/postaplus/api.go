package postaplus

import (
	"context"
	"encoding/xml"
	"fmt"
)

// APIClient defines the interface for the PostaPlus SOAP service.
type APIClient interface {
	// SpecialShipmentPackage registers a pre-allocated waybill and echoes its number
	SpecialShipmentPackage(ctx context.Context, info *ShipInfo) (string, error)

	// ShipmentTracking returns the history of one waybill, newest first
	ShipmentTracking(ctx context.Context, req *TrackingQuery) ([]TrackShipment, error)
}

// ============================================================================
// Shipment types
// ============================================================================

// ShipInfo is the SHIPINFO argument of Special_Shipment_Package.
type ShipInfo struct {
	CashOnDelivery         string                `xml:"CashOnDelivery,omitempty"`
	CashOnDeliveryCurrency string                `xml:"CashOnDeliveryCurrency,omitempty"`
	ClientInfo             ClientInfo            `xml:"ClientInfo"`
	CodeCurrency           string                `xml:"CodeCurrency"`
	CodeService            string                `xml:"CodeService"`
	CodeShippmentType      string                `xml:"CodeShippmentType"`
	ConnoteContact         ConnoteContact        `xml:"ConnoteContact"`
	ConnoteDescription     string                `xml:"ConnoteDescription"`
	ConnotePerformaInvoice []ConnotePerformaItem `xml:"ConnotePerformaInvoice>CONNOTEPERMINV"`
	ConnotePieces          int                   `xml:"ConnotePieces"`
	ConnoteProhibited      string                `xml:"ConnoteProhibited"`
	ConnoteRef             ConnoteRef            `xml:"ConnoteRef"`
	Consignee              Consignee             `xml:"Consignee"`
	CostShipment           string                `xml:"CostShipment"`
	ItemDetails            []ItemDetail          `xml:"ItemDetails>ITEMDETAILS"`
	WayBill                int64                 `xml:"WayBill"`
}

// ClientInfo authenticates the shipper account.
type ClientInfo struct {
	ShipperAccount string `xml:"ShipperAccount"`
	UserName       string `xml:"UserName"`
	Password       string `xml:"Password"`
	CodeStation    string `xml:"CodeStation"`
}

// ConnoteContact is the shipper's contact.
type ConnoteContact struct {
	Email1    string `xml:"Email1"`
	TelMobile string `xml:"TelMobile"`
}

// ConnotePerformaItem is one proforma invoice line.
type ConnotePerformaItem struct {
	CodeHS          string `xml:"CodeHS"`
	CodePackageType string `xml:"CodePackageType"`
	Description     string `xml:"Description"`
	OrginCountry    string `xml:"OrginCountry"`
	Quantity        int    `xml:"Quantity"`
	RateUnit        string `xml:"RateUnit"`
}

// ConnoteRef carries the merchant references.
type ConnoteRef struct {
	Reference1 string `xml:"Reference1"`
}

// Consignee holds both the sender and the receiver.
type Consignee struct {
	Company         string `xml:"Company"`
	FromName        string `xml:"FromName"`
	FromAddress     string `xml:"FromAddress"`
	FromCity        string `xml:"FromCity"`
	FromCodeCountry string `xml:"FromCodeCountry"`
	FromTelphone    string `xml:"FromTelphone"`
	FromMobile      string `xml:"FromMobile"`
	FromArea        string `xml:"FromArea"`
	FromPinCode     string `xml:"FromPinCode"`
	FromProvince    string `xml:"FromProvince"`
	ToName          string `xml:"ToName"`
	ToAddress       string `xml:"ToAddress"`
	ToCity          string `xml:"ToCity"`
	ToCodeCountry   string `xml:"ToCodeCountry"`
	ToMobile        string `xml:"ToMobile"`
	ToTelPhone      string `xml:"ToTelPhone"`
	ToArea          string `xml:"ToArea"`
	ToPinCode       string `xml:"ToPinCode"`
	ToProvince      string `xml:"ToProvince"`
	ToCodeSector    string `xml:"ToCodeSector"`
	ToDesignation   string `xml:"ToDesignation"`
}

// ItemDetail is the size of one box.
type ItemDetail struct {
	ConnoteHeight int    `xml:"ConnoteHeight"`
	ConnoteLength int    `xml:"ConnoteLength"`
	ConnoteWeight string `xml:"ConnoteWeight"`
	ConnoteWidth  int    `xml:"ConnoteWidth"`
	ScaleWeight   string `xml:"ScaleWeight"`
}

type specialShipmentPackageRequest struct {
	XMLName  xml.Name  `xml:"http://tempuri.org/ Special_Shipment_Package"`
	ShipInfo *ShipInfo `xml:"SHIPINFO"`
}

type specialShipmentPackageResponse struct {
	Result string `xml:"Special_Shipment_PackageResult"`
}

// ============================================================================
// Tracking types
// ============================================================================

// TrackingQuery is the argument list of Shipment_Tracking.
type TrackingQuery struct {
	XMLName          xml.Name `xml:"http://tempuri.org/ Shipment_Tracking"`
	UserName         string   `xml:"UserName"`
	Password         string   `xml:"Password"`
	ShipperAccount   string   `xml:"ShipperAccount"`
	AirwaybillNumber string   `xml:"AirwaybillNumber"`
	Reference1       string   `xml:"Reference1"`
	Reference2       string   `xml:"Reference2"`
}

// TrackShipment is one tracking entry.
type TrackShipment struct {
	Event    string `xml:"Event"`
	DateTime string `xml:"DateTime"`
	Note     string `xml:"Note"`
	ErrorMsg string `xml:"ErrorMsg"`
}

type shipmentTrackingResponse struct {
	Entries []TrackShipment `xml:"Shipment_TrackingResult>TRACKSHIPMENT"`
}

// ValidationError is a local check that failed before calling PostaPlus.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}
