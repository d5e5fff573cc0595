package aramexsa

import (
	"context"
	"encoding/xml"
	"fmt"
)

// APIClient defines the interface for the Aramex Saudi InfoLink endpoint.
type APIClient interface {
	// SendShippingFile posts one InfoLink HAWB document
	SendShippingFile(ctx context.Context, doc *InfoLinkDocument) error
}

// ============================================================================
// InfoLink document (document type 215, version 1.00)
// ============================================================================

// InfoLinkDocument is the root of a shipping file.
type InfoLinkDocument struct {
	XMLName       xml.Name      `xml:"InfoLinkDocument"`
	AccessRequest AccessRequest `xml:"AccessRequest"`
	HAWB          HAWB          `xml:"HAWB"`
}

// AccessRequest authenticates the sending entity.
type AccessRequest struct {
	DocumentType      string `xml:"DocumentType"`
	EntityID          string `xml:"EntityID"`
	EntityPIN         string `xml:"EntityPIN"`
	Version           string `xml:"Version"`
	TimeStamp         string `xml:"TimeStamp"`
	ReplyEmailAddress string `xml:"ReplyEmailAddress"`
	Reference1        string `xml:"Reference1"`
	Reference2        string `xml:"Reference2"`
	Reference3        string `xml:"Reference3"`
	Reference4        string `xml:"Reference4"`
	Reference5        string `xml:"Reference5"`
}

// HAWB is one house airway bill.
type HAWB struct {
	HAWBNumber           string `xml:"HAWBNumber"`
	ForeignHAWBNumber    string `xml:"ForeignHAWBNumber"`
	HAWBOriginEntity     string `xml:"HAWBOriginEntity"`
	OriginLocationCode   string `xml:"OriginLocationCode"`
	ProductType          string `xml:"ProductType"`
	PickupDate           string `xml:"PickupDate"`
	Pieces               int    `xml:"Pieces"`
	HAWBWeight           string `xml:"HAWBWeight"`
	ChargeableWeight     string `xml:"ChargeableWeight"`
	HAWBWeightUnit       string `xml:"HAWBWeightUnit"`
	Cube                 string `xml:"Cube"`
	CubeUnit             string `xml:"CubeUnit"`
	HAWBProductGroup     string `xml:"HAWBProductGroup"`
	PaymentType          string `xml:"PaymentType"`
	CommodityCountryCode string `xml:"CommodityCountryCode"`
	CommodityDescription string `xml:"CommodityDescription"`
	CustomsAmount        string `xml:"CustomsAmount"`
	CustomsCurrencyCode  string `xml:"CustomsCurrencyCode"`

	ShipperName        string `xml:"ShipperName"`
	ShipperAddress     string `xml:"ShipperAddress"`
	ShipperNumber      string `xml:"ShipperNumber"`
	ShipperReference   string `xml:"ShipperReference"`
	ShipperReference2  string `xml:"ShipperReference2"`
	ShipperTelephone   string `xml:"ShipperTelephone"`
	ShipperCity        string `xml:"ShipperCity"`
	ShipperZipCode     string `xml:"ShipperZipCode"`
	ShipperCountry     string `xml:"ShipperCountry"`
	ShipperCountryCode string `xml:"ShipperCountryCode"`
	SentBy             string `xml:"SentBy"`

	ConsigneeName        string `xml:"ConsigneeName"`
	ConsigneeAddress     string `xml:"ConsigneeAddress"`
	ConsigneeCity        string `xml:"ConsigneeCity"`
	ConsigneeZipCode     string `xml:"ConsigneeZipCode"`
	ConsigneeCountryCode string `xml:"ConsigneeCountryCode"`
	ConsigneeTelephone   string `xml:"ConsigneeTelephone"`
	ConsTelephone2       string `xml:"ConsTelephone2"`
	ConsLatitude         string `xml:"ConsLatitude"`
	ConsLongitude        string `xml:"ConsLongitude"`
	ConsigneeEmail       string `xml:"ConsigneeEmail"`
	ConsigneeReference   string `xml:"ConsigneeReference"`
	ConsigneeReference2  string `xml:"ConsigneeReference2"`
	AttentionOf          string `xml:"AttentionOf"`

	HAWBThirdPartyEntity string               `xml:"HAWBThirdPartyEntity"`
	ThirdPartyNumber     string               `xml:"ThirdPartyNumber"`
	ThirdPartyReference  string               `xml:"ThirdPartyReference"`
	HAWBRemarks          string               `xml:"HAWBRemarks"`
	HAWBRef1             string               `xml:"HAWBRef1"`
	Services             string               `xml:"Services"`
	CODValue             string               `xml:"CODValue"`
	CODCurrencyCode      string               `xml:"CODCurrencyCode"`
	SourceID             string               `xml:"SourceId"`
	TransportType        string               `xml:"TransportType"`
	AdditionalProperties AdditionalProperties `xml:"AdditionalProperties"`
	Invoice              string               `xml:"Invoice"` // base64 waybill PDF

	Items []HAWBItem `xml:"HAWBItem"`
}

// AdditionalProperties carries customs clearance extras.
type AdditionalProperties struct {
	CustomsClearance CustomsClearance `xml:"CustomsClearance"`
}

// CustomsClearance carries the consignee tax id.
type CustomsClearance struct {
	ConsigneeTaxIDVATEINNumber string `xml:"ConsigneeTaxIDVATEINNumber"`
}

// HAWBItem is one shipped line.
type HAWBItem struct {
	ItemsPieces       int    `xml:"ItemsPieces"`
	WgtChargeable     string `xml:"Wgt_Chargeable"`
	CommodityNo       string `xml:"CommodityNo"`
	ItemsDescription  string `xml:"ItemsDescription"`
	ItemsCustomsValue string `xml:"ItemsCustomsValue"`
	ItemNumber        string `xml:"ItemNumber"`
	MarksAndNumbers   string `xml:"MarksAndNumbers"`
}

// APIError represents a rejected or failed InfoLink post.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return e.Message
	}
	return fmt.Sprintf("HTTP_%d: %s", e.StatusCode, e.Message)
}
