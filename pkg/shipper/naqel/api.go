package naqel

import (
	"context"
	"encoding/xml"
	"fmt"
)

// APIClient defines the interface for the Naqel Express SOAP service.
type APIClient interface {
	// UpdateWaybill uploads the manifest of a pre-allocated waybill
	UpdateWaybill(ctx context.Context, manifest *ManifestShipmentDetails, waybillNo string) (*UpdateWaybillResult, error)

	// TraceByMultiWaybillNo returns the activity history of several waybills
	TraceByMultiWaybillNo(ctx context.Context, client ClientInformation, waybills []int64) ([]Tracking, error)
}

// ============================================================================
// Request types
// ============================================================================

// ClientInformation authenticates every call.
type ClientInformation struct {
	ClientID      string        `xml:"ClientID"`
	Password      string        `xml:"Password"`
	Version       string        `xml:"Version"`
	ClientAddress ClientAddress `xml:"ClientAddress"`
	ClientContact ClientContact `xml:"ClientContact"`
}

// ClientAddress is the shipper's address.
type ClientAddress struct {
	PhoneNumber  string `xml:"PhoneNumber"`
	FirstAddress string `xml:"FirstAddress"`
	CountryCode  string `xml:"CountryCode"`
	CityCode     string `xml:"CityCode"`
}

// ClientContact is the shipper's contact person.
type ClientContact struct {
	Name        string `xml:"Name"`
	Email       string `xml:"Email"`
	PhoneNumber string `xml:"PhoneNumber"`
}

// ManifestShipmentDetails describes one waybill.
type ManifestShipmentDetails struct {
	ClientInfo                 ClientInformation    `xml:"ClientInfo"`
	ConsigneeInfo              ConsigneeInformation `xml:"ConsigneeInfo"`
	CommercialInvoice          CommercialInvoice    `xml:"_CommercialInvoice"`
	Latitude                   string               `xml:"Latitude,omitempty"`
	Longitude                  string               `xml:"Longitude,omitempty"`
	BillingType                int                  `xml:"BillingType"`
	PicesCount                 int                  `xml:"PicesCount"`
	Weight                     string               `xml:"Weight"`
	CODCharge                  string               `xml:"CODCharge"`
	LoadTypeID                 int                  `xml:"LoadTypeID"`
	DeclareValue               string               `xml:"DeclareValue"`
	GoodDesc                   string               `xml:"GoodDesc"`
	RefNo                      string               `xml:"RefNo"`
	GeneratePiecesBarCodes     bool                 `xml:"GeneratePiecesBarCodes"`
	CreateBooking              bool                 `xml:"CreateBooking"`
	CurrenyID                  int                  `xml:"CurrenyID"`
	IsCustomDutyPayByConsignee *bool                `xml:"IsCustomDutyPayByConsignee,omitempty"`
}

// ConsigneeInformation is the receiver of a waybill.
type ConsigneeInformation struct {
	ConsigneeName       string `xml:"ConsigneeName"`
	Email               string `xml:"Email"`
	PhoneNumber         string `xml:"PhoneNumber"`
	Mobile              string `xml:"Mobile,omitempty"`
	Address             string `xml:"Address"`
	CountryCode         string `xml:"CountryCode"`
	CityCode            string `xml:"CityCode"`
	ConsigneeNationalID string `xml:"ConsigneeNationalID"`
}

// CommercialInvoice is attached to international waybills.
type CommercialInvoice struct {
	Details          []CommercialInvoiceDetail `xml:"CommercialInvoiceDetailList>CommercialInvoiceDetail"`
	RefNo            string                    `xml:"RefNo"`
	InvoiceNo        string                    `xml:"InvoiceNo"`
	InvoiceDate      string                    `xml:"InvoiceDate"`
	Consignee        string                    `xml:"Consignee"`
	ConsigneeAddress string                    `xml:"ConsigneeAddress"`
	ConsigneeEmail   string                    `xml:"ConsigneeEmail"`
	MobileNo         string                    `xml:"MobileNo,omitempty"`
	Phone            string                    `xml:"Phone"`
	TotalCost        string                    `xml:"TotalCost"`
	CurrencyCode     string                    `xml:"CurrencyCode"`
}

// CommercialInvoiceDetail is one invoice line.
type CommercialInvoiceDetail struct {
	Quantity             int    `xml:"Quantity"`
	UnitType             string `xml:"UnitType"`
	CountryofManufacture string `xml:"CountryofManufacture"`
	Description          string `xml:"Description"`
	UnitCost             string `xml:"UnitCost"`
	CustomsCommodityCode string `xml:"CustomsCommodityCode"`
	Currency             string `xml:"Currency"`
}

type updateWaybillRequest struct {
	XMLName   xml.Name                 `xml:"http://tempuri.org/ UpdateWaybill"`
	Manifest  *ManifestShipmentDetails `xml:"_ManifestShipmentDetails"`
	WaybillNo string                   `xml:"WaybillNo"`
}

type traceByMultiWaybillNoRequest struct {
	XMLName    xml.Name          `xml:"http://tempuri.org/ TraceByMultiWaybillNo"`
	ClientInfo ClientInformation `xml:"ClientInfo"`
	WaybillNo  []int64           `xml:"WaybillNo>int"`
}

// ============================================================================
// Response types
// ============================================================================

// UpdateWaybillResult is the answer to UpdateWaybill.
type UpdateWaybillResult struct {
	HasError  bool   `xml:"HasError"`
	Message   string `xml:"Message"`
	WaybillNo string `xml:"WaybillNo"`
}

type updateWaybillResponse struct {
	Result UpdateWaybillResult `xml:"UpdateWaybillResult"`
}

// Tracking is one activity of a waybill.
type Tracking struct {
	WaybillNo    int64  `xml:"WaybillNo"`
	ActivityCode int    `xml:"ActivityCode"`
	Activity     string `xml:"Activity"`
	Date         string `xml:"Date"`
	HasError     bool   `xml:"HasError"`
	ErrorMessage string `xml:"ErrorMessage"`
}

type traceByMultiWaybillNoResponse struct {
	Trackings []Tracking `xml:"TraceByMultiWaybillNoResult>Tracking"`
}

// APIError represents an error reported by Naqel.
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
