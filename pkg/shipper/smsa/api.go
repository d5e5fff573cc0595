package smsa

import (
	"context"
	"encoding/xml"
)

// APIClient defines the interface for the SMSA Express SECOM service.
type APIClient interface {
	// AddShip registers a shipment and returns its AWB number
	AddShip(ctx context.Context, req *AddShipRequest) (string, error)

	// GetPDF returns the label of an AWB
	GetPDF(ctx context.Context, awb, passkey string) ([]byte, error)

	// GetTracking returns the activity history of an AWB
	GetTracking(ctx context.Context, awb, passkey string) ([]TrackingEntry, error)

	// GetRTLCities lists the cities SMSA delivers to
	GetRTLCities(ctx context.Context, passkey string) ([]string, error)

	// GetAllRetails lists the SMSA retail outlets
	GetAllRetails(ctx context.Context, passkey string) ([]Retail, error)
}

// AddShipRequest is the argument list of addShip.
type AddShipRequest struct {
	XMLName      xml.Name `xml:"http://track.smsaexpress.com/secom/ addShip"`
	PassKey      string   `xml:"passKey"`
	RefNo        string   `xml:"refNo"`
	SentDate     string   `xml:"sentDate"`
	IDNo         string   `xml:"idNo"`
	CName        string   `xml:"cName"`
	Cntry        string   `xml:"cntry"`
	CCity        string   `xml:"cCity"`
	CZip         string   `xml:"cZip"`
	CPOBox       string   `xml:"cPOBox"`
	CMobile      string   `xml:"cMobile"`
	CTel1        string   `xml:"cTel1"`
	CTel2        string   `xml:"cTel2"`
	CAddr1       string   `xml:"cAddr1"`
	CAddr2       string   `xml:"cAddr2"`
	ShipType     string   `xml:"shipType"`
	PCs          int      `xml:"PCs"`
	CEmail       string   `xml:"cEmail"`
	CarrValue    string   `xml:"carrValue"`
	CarrCurr     string   `xml:"carrCurr"`
	CodAmt       string   `xml:"codAmt"`
	Weight       string   `xml:"weight"`
	CustVal      string   `xml:"custVal"`
	CustCurr     string   `xml:"custCurr"`
	InsrAmt      string   `xml:"insrAmt"`
	InsrCurr     string   `xml:"insrCurr"`
	ItemDesc     string   `xml:"itemDesc"`
	SName        string   `xml:"sName"`
	SContact     string   `xml:"sContact"`
	SAddr1       string   `xml:"sAddr1"`
	SAddr2       string   `xml:"sAddr2"`
	SCity        string   `xml:"sCity"`
	SPhone       string   `xml:"sPhone"`
	SCntry       string   `xml:"sCntry"`
	PrefDelvDate string   `xml:"prefDelvDate"`
	GPSPoints    string   `xml:"gpsPoints"`
	HarmCode     string   `xml:"harmCode"`
}

// TrackingEntry is one activity of an AWB.
type TrackingEntry struct {
	AWBNo    string `xml:"awbNo"`
	Date     string `xml:"Date"`
	Activity string `xml:"Activity"`
	Details  string `xml:"Details"`
	Location string `xml:"Location"`
}

// Retail is an SMSA outlet customers collect parcels from.
type Retail struct {
	Code      string `xml:"rCode"`
	City      string `xml:"rCity"`
	AddressEN string `xml:"rAddrEng"`
	AddressAR string `xml:"rAddrAr"`
	GPS       string `xml:"rGPSPt"`
	Phone     string `xml:"rPhone"`
}
