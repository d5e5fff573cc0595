package smsa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/tournevent/fulfillment/pkg/shipper/soap"
)

// Service endpoint. SMSA has no staging host; test traffic uses the
// shared test passkey.
const (
	ProductionURL = "http://example.url.com"

	namespace = "http://track.smsaexpress.com/secom/"
)

// SOAPAPIClient is the production implementation of APIClient using SOAP.
type SOAPAPIClient struct {
	soap *soap.Client
}

// SOAPAPIClientConfig holds configuration for the SOAP client.
type SOAPAPIClientConfig struct {
	URL     string
	Timeout time.Duration
}

// NewSOAPAPIClient creates a new SOAP-based API client for production use.
func NewSOAPAPIClient(cfg SOAPAPIClientConfig) *SOAPAPIClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}

	return &SOAPAPIClient{
		soap: soap.New(soap.Config{URL: cfg.URL, Namespace: namespace, Timeout: timeout}),
	}
}

type passkeyRequest struct {
	XMLName xml.Name
	Passkey string `xml:"passkey"`
}

type awbRequest struct {
	XMLName xml.Name
	AWBNo   string `xml:"awbNo"`
	Passkey string `xml:"passkey"`
}

// rawResult keeps the body of operations answering with embedded datasets.
type rawResult struct {
	Inner []byte `xml:",innerxml"`
}

type retailCity struct {
	City string `xml:"rCity"`
}

// AddShip registers a shipment.
func (c *SOAPAPIClient) AddShip(ctx context.Context, req *AddShipRequest) (string, error) {
	var resp struct {
		Result string `xml:"addShipResult"`
	}
	if err := c.soap.Call(ctx, "addShip", req, &resp); err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Result), nil
}

// GetPDF fetches the label of an AWB.
func (c *SOAPAPIClient) GetPDF(ctx context.Context, awb, passkey string) ([]byte, error) {
	var resp struct {
		Result string `xml:"getPDFResult"`
	}
	req := &awbRequest{XMLName: operation("getPDF"), AWBNo: awb, Passkey: passkey}
	if err := c.soap.Call(ctx, "getPDF", req, &resp); err != nil {
		return nil, err
	}
	pdf, err := base64.StdEncoding.DecodeString(strings.TrimSpace(resp.Result))
	if err != nil {
		return nil, fmt.Errorf("getPDF: decode label: %w", err)
	}
	if len(pdf) == 0 {
		return nil, errors.New("getPDF: empty label")
	}
	return pdf, nil
}

// GetTracking fetches the activities of an AWB.
func (c *SOAPAPIClient) GetTracking(ctx context.Context, awb, passkey string) ([]TrackingEntry, error) {
	var resp rawResult
	req := &awbRequest{XMLName: operation("getTracking"), AWBNo: awb, Passkey: passkey}
	if err := c.soap.Call(ctx, "getTracking", req, &resp); err != nil {
		return nil, err
	}
	return decodeAll[TrackingEntry](resp.Inner, "Tracking")
}

// GetRTLCities lists the retail cities.
func (c *SOAPAPIClient) GetRTLCities(ctx context.Context, passkey string) ([]string, error) {
	var resp rawResult
	req := &passkeyRequest{XMLName: operation("getRTLCities"), Passkey: passkey}
	if err := c.soap.Call(ctx, "getRTLCities", req, &resp); err != nil {
		return nil, err
	}
	rows, err := decodeAll[retailCity](resp.Inner, "RetailCities")
	if err != nil {
		return nil, err
	}
	cities := make([]string, 0, len(rows))
	for _, r := range rows {
		cities = append(cities, r.City)
	}
	return cities, nil
}

// GetAllRetails lists the retail outlets.
func (c *SOAPAPIClient) GetAllRetails(ctx context.Context, passkey string) ([]Retail, error) {
	var resp rawResult
	req := &passkeyRequest{XMLName: operation("getAllRetails"), Passkey: passkey}
	if err := c.soap.Call(ctx, "getAllRetails", req, &resp); err != nil {
		return nil, err
	}
	return decodeAll[Retail](resp.Inner, "RetailsList")
}

func operation(name string) xml.Name {
	return xml.Name{Space: namespace, Local: name}
}

// decodeAll decodes every element named local found anywhere in data.
func decodeAll[T any](data []byte, local string) ([]T, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var out []T
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", local, err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != local {
			continue
		}
		var v T
		if err := dec.DecodeElement(&v, &start); err != nil {
			return nil, fmt.Errorf("decode %s: %w", local, err)
		}
		out = append(out, v)
	}
}

// Ensure SOAPAPIClient implements APIClient interface
var _ APIClient = (*SOAPAPIClient)(nil)
