package naqel

import (
	"context"
	"time"

	"github.com/tournevent/fulfillment/pkg/shipper/soap"
)

// Service endpoints.
const (
	ProductionURL = "https://live-example.url.com"
	StagingURL    = "https://example.url.com"

	namespace = "http://tempuri.org/"
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

// UpdateWaybill uploads a manifest.
func (c *SOAPAPIClient) UpdateWaybill(ctx context.Context, manifest *ManifestShipmentDetails, waybillNo string) (*UpdateWaybillResult, error) {
	var resp updateWaybillResponse
	req := &updateWaybillRequest{Manifest: manifest, WaybillNo: waybillNo}
	if err := c.soap.Call(ctx, "UpdateWaybill", req, &resp); err != nil {
		return nil, err
	}
	return &resp.Result, nil
}

// TraceByMultiWaybillNo fetches the activities of several waybills.
func (c *SOAPAPIClient) TraceByMultiWaybillNo(ctx context.Context, client ClientInformation, waybills []int64) ([]Tracking, error) {
	var resp traceByMultiWaybillNoResponse
	req := &traceByMultiWaybillNoRequest{ClientInfo: client, WaybillNo: waybills}
	if err := c.soap.Call(ctx, "TraceByMultiWaybillNo", req, &resp); err != nil {
		return nil, err
	}
	return resp.Trackings, nil
}

// Ensure SOAPAPIClient implements APIClient interface
var _ APIClient = (*SOAPAPIClient)(nil)
