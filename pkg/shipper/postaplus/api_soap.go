package postaplus

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/tournevent/fulfillment/pkg/shipper/soap"
)

// Service endpoints.
const (
	ProductionURL = "https://example.url.com"
	StagingURL    = "https://live-example.url.com"

	namespace = "http://tempuri.org/"
)

// SOAPAPIClient is the production implementation of APIClient using SOAP.
type SOAPAPIClient struct {
	soap             *soap.Client
	operationTimeout time.Duration
}

// SOAPAPIClientConfig holds configuration for the SOAP client.
type SOAPAPIClientConfig struct {
	URL              string
	Timeout          time.Duration
	OperationTimeout time.Duration
	CAFile           string // pinned certificate of the production endpoint
}

// NewSOAPAPIClient creates a new SOAP-based API client for production use.
func NewSOAPAPIClient(cfg SOAPAPIClientConfig) (*SOAPAPIClient, error) {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 180 * time.Second
	}
	opTimeout := cfg.OperationTimeout
	if opTimeout == 0 {
		opTimeout = 60 * time.Second
	}

	var transport http.RoundTripper
	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read postaplus certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificate found in %s", cfg.CAFile)
		}
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.TLSClientConfig = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
		transport = t
	}

	return &SOAPAPIClient{
		soap: soap.New(soap.Config{
			URL:       cfg.URL,
			Namespace: namespace,
			Timeout:   timeout,
			Transport: transport,
		}),
		operationTimeout: opTimeout,
	}, nil
}

// SpecialShipmentPackage registers a shipment.
func (c *SOAPAPIClient) SpecialShipmentPackage(ctx context.Context, info *ShipInfo) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.operationTimeout)
	defer cancel()

	var resp specialShipmentPackageResponse
	if err := c.soap.Call(ctx, "Special_Shipment_Package", &specialShipmentPackageRequest{ShipInfo: info}, &resp); err != nil {
		return "", err
	}
	return resp.Result, nil
}

// ShipmentTracking fetches the history of one waybill.
func (c *SOAPAPIClient) ShipmentTracking(ctx context.Context, req *TrackingQuery) ([]TrackShipment, error) {
	ctx, cancel := context.WithTimeout(ctx, c.operationTimeout)
	defer cancel()

	var resp shipmentTrackingResponse
	if err := c.soap.Call(ctx, "Shipment_Tracking", req, &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// Ensure SOAPAPIClient implements APIClient interface
var _ APIClient = (*SOAPAPIClient)(nil)
