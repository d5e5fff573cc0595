// Package soap is a minimal SOAP 1.1 transport shared by the carriers that
// still publish WSDL services. Bodies are encoded with encoding/xml and
// wrapped in a fixed envelope.
package soap

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/template"
	"time"
)

const envelopeTemplate = `<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xmlns:xsd="http://www.w3.org/2001/XMLSchema">
  <soap:Body>
    {{.Body}}
  </soap:Body>
</soap:Envelope>`

var envelope = template.Must(template.New("envelope").Parse(envelopeTemplate))

// Config holds configuration for a SOAP endpoint.
type Config struct {
	URL       string
	Namespace string // prefix of the SOAPAction header, e.g. "http://tempuri.org/"
	Timeout   time.Duration
	Transport http.RoundTripper // nil uses http.DefaultTransport
}

// Client posts SOAP requests to one endpoint.
type Client struct {
	url        string
	namespace  string
	httpClient *http.Client
}

// New creates a SOAP client. A zero timeout means 30 seconds.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		url:       cfg.URL,
		namespace: cfg.Namespace,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: cfg.Transport,
		},
	}
}

// Fault is a SOAP fault returned by the service.
type Fault struct {
	Code   string `xml:"faultcode"`
	String string `xml:"faultstring"`
}

func (f *Fault) Error() string {
	return fmt.Sprintf("soap fault %s: %s", f.Code, f.String)
}

// StatusError is returned for a non-200 answer that carries no fault.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP_%d: %s", e.StatusCode, e.Body)
}

type responseEnvelope struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    struct {
		Fault   *Fault `xml:"Fault"`
		Content []byte `xml:",innerxml"`
	} `xml:"Body"`
}

// Call sends request as the body of action and decodes the body of the
// answer into response. A nil response discards the answer.
func (c *Client) Call(ctx context.Context, action string, request, response any) error {
	payload, err := Build(request)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", `"`+c.namespace+action+`"`)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %w", action, err)
	}

	var env responseEnvelope
	parseErr := xml.Unmarshal(data, &env)
	if parseErr == nil && env.Body.Fault != nil {
		return env.Body.Fault
	}
	if resp.StatusCode != http.StatusOK {
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if parseErr != nil {
		return fmt.Errorf("%s: failed to parse response: %w", action, parseErr)
	}

	if response == nil {
		return nil
	}
	if err := xml.Unmarshal(env.Body.Content, response); err != nil {
		return fmt.Errorf("%s: failed to decode body: %w", action, err)
	}
	return nil
}

// Build wraps the XML encoding of body in a SOAP envelope.
func Build(body any) ([]byte, error) {
	inner, err := xml.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal body: %w", err)
	}

	var buf bytes.Buffer
	if err := envelope.Execute(&buf, struct{ Body string }{Body: string(inner)}); err != nil {
		return nil, fmt.Errorf("failed to build envelope: %w", err)
	}
	return buf.Bytes(), nil
}
