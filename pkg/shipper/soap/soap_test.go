package soap_test

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/fulfillment/pkg/shipper/soap"
)

type echoRequest struct {
	XMLName xml.Name `xml:"http://tempuri.org/ Echo"`
	Text    string   `xml:"Text"`
}

type echoResponse struct {
	Result string `xml:"EchoResult"`
}

func TestCall_DecodesBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, `"http://tempuri.org/Echo"`, r.Header.Get("SOAPAction"))
		assert.Equal(t, "text/xml; charset=utf-8", r.Header.Get("Content-Type"))

		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), `<Echo xmlns="http://tempuri.org/"><Text>a &amp; b</Text></Echo>`)

		_, _ = w.Write([]byte(`<?xml version="1.0"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <EchoResponse xmlns="http://tempuri.org/"><EchoResult>a &amp; b</EchoResult></EchoResponse>
  </soap:Body>
</soap:Envelope>`))
	}))
	defer server.Close()

	client := soap.New(soap.Config{URL: server.URL, Namespace: "http://tempuri.org/"})

	var resp echoResponse
	err := client.Call(context.Background(), "Echo", &echoRequest{Text: "a & b"}, &resp)

	require.NoError(t, err)
	assert.Equal(t, "a & b", resp.Result)
}

func TestCall_Fault(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"><soap:Body>
<soap:Fault><faultcode>soap:Server</faultcode><faultstring>Invalid client</faultstring></soap:Fault>
</soap:Body></soap:Envelope>`))
	}))
	defer server.Close()

	client := soap.New(soap.Config{URL: server.URL})
	err := client.Call(context.Background(), "Echo", &echoRequest{}, nil)

	var fault *soap.Fault
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, "Invalid client", fault.String)
}

func TestCall_StatusWithoutFault(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer server.Close()

	client := soap.New(soap.Config{URL: server.URL})
	err := client.Call(context.Background(), "Echo", &echoRequest{}, nil)

	var statusErr *soap.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	assert.Equal(t, "upstream down", statusErr.Body)
}
