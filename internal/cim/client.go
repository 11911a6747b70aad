// Package cim is a small CIM-XML over HTTP(S) client (DMTF DSP0200/DSP0201)
// for the host CIM agent listening on port 5989.
package cim

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"
)

const (
	// DefaultPort is the HTTPS port of the host CIM agent.
	DefaultPort = 5989
	// DefaultNamespace is the namespace queried on the host agent.
	DefaultNamespace = "root/cimv2"

	methodEnumerateInstances = "EnumerateInstances"

	cimomPath = "/cimom"
	manHeader = "http://www.dmtf.org/cim/mapping/http/v1.0 ; ns=73"
	manPrefix = "73-"
)

var messageID atomic.Uint64

// Client issues intrinsic CIM operations against a single agent URL.
type Client struct {
	endpoint   *url.URL
	username   string
	password   string
	useMPost   bool
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithCredentials sets the basic-auth principal and credential.
func WithCredentials(username, password string) Option {
	return func(c *Client) {
		c.username = username
		c.password = password
	}
}

// WithMPost selects the extension method M-POST instead of POST. Some host
// agent versions reject M-POST, so it is off by default.
func WithMPost(enabled bool) Option {
	return func(c *Client) { c.useMPost = enabled }
}

// WithInsecureTLS skips verification of the agent certificate.
func WithInsecureTLS() Option {
	return func(c *Client) {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // host agents use self-signed certificates
		c.httpClient.Transport = t
	}
}

// WithHTTPClient replaces the HTTP client. Applied options that touch the
// transport must come after it.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout bounds each operation.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// NewClient returns a client for the agent at rawURL (https://host:port).
func NewClient(rawURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse agent url: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, fmt.Errorf("unsupported agent url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("agent url %q has no host", rawURL)
	}
	u.Path = cimomPath

	c := &Client{
		endpoint:   u,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// EnumerateInstances returns every instance of class in namespace,
// including subclasses, fully read into memory.
func (c *Client) EnumerateInstances(ctx context.Context, namespace, class string) ([]Instance, error) {
	id := strconv.FormatUint(messageID.Add(1), 10)
	body, err := xml.Marshal(enumerateInstancesRequest(id, namespace, class))
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	resp, err := c.do(ctx, methodEnumerateInstances, namespace, body)
	if err != nil {
		return nil, err
	}

	if resp.Error != nil {
		return nil, &Error{Code: resp.Error.Code, Description: resp.Error.Description}
	}

	instances := []Instance{}
	if resp.ReturnValue == nil {
		return instances, nil
	}
	for _, ni := range resp.ReturnValue.NamedInstances {
		instances = append(instances, ni.Instance.toInstance())
	}
	for _, inst := range resp.ReturnValue.Instances {
		instances = append(instances, inst.toInstance())
	}
	return instances, nil
}

func (c *Client) do(ctx context.Context, method, namespace string, body []byte) (*iMethodResponse, error) {
	httpMethod := http.MethodPost
	prefix := ""
	if c.useMPost {
		httpMethod = "M-POST"
		prefix = manPrefix
	}

	req, err := http.NewRequestWithContext(ctx, httpMethod, c.endpoint.String(), bytes.NewReader(append([]byte(xml.Header), body...)))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", `application/xml; charset="utf-8"`)
	req.Header.Set("Accept", "application/xml, text/xml")
	if c.useMPost {
		req.Header.Set("Man", manHeader)
	}
	req.Header.Set(prefix+"CIMOperation", "MethodCall")
	req.Header.Set(prefix+"CIMMethod", method)
	req.Header.Set(prefix+"CIMObject", url.QueryEscape(namespace))
	if c.username != "" || c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, c.endpoint.Host, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{
			HTTPStatus:  resp.StatusCode,
			Description: resp.Header.Get("CIMError"),
		}
	}

	var doc document
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if doc.Message.Response == nil {
		return nil, fmt.Errorf("response to %s carries no SIMPLERSP", method)
	}
	return &doc.Message.Response.Response, nil
}
