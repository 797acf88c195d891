/*
Copyright 2016 Medcl (m AT medcl.net)

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

   http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package util

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	uri "net/url"
	"strings"
	"time"

	log "github.com/cihub/seelog"
	"golang.org/x/net/proxy"
)

const (
	Verb_GET    string = "GET"
	Verb_PUT    string = "PUT"
	Verb_POST   string = "POST"
	Verb_DELETE string = "DELETE"
	Verb_HEAD   string = "HEAD"
)

const ContentTypeJson = "application/json;charset=utf-8"

const userAgent = "Mozilla/5.0 (compatible; INFINI/1.0; +http://infini.sh/)"

// Request is a http request waiting to be executed
type Request struct {
	Agent       string
	Method      string
	Url         string
	Proxy       string
	Body        []byte
	headers     map[string]string
	ContentType string

	basicAuthUsername string
	basicAuthPassword string
	Context           context.Context
}

func NewRequest(method, url string) *Request {
	req := Request{}
	req.Url = url
	req.Method = method
	return &req
}

// NewGetRequest issue a simple http get request
func NewGetRequest(url string, body []byte) *Request {
	req := NewRequest(Verb_GET, url)
	req.Body = body
	return req
}

// NewPostRequest issue a simple http post request
func NewPostRequest(url string, body []byte) *Request {
	req := NewRequest(Verb_POST, url)
	req.Body = body
	return req
}

// NewPutRequest issue a simple http put request
func NewPutRequest(url string, body []byte) *Request {
	req := NewRequest(Verb_PUT, url)
	req.Body = body
	return req
}

// NewDeleteRequest issue a simple http delete request
func NewDeleteRequest(url string, body []byte) *Request {
	req := NewRequest(Verb_DELETE, url)
	req.Body = body
	return req
}

// NewHeadRequest issue a http head request, used as existence probe
func NewHeadRequest(url string) *Request {
	return NewRequest(Verb_HEAD, url)
}

// SetBasicAuth set user and password for request
func (r *Request) SetBasicAuth(username, password string) *Request {
	r.basicAuthUsername = username
	r.basicAuthPassword = password
	return r
}

func (r *Request) SetContentType(contentType string) *Request {
	r.ContentType = contentType
	return r
}

func (r *Request) AddHeader(key, v string) *Request {
	if r.headers == nil {
		r.headers = map[string]string{}
	}
	r.headers[key] = v
	return r
}

func (r *Request) SetProxy(proxy string) *Request {
	r.Proxy = proxy
	return r
}

func (r *Request) SetContext(ctx context.Context) *Request {
	r.Context = ctx
	return r
}

// Result is the http request result
type Result struct {
	Host       string
	Url        string
	Headers    map[string][]string
	Body       []byte
	StatusCode int
	Size       uint64
}

var connectTimeout = 10 * time.Second
var requestTimeout = 60 * time.Second

// SetRequestTimeout overrides the total-operation timeout of the shared
// client, zero means no limit. Bulk copy of a large index may legitimately
// run for hours, callers owning such operations pass zero and cancel via
// context instead.
func SetRequestTimeout(t time.Duration) {
	defaultClient.Timeout = t
}

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: requestTimeout,
			DualStack: true,
		}).DialContext,
		ResponseHeaderTimeout: requestTimeout,
		IdleConnTimeout:       requestTimeout,
		TLSHandshakeTimeout:   connectTimeout,
		ExpectContinueTimeout: connectTimeout,
		DisableKeepAlives:     false,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: true},
	}
}

var defaultClient = &http.Client{
	Transport: newTransport(),
	Timeout:   requestTimeout,
}

// ExecuteRequest issue a request
func ExecuteRequest(req *Request) (result *Result, err error) {
	return ExecuteRequestWithClient(defaultClient, req)
}

func ExecuteRequestWithClient(client *http.Client, req *Request) (result *Result, err error) {

	if client == nil {
		client = defaultClient
	}

	var request *http.Request
	if len(req.Body) > 0 {
		request, err = http.NewRequest(req.Method, req.Url, bytes.NewReader(req.Body))
	} else {
		request, err = http.NewRequest(req.Method, req.Url, nil)
	}
	if err != nil {
		log.Errorf("error in request: %s", err)
		return nil, err
	}

	if req.Context != nil {
		request = request.WithContext(req.Context)
	}

	if req.Agent != "" {
		request.Header.Set("User-Agent", req.Agent)
	} else {
		request.Header.Set("User-Agent", userAgent)
	}

	if req.ContentType != "" {
		request.Header.Set("Content-Type", req.ContentType)
	}

	for k, v := range req.headers {
		request.Header.Set(k, v)
	}

	if req.basicAuthUsername != "" {
		request.SetBasicAuth(req.basicAuthUsername, req.basicAuthPassword)
	}

	if req.Proxy != "" {
		client, err = clientWithProxy(req.Proxy)
		if err != nil {
			return nil, err
		}
	}

	return execute(client, request)
}

// clientWithProxy builds a dedicated client whose transport dials through
// the given proxy, http(s) or socks5
func clientWithProxy(proxyURL string) (*http.Client, error) {
	p, err := uri.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse proxy url: %v", err)
	}

	t := newTransport()
	if strings.HasPrefix(p.Scheme, "socks") {
		dialer, err := proxy.FromURL(p, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("failed to obtain proxy dialer: %v", err)
		}
		t.Proxy = nil
		t.DialContext = nil
		t.Dial = dialer.Dial
	} else {
		t.Proxy = http.ProxyURL(p)
	}

	return &http.Client{Transport: t, Timeout: defaultClient.Timeout}, nil
}

func execute(client *http.Client, req *http.Request) (*Result, error) {
	result := &Result{}
	resp, err := client.Do(req)

	defer func() {
		if resp != nil && resp.Body != nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
	}()

	if err != nil {
		return result, err
	}

	result.StatusCode = resp.StatusCode
	result.Host = resp.Request.Host
	result.Url = resp.Request.URL.String()

	if resp.Header != nil {
		result.Headers = map[string][]string{}
		for k, v := range resp.Header {
			result.Headers[strings.ToLower(k)] = v
		}
	}

	if resp.Body != nil {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return result, err
		}
		result.Body = body
		result.Size = uint64(len(body))
	}

	return result, nil
}
