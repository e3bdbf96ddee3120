// Copyright (c) 2016-2019 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package httputil wraps net/http with the send-options pattern used
// throughout this codebase: a small functional-options request builder
// with status-code and transport-error retry, used by the tracker's
// HTTP client to fetch bencoded announce responses.
package httputil

import (
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"time"

	"github.com/cenkalti/backoff"
)

// StatusError occurs when an HTTP response has an unexpected status code.
type StatusError struct {
	Method       string
	URL          string
	Status       int
	ResponseDump string
}

func (e StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.Status, e.ResponseDump)
}

// NetworkError occurs when an HTTP request could not be sent, or the
// transport returned an error before any response was received.
type NetworkError struct {
	msg string
}

func (e NetworkError) Error() string {
	return fmt.Sprintf("network error: %s", e.msg)
}

// IsNetworkError returns true if err is a NetworkError.
func IsNetworkError(err error) bool {
	_, ok := err.(NetworkError)
	return ok
}

// IsStatus returns true if err is a StatusError with the given status code.
func IsStatus(err error, status int) bool {
	statusErr, ok := err.(StatusError)
	return ok && statusErr.Status == status
}

// IsForbidden returns true if err is a 403 StatusError.
func IsForbidden(err error) bool {
	return IsStatus(err, http.StatusForbidden)
}

// IsNotFound returns true if err is a 404 StatusError.
func IsNotFound(err error) bool {
	return IsStatus(err, http.StatusNotFound)
}

type sendOptions struct {
	body          io.Reader
	header        http.Header
	timeout       time.Duration
	acceptedCodes map[int]bool
	transport     http.RoundTripper
	retryBackoff  backoff.BackOff
	retryCodes    map[int]bool
}

// SendOption configures a send request.
type SendOption func(*sendOptions)

// SendBody sets the request body.
func SendBody(body io.Reader) SendOption {
	return func(o *sendOptions) { o.body = body }
}

// SendHeader sets a request header.
func SendHeader(key, value string) SendOption {
	return func(o *sendOptions) {
		if o.header == nil {
			o.header = make(http.Header)
		}
		o.header.Add(key, value)
	}
}

// SendTimeout sets the request timeout.
func SendTimeout(timeout time.Duration) SendOption {
	return func(o *sendOptions) { o.timeout = timeout }
}

// SendAcceptedCodes sets the status codes which are not converted into
// a StatusError.
func SendAcceptedCodes(codes ...int) SendOption {
	return func(o *sendOptions) {
		for _, c := range codes {
			o.acceptedCodes[c] = true
		}
	}
}

// SendTransport overrides the http.RoundTripper used to send the request.
func SendTransport(t http.RoundTripper) SendOption {
	return func(o *sendOptions) { o.transport = t }
}

// RetryOption configures retry behavior within SendRetry.
type RetryOption func(*sendOptions)

// RetryBackoff sets the backoff.BackOff policy used between retries.
func RetryBackoff(b backoff.BackOff) RetryOption {
	return func(o *sendOptions) { o.retryBackoff = b }
}

// RetryCodes adds status codes which trigger a retry, in addition to
// the default of any 5xx response.
func RetryCodes(codes ...int) RetryOption {
	return func(o *sendOptions) {
		for _, c := range codes {
			o.retryCodes[c] = true
		}
	}
}

// SendRetry enables retrying the request on transport errors and on
// 5xx / RetryCodes status codes, per retryOpts.
func SendRetry(retryOpts ...RetryOption) SendOption {
	return func(o *sendOptions) {
		for _, opt := range retryOpts {
			opt(o)
		}
		if o.retryBackoff == nil {
			o.retryBackoff = backoff.NewConstantBackOff(time.Second)
		}
	}
}

func defaultSendOptions() *sendOptions {
	return &sendOptions{
		timeout:       5 * time.Second,
		acceptedCodes: map[int]bool{http.StatusOK: true},
		retryCodes:    make(map[int]bool),
	}
}

func send(method, rawurl string, opts ...SendOption) (*http.Response, error) {
	o := defaultSendOptions()
	for _, opt := range opts {
		opt(o)
	}

	req, err := http.NewRequest(method, rawurl, o.body)
	if err != nil {
		return nil, fmt.Errorf("new request: %s", err)
	}
	if o.header != nil {
		req.Header = o.header
	}

	client := &http.Client{Timeout: o.timeout}
	if o.transport != nil {
		client.Transport = o.transport
	}

	shouldRetryStatus := func(status int) bool {
		return status >= 500 || o.retryCodes[status]
	}

	var resp *http.Response
	op := func() error {
		var rerr error
		resp, rerr = client.Do(req)
		if rerr != nil {
			return NetworkError{rerr.Error()}
		}
		if !o.acceptedCodes[resp.StatusCode] {
			dump, _ := ioutil.ReadAll(resp.Body)
			resp.Body.Close()
			err := StatusError{
				Method:       method,
				URL:          rawurl,
				Status:       resp.StatusCode,
				ResponseDump: string(dump),
			}
			if o.retryBackoff != nil && shouldRetryStatus(resp.StatusCode) {
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}

	var berr error
	if o.retryBackoff != nil {
		berr = backoff.Retry(op, o.retryBackoff)
	} else {
		berr = op()
	}
	if berr != nil {
		if pe, ok := berr.(*backoff.PermanentError); ok {
			return nil, pe.Err
		}
		return nil, berr
	}
	return resp, nil
}

// Get sends a GET request.
func Get(url string, opts ...SendOption) (*http.Response, error) {
	return send(http.MethodGet, url, opts...)
}

// Post sends a POST request.
func Post(url string, opts ...SendOption) (*http.Response, error) {
	return send(http.MethodPost, url, opts...)
}

// PollAccepted polls url with GET until a non-202 response is returned,
// waiting between polls as b dictates.
func PollAccepted(url string, b backoff.BackOff, opts ...SendOption) (*http.Response, error) {
	var resp *http.Response
	op := func() error {
		r, err := Get(url, opts...)
		if err != nil {
			return backoff.Permanent(err)
		}
		if r.StatusCode == http.StatusAccepted {
			r.Body.Close()
			return fmt.Errorf("still processing")
		}
		resp = r
		return nil
	}
	if err := backoff.Retry(op, b); err != nil {
		if pe, ok := err.(*backoff.PermanentError); ok {
			return nil, pe.Err
		}
		return nil, fmt.Errorf("polling timed out: %s", err)
	}
	return resp, nil
}

// GetQueryArg returns the value of query argument arg in r, or def if absent.
func GetQueryArg(r *http.Request, arg, def string) string {
	v := r.URL.Query().Get(arg)
	if v == "" {
		return def
	}
	return v
}
