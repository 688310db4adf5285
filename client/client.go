// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package client calls an A2A server over the JSON-RPC binding of package
// jsonrpc.
//
// Errors returned by the server are *[jsonrpc.Error] values that unwrap to
// the matching a2a errors:
//
//	if a2a.IsNotFound(err) { ... }
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"maps"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"github.com/go-a2a/a2a-runtime"
	"github.com/go-a2a/a2a-runtime/server/jsonrpc"
)

// Client is an A2A JSON-RPC client. It is safe for concurrent use.
type Client struct {
	url        string
	httpClient *http.Client
	header     http.Header
	userAgent  string
	nextID     atomic.Int64
}

// Option configures a [Client].
type Option func(*Client)

// WithHTTPClient sets the [*http.Client]. Streams run for the lifetime of
// their context, so the client should not set a Timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.header.Add(key, value)
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// New returns a client of the JSON-RPC endpoint at url.
func New(url string, opts ...Option) *Client {
	c := &Client{
		url:        url,
		httpClient: &http.Client{},
		header:     make(http.Header),
		userAgent:  "a2a-go-client/1.0",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SendMessage calls message/send. The result is a *[a2a.Task] or a
// *[a2a.Message].
func (c *Client) SendMessage(ctx context.Context, params *a2a.MessageSendParams) (a2a.SendMessageResult, error) {
	raw, err := c.call(ctx, jsonrpc.MethodMessageSend, params)
	if err != nil {
		return nil, err
	}
	ev, err := jsonrpc.DecodeEvent(raw)
	if err != nil {
		return nil, err
	}
	res, ok := ev.(a2a.SendMessageResult)
	if !ok {
		return nil, fmt.Errorf("unexpected %s result", ev.Kind())
	}
	return res, nil
}

// SendMessageStream calls message/stream and yields its events.
func (c *Client) SendMessageStream(ctx context.Context, params *a2a.MessageSendParams) iter.Seq2[a2a.Event, error] {
	return c.stream(ctx, jsonrpc.MethodMessageStream, params)
}

// Resubscribe calls tasks/resubscribe and yields the task snapshot followed
// by its live events.
func (c *Client) Resubscribe(ctx context.Context, params *a2a.TaskIDParams) iter.Seq2[a2a.Event, error] {
	return c.stream(ctx, jsonrpc.MethodTasksResubscribe, params)
}

// GetTask calls tasks/get.
func (c *Client) GetTask(ctx context.Context, params *a2a.TaskQueryParams) (*a2a.Task, error) {
	return callResult[a2a.Task](ctx, c, jsonrpc.MethodTasksGet, params)
}

// ListTasks calls tasks/list.
func (c *Client) ListTasks(ctx context.Context, params *a2a.ListTasksParams) (*a2a.ListTasksResult, error) {
	return callResult[a2a.ListTasksResult](ctx, c, jsonrpc.MethodTasksList, params)
}

// CancelTask calls tasks/cancel.
func (c *Client) CancelTask(ctx context.Context, params *a2a.TaskIDParams) (*a2a.Task, error) {
	return callResult[a2a.Task](ctx, c, jsonrpc.MethodTasksCancel, params)
}

// DeleteTask calls tasks/delete.
func (c *Client) DeleteTask(ctx context.Context, params *a2a.TaskIDParams) error {
	_, err := c.call(ctx, jsonrpc.MethodTasksDelete, params)
	return err
}

// SetPushNotificationConfig calls tasks/pushNotificationConfig/set.
func (c *Client) SetPushNotificationConfig(ctx context.Context, params *a2a.TaskPushNotificationConfig) (*a2a.TaskPushNotificationConfig, error) {
	return callResult[a2a.TaskPushNotificationConfig](ctx, c, jsonrpc.MethodPushNotificationConfigSet, params)
}

// GetPushNotificationConfig calls tasks/pushNotificationConfig/get.
func (c *Client) GetPushNotificationConfig(ctx context.Context, params *a2a.GetTaskPushNotificationConfigParams) (*a2a.TaskPushNotificationConfig, error) {
	return callResult[a2a.TaskPushNotificationConfig](ctx, c, jsonrpc.MethodPushNotificationConfigGet, params)
}

// ListPushNotificationConfigs calls tasks/pushNotificationConfig/list.
func (c *Client) ListPushNotificationConfigs(ctx context.Context, params *a2a.TaskIDParams) ([]*a2a.TaskPushNotificationConfig, error) {
	raw, err := c.call(ctx, jsonrpc.MethodPushNotificationConfigList, params)
	if err != nil {
		return nil, err
	}
	var out []*a2a.TaskPushNotificationConfig
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return out, nil
}

// DeletePushNotificationConfig calls tasks/pushNotificationConfig/delete.
func (c *Client) DeletePushNotificationConfig(ctx context.Context, params *a2a.DeleteTaskPushNotificationConfigParams) error {
	_, err := c.call(ctx, jsonrpc.MethodPushNotificationConfigDel, params)
	return err
}

func callResult[R any](ctx context.Context, c *Client, method string, params any) (*R, error) {
	raw, err := c.call(ctx, method, params)
	if err != nil {
		return nil, err
	}
	r := new(R)
	if err := json.Unmarshal(raw, r); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return r, nil
}

// call sends one request and returns the raw result.
func (c *Client) call(ctx context.Context, method string, params any) (jsontext.Value, error) {
	resp, err := c.post(ctx, method, params, "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var r jsonrpc.Response
	if err := json.UnmarshalRead(resp.Body, &r); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", method, err)
	}
	if r.Error != nil {
		return nil, r.Error
	}
	return r.Result, nil
}

// stream sends one request and yields the events of the SSE response. The
// sequence ends after the server's last event, after the first error or
// when the consumer stops.
func (c *Client) stream(ctx context.Context, method string, params any) iter.Seq2[a2a.Event, error] {
	return func(yield func(a2a.Event, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		resp, err := c.post(ctx, method, params, "text/event-stream")
		if err != nil {
			yield(nil, err)
			return
		}
		defer resp.Body.Close()

		if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
			// Requests rejected before streaming starts get a plain response.
			var r jsonrpc.Response
			if err := json.UnmarshalRead(resp.Body, &r); err != nil {
				yield(nil, fmt.Errorf("%s: decode response: %w", method, err))
				return
			}
			if r.Error != nil {
				yield(nil, r.Error)
				return
			}
			yield(nil, fmt.Errorf("%s: unexpected content type %q", method, ct))
			return
		}

		dec := newSSEDecoder(resp.Body)
		for {
			data, err := dec.next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, fmt.Errorf("%s: read stream: %w", method, err))
				return
			}
			var r jsonrpc.Response
			if err := json.Unmarshal(data, &r); err != nil {
				yield(nil, fmt.Errorf("%s: decode frame: %w", method, err))
				return
			}
			if r.Error != nil {
				yield(nil, r.Error)
				return
			}
			ev, err := jsonrpc.DecodeEvent(r.Result)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(ev, nil) {
				return
			}
		}
	}
}

func (c *Client) post(ctx context.Context, method string, params any, accept string) (*http.Response, error) {
	rpcReq := &jsonrpc.Request{
		JSONRPC: jsonrpc.Version,
		ID:      jsontext.Value(strconv.FormatInt(c.nextID.Add(1), 10)),
		Method:  method,
	}
	var err error
	if params != nil {
		if rpcReq.Params, err = json.Marshal(params); err != nil {
			return nil, fmt.Errorf("%s: encode params: %w", method, err)
		}
	}
	body, err := json.Marshal(rpcReq)
	if err != nil {
		return nil, fmt.Errorf("%s: encode request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	maps.Copy(req.Header, c.header)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%s: unexpected HTTP status %s after %s", method, resp.Status, time.Since(start).Round(time.Millisecond))
	}
	return resp, nil
}
