// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package delegate implements luahandler.DelegateDispatcher: the host side
// of a script's send() calls, fanned out either to in-process Go handlers
// or, for a multi-process papugad deployment, to NATS request/reply peers.
package delegate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/papuga-go/papuga/internal/metrics"
	"github.com/papuga-go/papuga/pkg/papuga/luahandler"
)

// HandlerFunc answers one delegate request synchronously.
type HandlerFunc func(method, url string, value interface{}) (interface{}, error)

// InProcess dispatches every send() to a Go function registered under the
// request's URL, for scripts delegating to sibling routes of the same
// process rather than an external service.
type InProcess struct {
	routes map[string]HandlerFunc
}

// NewInProcess builds an empty in-process dispatcher; register routes with
// Register before it is handed to a luahandler.Handler.
func NewInProcess() *InProcess {
	return &InProcess{routes: make(map[string]HandlerFunc)}
}

// Register binds url to fn. Re-registering a url replaces the prior handler.
func (d *InProcess) Register(url string, fn HandlerFunc) {
	d.routes[url] = fn
}

// Dispatch implements luahandler.DelegateDispatcher.
func (d *InProcess) Dispatch(reqs []luahandler.DelegateRequest) ([]luahandler.DelegateResult, error) {
	out := make([]luahandler.DelegateResult, len(reqs))
	for i, r := range reqs {
		fn, ok := d.routes[r.URL]
		if !ok {
			out[i] = luahandler.DelegateResult{Err: fmt.Errorf("delegate: no in-process route for %q", r.URL)}
			metrics.DelegateDispatchTotal.WithLabelValues("inprocess", "error").Inc()
			continue
		}
		v, err := fn(r.Method, r.URL, r.Value)
		out[i] = luahandler.DelegateResult{Value: v, Err: err}
		if err != nil {
			metrics.DelegateDispatchTotal.WithLabelValues("inprocess", "error").Inc()
		} else {
			metrics.DelegateDispatchTotal.WithLabelValues("inprocess", "ok").Inc()
		}
	}
	return out, nil
}

// NatsClient is the subset of *nats.Client the Dispatcher needs, kept
// narrow so it can be faked in tests without a live broker.
type NatsClient interface {
	Request(ctx context.Context, subject string, data []byte) ([]byte, error)
}

// Nats dispatches every send() as a NATS request/reply round trip, subject
// equal to the request's URL, body JSON-encoded from its Value.
type Nats struct {
	client  NatsClient
	timeout time.Duration
}

// NewNats wraps an already-connected NATS client. timeout bounds each
// individual request/reply round trip; zero defaults to five seconds.
func NewNats(client NatsClient, timeout time.Duration) *Nats {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Nats{client: client, timeout: timeout}
}

// Dispatch implements luahandler.DelegateDispatcher.
func (d *Nats) Dispatch(reqs []luahandler.DelegateRequest) ([]luahandler.DelegateResult, error) {
	out := make([]luahandler.DelegateResult, len(reqs))
	for i, r := range reqs {
		body, err := json.Marshal(r.Value)
		if err != nil {
			out[i] = luahandler.DelegateResult{Err: fmt.Errorf("delegate: encoding request for %q: %w", r.URL, err)}
			metrics.DelegateDispatchTotal.WithLabelValues("nats", "error").Inc()
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		reply, err := d.client.Request(ctx, r.URL, body)
		cancel()
		if err != nil {
			out[i] = luahandler.DelegateResult{Err: fmt.Errorf("delegate: request to %q: %w", r.URL, err)}
			metrics.DelegateDispatchTotal.WithLabelValues("nats", "error").Inc()
			continue
		}
		var v interface{}
		if len(reply) > 0 {
			if err := json.Unmarshal(reply, &v); err != nil {
				out[i] = luahandler.DelegateResult{Err: fmt.Errorf("delegate: decoding reply from %q: %w", r.URL, err)}
				metrics.DelegateDispatchTotal.WithLabelValues("nats", "error").Inc()
				continue
			}
		}
		out[i] = luahandler.DelegateResult{Value: v}
		metrics.DelegateDispatchTotal.WithLabelValues("nats", "ok").Inc()
	}
	return out, nil
}
