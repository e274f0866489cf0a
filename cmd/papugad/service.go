// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"fmt"
	"io"
	"net/http"

	"github.com/papuga-go/papuga/internal/metrics"
	"github.com/papuga-go/papuga/pkg/log"
	"github.com/papuga-go/papuga/pkg/papuga/allocator"
	"github.com/papuga-go/papuga/pkg/papuga/luahandler"
	"github.com/papuga-go/papuga/pkg/papuga/perror"
	"github.com/papuga-go/papuga/pkg/papuga/result"
)

// route binds one config.ScriptBinding to its compiled script, optional
// schema registry, and the delegate dispatcher every invocation shares.
type route struct {
	name     string
	script   *luahandler.CompiledScript
	schemas  luahandler.SchemaLookup
	delegate luahandler.DelegateDispatcher
}

// ServeHTTP runs the route's script once against the request body and
// writes the negotiated rendering of its result.
func (rt *route) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	accept := luahandler.ParseAccept(r.Header.Get("Accept"))
	h := luahandler.NewHandler(rt.script, rt.delegate, rt.schemas, accept)

	a := allocator.New()
	defer a.Destroy()

	inv := luahandler.NewInvocation(h, a)
	defer inv.Close()

	v, err := inv.Run("", string(body), r.URL.Path, rt.name)
	if err != nil {
		code := perror.CodeOf(err)
		metrics.CallsTotal.WithLabelValues(rt.name, "script", "error").Inc()
		log.Warnf("papugad: %s[%s]: %v", rt.name, a.ID, err)
		http.Error(w, err.Error(), statusForCode(code))
		return
	}
	metrics.CallsTotal.WithLabelValues(rt.name, "script", "ok").Inc()

	style, contentType := stylesFor(accept)
	out, err := result.Encode(a, v, style, result.Options{RootName: rt.name})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(out)
}

// stylesFor picks the result.Style/Content-Type pair matching the
// request's negotiated preference.
func stylesFor(accept luahandler.AcceptSet) (result.Style, string) {
	switch accept.FirstCompatible() {
	case luahandler.AcceptXML:
		return result.XML, "application/xml; charset=utf-8"
	case luahandler.AcceptHTML:
		return result.HTML5, "text/html; charset=utf-8"
	case luahandler.AcceptText:
		return result.Text, "text/plain; charset=utf-8"
	default:
		return result.JSON, "application/json; charset=utf-8"
	}
}

// statusForCode maps the engine's error taxonomy onto an HTTP status,
// the papugad-specific edge of perror.Code: transport mapping is left to
// the embedding service.
func statusForCode(code perror.Code) int {
	switch code {
	case perror.NofArgsError, perror.MissingSelf, perror.InvalidRequest,
		perror.MixedConstruction, perror.SyntaxError, perror.UnknownContentType,
		perror.UnknownSchema, perror.AttributeNotAtomic, perror.TypeError,
		perror.OutOfRangeError:
		return http.StatusBadRequest
	case perror.AddressedItemNotFound, perror.AmbiguousReference:
		return http.StatusNotFound
	case perror.NotAllowed:
		return http.StatusForbidden
	case perror.DelegateRequestFailed:
		return http.StatusBadGateway
	case perror.MaxRecursionDepthReached, perror.ComplexityOfProblem, perror.BufferOverflowError:
		return http.StatusRequestEntityTooLarge
	case perror.NoMemError:
		return http.StatusInsufficientStorage
	case perror.NotImplemented:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// writeHealth answers a liveness probe with the route table's size, a
// cheap proxy for "configuration loaded successfully". n counts both
// scripted and native routes.
func writeHealth(n int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "ok: %d route(s)\n", n)
	}
}
