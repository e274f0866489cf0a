// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package native

import (
	"io"
	"net/http"

	"github.com/papuga-go/papuga/pkg/log"
	"github.com/papuga-go/papuga/pkg/papuga/allocator"
	"github.com/papuga-go/papuga/pkg/papuga/automaton"
	"github.com/papuga-go/papuga/pkg/papuga/document"
	"github.com/papuga-go/papuga/pkg/papuga/executor"
	"github.com/papuga-go/papuga/pkg/papuga/luahandler"
	"github.com/papuga-go/papuga/pkg/papuga/perror"
	"github.com/papuga-go/papuga/pkg/papuga/reqcontext"
	"github.com/papuga-go/papuga/pkg/papuga/result"
	"github.com/papuga-go/papuga/pkg/papuga/value"
)

// Route binds one compiled Automaton to a RequestContext profile,
// running every request directly through automaton.Request and
// executor.Executor instead of a Lua script: the un-scripted path
// through the same scheduling/execution pipeline luahandler drives.
type Route struct {
	Name      string
	Automaton *automaton.Automaton
	ResultVar string
	Profile   string
	Build     reqcontext.BuildFunc
	Pool      *reqcontext.Pool
}

// ServeHTTP parses the request body into a document, schedules and
// resolves every call the Automaton matches against it, and renders the
// named result variable under the client's negotiated Accept style.
func (rt *Route) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	parser, _, err := document.Open(body, document.UnknownContent, value.UTF8)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	req := automaton.NewRequest(rt.Automaton)
	if err := req.Run(parser); err != nil {
		log.Warnf("papugad: native route %s: %v", rt.Name, err)
		http.Error(w, err.Error(), statusForCode(perror.CodeOf(err)))
		return
	}

	ctx, err := rt.Pool.Get(rt.Profile, rt.Build)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	a := allocator.New()
	defer a.Destroy()

	ex := executor.New(ctx, a, req, true)
	if _, err := ex.Run(); err != nil {
		log.Warnf("papugad: native route %s: %v", rt.Name, err)
		http.Error(w, err.Error(), statusForCode(perror.CodeOf(err)))
		return
	}

	v, ok := ctx.GetVar(rt.ResultVar)
	if !ok {
		v = value.NewVoid()
	}

	accept := luahandler.ParseAccept(r.Header.Get("Accept"))
	style, contentType := stylesFor(accept)
	out, err := result.Encode(a, v, style, result.Options{RootName: rt.Name})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(out)
}

// stylesFor picks the result.Style/Content-Type pair matching the
// request's negotiated preference, the same mapping the Lua route uses.
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
// the same mapping cmd/papugad's Lua route uses.
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
