// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command papugad serves a set of Lua-scripted routes over HTTP: each
// config.ScriptBinding compiles once at startup and then runs, via
// pkg/papuga/luahandler, against every request routed to it.
package main

import (
	"context"
	"flag"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/gops/agent"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	"github.com/papuga-go/papuga/internal/config"
	"github.com/papuga-go/papuga/internal/delegate"
	"github.com/papuga-go/papuga/internal/metrics"
	"github.com/papuga-go/papuga/internal/native"
	"github.com/papuga-go/papuga/pkg/log"
	"github.com/papuga-go/papuga/pkg/nats"
	"github.com/papuga-go/papuga/pkg/papuga/luahandler"
	"github.com/papuga-go/papuga/pkg/papuga/reqcontext"
)

func main() {
	var flagConfigFile string
	var flagGops bool
	flag.StringVar(&flagConfigFile, "config", "./config.json", "service configuration file")
	flag.BoolVar(&flagGops, "gops", false, "listen via github.com/google/gops/agent (for debugging)")
	flag.Parse()

	if flagGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			log.Fatalf("gops/agent.Listen failed: %s", err.Error())
		}
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Fatalf("parsing './.env' file failed: %s", err.Error())
	}

	config.Init(flagConfigFile)

	dispatcher := buildDispatcher()

	routes, err := buildRoutes(config.Keys.Scripts, dispatcher)
	if err != nil {
		log.Fatalf("papugad: %s", err.Error())
	}

	pool := reqcontext.NewPool(config.Keys.PoolMemory, time.Duration(config.Keys.PoolTTLSeconds)*time.Second)
	nativeRoutes, err := buildNativeRoutes(config.Keys.NativeBindings, pool)
	if err != nil {
		log.Fatalf("papugad: %s", err.Error())
	}

	r := mux.NewRouter()
	for _, rt := range routes {
		r.Handle(rt.name, rt).Methods(http.MethodPost, http.MethodPut)
		log.Infof("papugad: bound scripted route %q", rt.name)
	}
	for _, rt := range nativeRoutes {
		r.Handle(rt.Name, rt).Methods(http.MethodPost, http.MethodPut)
		log.Infof("papugad: bound native route %q", rt.Name)
	}
	r.HandleFunc("/healthz", writeHealth(len(routes)+len(nativeRoutes))).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	r.Use(handlers.CompressHandler)
	r.Use(handlers.RecoveryHandler(handlers.PrintRecoveryStack(true)))
	r.Use(handlers.CORS(
		handlers.AllowedHeaders([]string{"Content-Type", "Accept"}),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT"}),
		handlers.AllowedOrigins([]string{"*"})))

	logged := handlers.CustomLoggingHandler(io.Discard, r, func(_ io.Writer, params handlers.LogFormatterParams) {
		log.Infof("%s %s (%d, %dms)",
			params.Request.Method, params.URL.RequestURI(), params.StatusCode,
			time.Since(params.TimeStamp).Milliseconds())
	})

	server := &http.Server{
		Addr:         config.Keys.Addr,
		Handler:      logged,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Infof("papugad: listening at %s", config.Keys.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("papugad: %s", err.Error())
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	log.Infof("papugad: shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	server.Shutdown(ctx)
	wg.Wait()
	log.Infof("papugad: graceful shutdown complete")
}

// buildDispatcher wires the DelegateDispatcher a route's send() calls
// reach, per config.Keys.DelegateBackend.
func buildDispatcher() luahandler.DelegateDispatcher {
	switch config.Keys.DelegateBackend {
	case "nats":
		nats.Keys.Address = config.Keys.NatsAddress
		nats.Connect()
		client := nats.GetClient()
		if client == nil {
			log.Warnf("papugad: NATS delegate backend requested but not connected, delegates will fail")
			return delegate.NewInProcess()
		}
		return delegate.NewNats(client, 5*time.Second)
	default:
		return delegate.NewInProcess()
	}
}

// buildRoutes compiles every configured script once at startup.
func buildRoutes(bindings []config.ScriptBinding, dispatcher luahandler.DelegateDispatcher) ([]*route, error) {
	routes := make([]*route, 0, len(bindings))
	for _, b := range bindings {
		src, err := os.ReadFile(b.ScriptPath)
		if err != nil {
			return nil, err
		}
		script, err := luahandler.Compile(string(src), b.ScriptPath)
		if err != nil {
			return nil, err
		}
		reg, err := loadSchemaRegistry(b.SchemaPath)
		if err != nil {
			return nil, err
		}
		rt := &route{name: normalizeRoute(b.Route), script: script, delegate: dispatcher}
		if reg != nil {
			rt.schemas = reg
		}
		routes = append(routes, rt)
	}
	return routes, nil
}

// buildNativeRoutes compiles every configured native binding's spec
// once at startup, wiring it straight to pkg/papuga/automaton and
// pkg/papuga/executor instead of a Lua script.
func buildNativeRoutes(bindings []config.NativeBinding, pool *reqcontext.Pool) ([]*native.Route, error) {
	routes := make([]*native.Route, 0, len(bindings))
	for _, b := range bindings {
		raw, err := os.ReadFile(b.SpecPath)
		if err != nil {
			return nil, err
		}
		spec, automaton, err := native.ParseSpec(raw)
		if err != nil {
			return nil, err
		}
		profile := b.Profile
		if profile == "" {
			profile = b.Route
		}
		routes = append(routes, &native.Route{
			Name:      normalizeRoute(b.Route),
			Automaton: automaton,
			ResultVar: spec.ResultVar,
			Profile:   profile,
			Build:     buildNativeContext,
			Pool:      pool,
		})
	}
	return routes, nil
}

// buildNativeContext registers the builtin host classes every native
// route's RequestContext shares; reqcontext.Pool forks a fresh context
// off this base per request via copy-on-write.
func buildNativeContext() (*reqcontext.RequestContext, error) {
	ctx := reqcontext.New()
	for _, c := range native.BuiltinClasses() {
		ctx.RegisterClass(c)
	}
	return ctx, nil
}

func normalizeRoute(route string) string {
	if !strings.HasPrefix(route, "/") {
		return "/" + route
	}
	return route
}
