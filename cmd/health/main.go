package main

import (
	"flag"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
)

// Lightweight health sidecar: polls the bot's /readyz and re-serves the
// last observed status over fasthttp. Useful for load balancers that
// need a cheap endpoint isolated from the webhook rate limiter.
func main() {
	addr := flag.String("addr", ":8081", "listen address for the health sidecar")
	target := flag.String("target", "http://127.0.0.1:8080/readyz", "bot readiness URL to poll")
	interval := flag.Duration("interval", 5*time.Second, "poll interval")
	flag.Parse()

	var ready atomic.Bool

	go func() {
		c := &fasthttp.Client{ReadTimeout: 3 * time.Second, WriteTimeout: 3 * time.Second}
		for {
			code, _, err := c.GetTimeout(nil, *target, 3*time.Second)
			ready.Store(err == nil && code == fasthttp.StatusOK)
			time.Sleep(*interval)
		}
	}()

	h := func(ctx *fasthttp.RequestCtx) {
		switch string(ctx.Path()) {
		case "/health", "/healthz":
			ctx.Response.Header.Set("Content-Type", "application/json")
			if ready.Load() {
				ctx.SetStatusCode(fasthttp.StatusOK)
				_, _ = ctx.WriteString(`{"status":"ok"}`)
			} else {
				ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
				_, _ = ctx.WriteString(`{"status":"unreachable"}`)
			}
		default:
			ctx.SetStatusCode(fasthttp.StatusNotFound)
		}
	}

	fmt.Printf("health sidecar listening on %s (polling %s)\n", *addr, *target)
	srv := &fasthttp.Server{
		Handler:            h,
		Name:               "autoblock-health",
		ReadTimeout:        5 * time.Second,
		WriteTimeout:       5 * time.Second,
		MaxRequestBodySize: 1 << 20,
	}
	if err := srv.ListenAndServe(*addr); err != nil {
		fmt.Printf("health sidecar exit: %v\n", err)
	}
}
