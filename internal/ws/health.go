package ws

import (
	"github.com/valyala/fasthttp"
)

// HealthServer answers external liveness probes with a fixed success status.
// It carries no protocol semantics and listens on its own address.
type HealthServer struct {
	srv *fasthttp.Server
}

func NewHealthServer() *HealthServer {
	return &HealthServer{
		srv: &fasthttp.Server{
			Handler: func(ctx *fasthttp.RequestCtx) {
				if string(ctx.Path()) != "/healthz" {
					ctx.SetStatusCode(fasthttp.StatusNotFound)
					return
				}
				ctx.SetStatusCode(fasthttp.StatusOK)
				ctx.SetBodyString("ok")
			},
			NoDefaultServerHeader: true,
		},
	}
}

func (h *HealthServer) ListenAndServe(addr string) error {
	return h.srv.ListenAndServe(addr)
}

func (h *HealthServer) Shutdown() error {
	return h.srv.Shutdown()
}
