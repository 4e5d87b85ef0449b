//go:build linux

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ja7ad/taskscheduler/pkg/log"
)

// serveHostGauges runs the promhttp-backed host gauge endpoint on
// opts.PromPort until Stop calls hostServer.Shutdown. It is independent of
// the exposer's lifecycle: a scrape failure here never affects /metrics.
func (k *Kernel) serveHostGauges() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", k.host.Handler())
	addr := fmt.Sprintf(":%d", k.opts.PromPort)

	srv := &http.Server{Addr: addr, Handler: mux}
	k.mu.Lock()
	k.hostServer = srv
	k.mu.Unlock()

	log.WithComponent("scheduler").Info().Str("addr", addr).Msg("host gauge endpoint listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithComponent("scheduler").Warn().Err(err).Msg("host gauge endpoint stopped")
	}
}

func (k *Kernel) stopHostGauges() {
	k.mu.Lock()
	srv := k.hostServer
	k.mu.Unlock()
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
