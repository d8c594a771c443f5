// Package admin exposes the operational surface separate from the
// client-protocol TCP port: a JSON status endpoint and a Prometheus
// scrape endpoint, bound only when configured. Grounded on the
// gin.Engine + promhttp wiring nabbar-golib's prometheus and router
// packages exercise in their own test suites.
package admin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/solus-project/peerdirectoryd/internal/audit"
	"github.com/solus-project/peerdirectoryd/internal/directory"
	"github.com/solus-project/peerdirectoryd/internal/metrics"
)

// Server wraps the admin HTTP surface's gin.Engine and http.Server.
type Server struct {
	httpServer *http.Server
	log        *logrus.Logger
}

// statusResponse is the /status endpoint's JSON body.
type statusResponse struct {
	UptimeSeconds   float64 `json:"uptime_seconds"`
	UsersRegistered int     `json:"users_registered"`
	UsersConnected  int     `json:"users_connected"`
	AuditEnabled    bool    `json:"audit_enabled"`
}

// New builds the admin router bound to addr. It does not start listening;
// call Serve to do that. dir and ac feed /status; reg, when non-nil,
// feeds /metrics through promhttp.
func New(addr string, dir *directory.Directory, ac *audit.Client, reg *metrics.Registry, startedAt time.Time, log *logrus.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/status", func(c *gin.Context) {
		registered, connected := dir.Counts()
		c.JSON(http.StatusOK, statusResponse{
			UptimeSeconds:   time.Since(startedAt).Seconds(),
			UsersRegistered: registered,
			UsersConnected:  connected,
			AuditEnabled:    ac != nil && ac.Enabled(),
		})
	})

	if reg != nil {
		handler := promhttp.HandlerFor(reg.Registry, promhttp.HandlerOpts{})
		r.GET("/metrics", gin.WrapH(handler))
	}

	return &Server{
		httpServer: &http.Server{Addr: addr, Handler: r},
		log:        log,
	}
}

// Serve blocks, serving the admin surface until Close is called. It
// returns nil on a clean shutdown.
func (s *Server) Serve() error {
	s.log.WithField("addr", s.httpServer.Addr).Info("admin: listening")
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Close shuts the admin surface down.
func (s *Server) Close() error {
	return s.httpServer.Close()
}
