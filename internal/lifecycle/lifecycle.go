// Package lifecycle implements signal-driven graceful shutdown: close the
// listener, destroy the directory, exit.
//
// original_source/src/server/server.c wires SIGINT/SIGTERM to
// handle_poweroff, which closes the listening socket, calls destroy(),
// and exit(EXIT_SUCCESS)s. This package is the same three steps,
// orchestrated with signal.NotifyContext and golang.org/x/sync/errgroup
// instead of a bare signal handler, and joins teardown errors with
// github.com/hashicorp/go-multierror for a single log line instead of
// silently discarding the second error if both teardown steps fail.
package lifecycle

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/solus-project/peerdirectoryd/internal/audit"
	"github.com/solus-project/peerdirectoryd/internal/directory"
	"github.com/solus-project/peerdirectoryd/internal/listener"
)

// Closer is anything with a teardown step that can fail; both
// *listener.Listener and *audit.Client satisfy it via their Close
// methods, used directly below rather than through this alias.
type Closer interface {
	Close() error
}

// Run blocks until SIGINT/SIGTERM or serve returns on its own, then tears
// down ln, dir, and ac in that order, joining any teardown errors.
//
// On a signal-triggered shutdown, Run always returns nil: a teardown
// error is logged but never turns a deliberate, operator-requested
// shutdown into a non-zero exit. A non-nil return is reserved for the
// case where serve exits on its own (a listener accept/bind failure
// unrelated to shutdown); teardown errors from that path are folded into
// the returned error too, since there is no graceful outcome to protect.
func Run(ctx context.Context, ln *listener.Listener, dir *directory.Directory, ac *audit.Client, log *logrus.Logger, serve func(context.Context) error) error {
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(sigCtx)
	g.Go(func() error {
		return serve(gctx)
	})

	<-gctx.Done()
	signalTriggered := sigCtx.Err() != nil

	if signalTriggered {
		log.Info("lifecycle: shutdown signal received, closing listener")
	} else {
		log.Warn("lifecycle: serve exited on its own, closing listener")
	}

	var teardown *multierror.Error
	if err := ln.Close(); err != nil {
		teardown = multierror.Append(teardown, err)
	}

	dir.Destroy()
	log.Info("lifecycle: directory destroyed")

	if ac != nil {
		if err := ac.Close(); err != nil {
			teardown = multierror.Append(teardown, err)
		}
	}

	if err := g.Wait(); err != nil {
		teardown = multierror.Append(teardown, err)
	}

	if teardown != nil {
		log.WithError(teardown).Warn("lifecycle: errors during shutdown teardown")
	}

	if signalTriggered {
		log.Info("lifecycle: graceful shutdown complete")
		return nil
	}

	if teardown != nil {
		return teardown
	}
	return nil
}
