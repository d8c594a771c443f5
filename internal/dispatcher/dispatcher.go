// Package dispatcher implements the per-connection request-handling state
// machine: it reads the protocol header, routes to an operation handler,
// writes the reply, and emits one audit event, generalizing
// original_source/src/server/server.c's handle_request/handle_* functions
// from its four operations to all nine directory operations.
package dispatcher

import (
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/solus-project/peerdirectoryd/internal/audit"
	"github.com/solus-project/peerdirectoryd/internal/directory"
	"github.com/solus-project/peerdirectoryd/internal/metrics"
	"github.com/solus-project/peerdirectoryd/internal/statuscode"
	"github.com/solus-project/peerdirectoryd/internal/wire"
)

const (
	maxOperationLen = 64
	maxTimestampLen = 64
	maxUsernameLen  = 255
	maxPathLen      = 256
	maxDescLen      = 256
	maxPortFieldLen = 16
)

// Handler wires together the directory, audit client, and metrics a
// dispatched connection needs.
type Handler struct {
	Directory *directory.Directory
	Audit     *audit.Client
	Metrics   *metrics.Registry
	Log       *logrus.Logger

	// IdleTimeout bounds how long Handle will wait on the connection's
	// reads, covering the header and any operation-specific tail fields.
	// Zero disables the deadline.
	IdleTimeout time.Duration
}

// outcome is the result of one operation handler. protocolErr marks a
// short/truncated/oversize read: the connection is closed with no status
// byte and no audit event beyond what had already succeeded. replied is
// false for the unknown-operation path, which logs an UNKNOWN audit event
// but writes no status byte either.
type outcome struct {
	status      byte
	filename    string
	replied     bool
	protocolErr bool
}

// Handle owns conn end to end: it reads exactly one request, writes at
// most one reply, and closes the connection before returning. A worker
// that fails mid-reply closes its socket silently.
func (h *Handler) Handle(conn net.Conn) {
	defer conn.Close()

	if h.IdleTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(h.IdleTimeout))
	}

	reqID := uuid.NewString()
	remote := conn.RemoteAddr().String()
	log := h.Log.WithFields(logrus.Fields{"request_id": reqID, "remote_addr": remote})

	operation, err := wire.ReadField(conn, maxOperationLen)
	if err != nil {
		log.WithError(err).Debug("dispatcher: failed to read operation header")
		return
	}
	timestamp, err := wire.ReadField(conn, maxTimestampLen)
	if err != nil {
		log.WithError(err).Debug("dispatcher: failed to read timestamp header")
		return
	}
	username, err := wire.ReadField(conn, maxUsernameLen)
	if err != nil {
		log.WithError(err).Debug("dispatcher: failed to read username header")
		return
	}

	log = log.WithFields(logrus.Fields{"operation": operation, "username": username})
	log.Debug("dispatcher: request received")

	start := time.Now()
	out, known := h.dispatch(conn, operation, username)
	duration := time.Since(start)

	if !known {
		log.Info("dispatcher: unknown operation, connection closed without a reply")
		h.emit(username, "UNKNOWN", timestamp, "")
		return
	}

	if out.protocolErr {
		log.Debug("dispatcher: protocol error reading request tail, connection closed without a reply")
		return
	}

	log.WithFields(logrus.Fields{
		"status":      out.status,
		"duration_ms": duration.Milliseconds(),
	}).Info("dispatcher: request handled")

	if h.Metrics != nil {
		h.Metrics.ObserveRequest(operation, out.status)
	}
	h.emit(username, operation, timestamp, out.filename)
}

// dispatch routes to the operation-specific handler. known is false only
// for an unrecognized operation.
func (h *Handler) dispatch(conn net.Conn, operation, username string) (out outcome, known bool) {
	switch operation {
	case "REGISTER":
		return h.handleRegister(conn, username), true
	case "UNREGISTER":
		return h.handleUnregister(conn, username), true
	case "CONNECT":
		return h.handleConnect(conn, username), true
	case "DISCONNECT":
		return h.handleDisconnect(conn, username), true
	case "PUBLISH":
		return h.handlePublish(conn, username), true
	case "DELETE":
		return h.handleDelete(conn, username), true
	case "LIST_USERS":
		return h.handleListUsers(conn, username), true
	case "LIST_CONTENT":
		return h.handleListContent(conn, username), true
	case "GET_MULTIFILE":
		return h.handleGetMultifile(conn, username), true
	default:
		return outcome{}, false
	}
}

func (h *Handler) handleRegister(conn net.Conn, username string) outcome {
	code := h.Directory.Register(username)
	h.observeDirectory()
	return h.reply(conn, code.Byte())
}

func (h *Handler) handleUnregister(conn net.Conn, username string) outcome {
	code := h.Directory.Unregister(username)
	h.observeDirectory()
	return h.reply(conn, code.Byte())
}

func (h *Handler) handleConnect(conn net.Conn, username string) outcome {
	portStr, err := wire.ReadField(conn, maxPortFieldLen)
	if err != nil {
		return outcome{protocolErr: true}
	}
	port, valid := directory.ParsePort(portStr)
	if !valid {
		return h.reply(conn, statuscode.ConnectOther.Byte())
	}

	ip := directory.PeerAddrIP(conn.RemoteAddr())
	code := h.Directory.Connect(username, ip, port)
	h.observeDirectory()
	return h.reply(conn, code.Byte())
}

func (h *Handler) handleDisconnect(conn net.Conn, username string) outcome {
	code := h.Directory.Disconnect(username)
	h.observeDirectory()
	return h.reply(conn, code.Byte())
}

func (h *Handler) handlePublish(conn net.Conn, username string) outcome {
	path, err := wire.ReadField(conn, maxPathLen)
	if err != nil {
		return outcome{protocolErr: true}
	}
	description, err := wire.ReadField(conn, maxDescLen)
	if err != nil {
		return outcome{protocolErr: true}
	}

	code := h.Directory.Publish(username, path, description)
	h.observeDirectory()
	out := h.reply(conn, code.Byte())
	out.filename = path
	return out
}

func (h *Handler) handleDelete(conn net.Conn, username string) outcome {
	path, err := wire.ReadField(conn, maxPathLen)
	if err != nil {
		return outcome{protocolErr: true}
	}

	code := h.Directory.Delete(username, path)
	h.observeDirectory()
	out := h.reply(conn, code.Byte())
	out.filename = path
	return out
}

func (h *Handler) handleListUsers(conn net.Conn, username string) outcome {
	code, peers := h.Directory.ListConnected(username)
	if code != statuscode.ListConnectedOK {
		return h.reply(conn, code.Byte())
	}

	if err := wire.WriteStatus(conn, code.Byte()); err != nil {
		return outcome{replied: true, status: code.Byte()}
	}
	if err := wire.WriteDecimalCount(conn, len(peers)); err != nil {
		return outcome{replied: true, status: code.Byte()}
	}
	for _, p := range peers {
		if wire.WriteField(conn, p.Name) != nil ||
			wire.WriteField(conn, p.IP) != nil ||
			wire.WriteDecimalCount(conn, p.Port) != nil {
			return outcome{replied: true, status: code.Byte()}
		}
	}
	return outcome{replied: true, status: code.Byte()}
}

func (h *Handler) handleListContent(conn net.Conn, username string) outcome {
	target, err := wire.ReadField(conn, maxUsernameLen)
	if err != nil {
		return outcome{protocolErr: true}
	}

	code, paths := h.Directory.ListFiles(username, target)
	if code != statuscode.ListFilesOK {
		out := h.reply(conn, code.Byte())
		out.filename = target
		return out
	}

	if err := wire.WriteStatus(conn, code.Byte()); err == nil {
		if wire.WriteDecimalCount(conn, len(paths)) == nil {
			for _, p := range paths {
				if wire.WriteField(conn, p) != nil {
					break
				}
			}
		}
	}
	return outcome{replied: true, status: code.Byte(), filename: target}
}

func (h *Handler) handleGetMultifile(conn net.Conn, username string) outcome {
	path, err := wire.ReadField(conn, maxPathLen)
	if err != nil {
		return outcome{protocolErr: true}
	}

	code, matches := h.Directory.GetMultifile(username, path)
	if code != statuscode.ListConnectedOK {
		out := h.reply(conn, code.Byte())
		out.filename = path
		return out
	}

	// The "no peers" path returns exactly one status byte (1) and stops;
	// it does not also write the unconditional status 0 the populated
	// path writes before its match list.
	if len(matches) == 0 {
		out := h.reply(conn, statuscode.MultifileNoPeers.Byte())
		out.filename = path
		return out
	}

	if err := wire.WriteStatus(conn, statuscode.ListConnectedOK.Byte()); err == nil {
		if wire.WriteByteCount(conn, len(matches)) == nil {
			for _, m := range matches {
				if wire.WriteField(conn, m.IP) != nil ||
					wire.WriteDecimalCount(conn, m.Port) != nil ||
					wire.WriteField(conn, m.Path) != nil {
					break
				}
			}
		}
	}
	return outcome{replied: true, status: statuscode.ListConnectedOK.Byte(), filename: path}
}

// reply writes a bare status byte, the common case for handlers whose
// tail (if any) has already been consumed successfully.
func (h *Handler) reply(conn net.Conn, status byte) outcome {
	if err := wire.WriteStatus(conn, status); err != nil {
		h.Log.WithError(errors.Wrap(err, "dispatcher")).Debug("dispatcher: reply write failed")
	}
	return outcome{replied: true, status: status}
}

func (h *Handler) observeDirectory() {
	if h.Metrics == nil {
		return
	}
	registered, connected := h.Directory.Counts()
	h.Metrics.ObserveDirectory(registered, connected)
}

func (h *Handler) emit(username, operation, timestamp, filename string) {
	if h.Audit == nil {
		return
	}
	h.Audit.Emit(audit.Event{
		Username:  username,
		Operation: operation,
		Timestamp: timestamp,
		Filename:  filename,
	})
}
