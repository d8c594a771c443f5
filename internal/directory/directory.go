// Package directory implements the concurrent session directory: the
// in-memory registry of users and their published files shared by every
// connection handler.
//
// A single sync.RWMutex guards the whole registry: every mutating
// operation below takes the write side, every pure query takes the read
// side, and any operation that materializes a snapshot does so while
// still holding the lock so the snapshot is atomic with respect to
// concurrent mutation. This mirrors original_source/src/server/claves.c,
// which guards its linked list the same way, just translated from an
// intrusive linked list to a map keyed by user name.
package directory

import (
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/solus-project/peerdirectoryd/internal/statuscode"
)

// MaxNameLen, MaxPathLen and MaxDescriptionLen are the bounded lengths
// assigned to User.Name and File.Path/Description.
const (
	MaxNameLen        = 255
	MaxPathLen        = 255
	MaxDescriptionLen = 255
	MinPort           = 1024
	MaxPort           = 65535
)

// File is a single published file descriptor, owned by exactly one user.
type File struct {
	Path        string
	Description string
}

// User is a registered peer. IP and Port are only meaningful while
// Connected is true.
type User struct {
	Name      string
	Connected bool
	IP        string
	Port      int
	Files     []File
}

// Peer is one row of a ConnectedSnapshot.
type Peer struct {
	Name string
	IP   string
	Port int
}

// Match is one row of a GET_MULTIFILE reply.
type Match struct {
	IP   string
	Port int
	Path string
}

// Directory is the shared, concurrency-safe session registry.
type Directory struct {
	mu    sync.RWMutex
	users map[string]*User
}

// New returns an empty Directory, ready for use.
func New() *Directory {
	return &Directory{users: make(map[string]*User)}
}

// Register creates a user with Connected=false and no files.
func (d *Directory) Register(name string) statuscode.Code {
	if name == "" || len(name) > MaxNameLen {
		return statuscode.RegisterOther
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.users[name]; exists {
		return statuscode.RegisterNameExists
	}

	d.users[name] = &User{Name: name}
	return statuscode.RegisterOK
}

// Unregister destroys a user and all of its files.
func (d *Directory) Unregister(name string) statuscode.Code {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.users[name]; !exists {
		return statuscode.UnregisterNotFound
	}

	delete(d.users, name)
	return statuscode.UnregisterOK
}

// Connect populates ip/port and marks the user connected.
func (d *Directory) Connect(name, ip string, port int) statuscode.Code {
	if name == "" || ip == "" || port < MinPort || port > MaxPort {
		return statuscode.ConnectOther
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	u, exists := d.users[name]
	if !exists {
		return statuscode.ConnectNotFound
	}
	if u.Connected {
		return statuscode.ConnectAlreadyConnected
	}

	u.IP = ip
	u.Port = port
	u.Connected = true
	return statuscode.ConnectOK
}

// Disconnect clears ip/port and marks the user disconnected.
func (d *Directory) Disconnect(name string) statuscode.Code {
	d.mu.Lock()
	defer d.mu.Unlock()

	u, exists := d.users[name]
	if !exists {
		return statuscode.DisconnectNotFound
	}
	if !u.Connected {
		return statuscode.DisconnectNotConnected
	}

	u.IP = ""
	u.Port = 0
	u.Connected = false
	return statuscode.DisconnectOK
}

// Publish appends a file to a connected user's list.
func (d *Directory) Publish(name, path, description string) statuscode.Code {
	if path == "" || len(path) > MaxPathLen || len(description) > MaxDescriptionLen {
		return statuscode.PublishOther
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	u, exists := d.users[name]
	if !exists {
		return statuscode.PublishUserNotFound
	}
	if !u.Connected {
		return statuscode.PublishUserNotConnected
	}
	for _, f := range u.Files {
		if f.Path == path {
			return statuscode.PublishPathExists
		}
	}

	u.Files = append(u.Files, File{Path: path, Description: description})
	return statuscode.PublishOK
}

// Delete removes a file from a user's list.
func (d *Directory) Delete(name, path string) statuscode.Code {
	d.mu.Lock()
	defer d.mu.Unlock()

	u, exists := d.users[name]
	if !exists {
		return statuscode.DeleteUserNotFound
	}
	if !u.Connected {
		return statuscode.DeleteUserNotConnected
	}

	for i, f := range u.Files {
		if f.Path == path {
			u.Files = append(u.Files[:i], u.Files[i+1:]...)
			return statuscode.DeleteOK
		}
	}
	return statuscode.DeleteFileNotFound
}

// ListConnected returns the ConnectedSnapshot for every online peer, after
// checking that requester is itself registered and connected.
func (d *Directory) ListConnected(requester string) (statuscode.Code, []Peer) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	r, exists := d.users[requester]
	if !exists {
		return statuscode.ListConnectedRequesterNotFound, nil
	}
	if !r.Connected {
		return statuscode.ListConnectedRequesterNotOnline, nil
	}

	peers := make([]Peer, 0, len(d.users))
	for _, u := range d.users {
		if u.Connected {
			peers = append(peers, Peer{Name: u.Name, IP: u.IP, Port: u.Port})
		}
	}
	return statuscode.ListConnectedOK, peers
}

// ListFiles returns target's published paths, after checking that
// requester is registered and connected.
func (d *Directory) ListFiles(requester, target string) (statuscode.Code, []string) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	r, exists := d.users[requester]
	if !exists {
		return statuscode.ListFilesRequesterNotFound, nil
	}
	if !r.Connected {
		return statuscode.ListFilesRequesterNotOnline, nil
	}

	t, exists := d.users[target]
	if !exists {
		return statuscode.ListFilesTargetNotFound, nil
	}

	paths := make([]string, 0, len(t.Files))
	for _, f := range t.Files {
		paths = append(paths, f.Path)
	}
	return statuscode.ListFilesOK, paths
}

// GetMultifile returns, for every connected user, every file whose
// basename matches the basename of path. The requester gate reuses the
// ListConnected status codes for its initial requester check.
func (d *Directory) GetMultifile(requester, path string) (statuscode.Code, []Match) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	r, exists := d.users[requester]
	if !exists {
		return statuscode.ListConnectedRequesterNotFound, nil
	}
	if !r.Connected {
		return statuscode.ListConnectedRequesterNotOnline, nil
	}

	target := basename(path)
	var matches []Match
	for _, u := range d.users {
		if !u.Connected {
			continue
		}
		for _, f := range u.Files {
			if basename(f.Path) == target {
				matches = append(matches, Match{IP: u.IP, Port: u.Port, Path: f.Path})
				if len(matches) == statuscode.MaxMatches {
					return statuscode.ListConnectedOK, matches
				}
			}
		}
	}
	return statuscode.ListConnectedOK, matches
}

// Destroy releases every user and file, leaving the directory empty.
// Called only at shutdown.
func (d *Directory) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users = make(map[string]*User)
}

// Counts returns the current registered and connected user counts, used
// by internal/metrics and the admin status endpoint. It takes the read
// lock so the pair is consistent with any concurrent mutation.
func (d *Directory) Counts() (registered, connected int) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	registered = len(d.users)
	for _, u := range d.users {
		if u.Connected {
			connected++
		}
	}
	return registered, connected
}

// basename returns the final path component after the last '/' or '\',
// matching both POSIX- and Windows-formed paths.
func basename(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}

// PeerAddrIP extracts the dotted-quad IPv4 address from an accepted
// connection's remote address, used by the dispatcher's CONNECT handler
// to derive ip from the peer's socket address rather than trust a
// client-supplied value.
func PeerAddrIP(addr net.Addr) string {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return ""
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return host
	}
	if v4 := ip.To4(); v4 != nil {
		return v4.String()
	}
	return ip.String()
}

// ParsePort parses a decimal port string, used by the dispatcher's
// CONNECT handler tail.
func ParsePort(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}
