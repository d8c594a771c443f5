package dispatcher_test

import (
	"bytes"
	"io"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/solus-project/peerdirectoryd/internal/audit"
	"github.com/solus-project/peerdirectoryd/internal/directory"
	"github.com/solus-project/peerdirectoryd/internal/dispatcher"
)

func newHandler(dir *directory.Directory) *dispatcher.Handler {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return &dispatcher.Handler{
		Directory: dir,
		Audit:     audit.New("", nil, log.WithField("component", "audit")),
		Log:       log,
	}
}

// dial accepts exactly one connection on a loopback listener and hands it
// to h.Handle, returning the client side so the test drives a real
// net.Conn with a genuine *net.TCPAddr RemoteAddr — unlike net.Pipe,
// whose RemoteAddr is the unparseable sentinel "pipe".
func dial(h *dispatcher.Handler) (client net.Conn, done chan struct{}) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	Expect(err).ToNot(HaveOccurred())

	done = make(chan struct{})
	go func() {
		defer close(done)
		defer ln.Close()
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		h.Handle(conn)
	}()

	client, err = net.Dial("tcp", ln.Addr().String())
	Expect(err).ToNot(HaveOccurred())
	return client, done
}

// roundTrip writes a request over a fresh loopback connection, lets the
// handler process it, and returns everything the handler wrote back.
func roundTrip(h *dispatcher.Handler, request []byte) []byte {
	client, done := dial(h)
	defer client.Close()

	_, err := client.Write(request)
	Expect(err).ToNot(HaveOccurred())

	var reply bytes.Buffer
	buf := make([]byte, 256)
	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		n, err := client.Read(buf)
		if n > 0 {
			reply.Write(buf[:n])
		}
		if err != nil {
			break
		}
	}

	<-done
	return reply.Bytes()
}

func header(operation, timestamp, username string) []byte {
	var b bytes.Buffer
	b.WriteString(operation)
	b.WriteByte(0)
	b.WriteString(timestamp)
	b.WriteByte(0)
	b.WriteString(username)
	b.WriteByte(0)
	return b.Bytes()
}

var _ = Describe("REGISTER", func() {
	It("replies with status 0 on success", func() {
		h := newHandler(directory.New())
		reply := roundTrip(h, header("REGISTER", "t", "alice"))
		Expect(reply).To(Equal([]byte{0}))
	})

	It("replies with status 1 on a duplicate name", func() {
		dir := directory.New()
		dir.Register("alice")
		h := newHandler(dir)
		reply := roundTrip(h, header("REGISTER", "t", "alice"))
		Expect(reply).To(Equal([]byte{1}))
	})
})

var _ = Describe("CONNECT", func() {
	It("reads the trailing port field and connects the user at its peer address", func() {
		dir := directory.New()
		dir.Register("alice")
		h := newHandler(dir)

		req := append(header("CONNECT", "t", "alice"), []byte("5000\x00")...)
		reply := roundTrip(h, req)
		Expect(reply).To(Equal([]byte{0}))

		code, peers := dir.ListConnected("alice")
		Expect(code.Byte()).To(Equal(byte(0)))
		Expect(peers).To(HaveLen(1))
		Expect(peers[0].IP).To(Equal("127.0.0.1"))
	})

	It("closes the connection without a reply on a truncated port field", func() {
		dir := directory.New()
		dir.Register("alice")
		h := newHandler(dir)

		client, done := dial(h)
		_, err := client.Write(header("CONNECT", "t", "alice"))
		Expect(err).ToNot(HaveOccurred())
		_ = client.Close()
		<-done
	})
})

var _ = Describe("unknown operation", func() {
	It("closes the connection without writing a reply", func() {
		h := newHandler(directory.New())
		reply := roundTrip(h, header("BOGUS", "t", "alice"))
		Expect(reply).To(BeEmpty())
	})
})

var _ = Describe("LIST_USERS", func() {
	It("writes the status, a count, and each peer's fields", func() {
		dir := directory.New()
		dir.Register("alice")
		dir.Connect("alice", "10.0.0.1", 5000)
		h := newHandler(dir)

		reply := roundTrip(h, header("LIST_USERS", "t", "alice"))
		Expect(reply[0]).To(Equal(byte(0)))
		Expect(string(reply[1:])).To(ContainSubstring("1\x00alice\x0010.0.0.1\x00"))
	})
})

var _ = Describe("GET_MULTIFILE", func() {
	It("writes only the no-peers status byte when nothing matches", func() {
		dir := directory.New()
		dir.Register("alice")
		dir.Connect("alice", "10.0.0.1", 5000)
		h := newHandler(dir)

		req := append(header("GET_MULTIFILE", "t", "alice"), []byte("song.mp3\x00")...)
		reply := roundTrip(h, req)
		Expect(reply).To(Equal([]byte{1}))
	})
})
