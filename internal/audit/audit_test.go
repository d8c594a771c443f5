package audit_test

import (
	"io"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/solus-project/peerdirectoryd/internal/audit"
	"github.com/solus-project/peerdirectoryd/internal/metrics"
)

func newLogEntry() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log.WithField("component", "audit_test")
}

var _ = Describe("Emit", func() {
	It("sends one datagram to the configured sink", func() {
		pc, err := net.ListenPacket("udp", "127.0.0.1:0")
		Expect(err).ToNot(HaveOccurred())
		defer pc.Close()

		reg := metrics.New()
		c := audit.New(pc.LocalAddr().String(), reg, newLogEntry())

		c.Emit(audit.Event{Username: "alice", Operation: "REGISTER", Timestamp: "t", Filename: ""})

		buf := make([]byte, 256)
		_ = pc.SetReadDeadline(time.Now().Add(2 * time.Second))
		n, _, err := pc.ReadFrom(buf)
		Expect(err).ToNot(HaveOccurred())
		Expect(string(buf[:n])).To(Equal("alice\x00REGISTER\x00t\x00\x00"))
	})

	It("does not panic or block when no sink is configured", func() {
		c := audit.New("", nil, newLogEntry())
		Expect(func() {
			c.Emit(audit.Event{Username: "alice", Operation: "REGISTER", Timestamp: "t"})
		}).ToNot(Panic())
	})

	It("is safe to Close without ever having dialed", func() {
		c := audit.New("", nil, newLogEntry())
		Expect(c.Close()).To(Succeed())
	})
})
