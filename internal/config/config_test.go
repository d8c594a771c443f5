package config_test

import (
	"github.com/spf13/pflag"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/solus-project/peerdirectoryd/internal/config"
)

var _ = Describe("Load", func() {
	It("applies built-in defaults with no file and no flags", func() {
		cfg, err := config.Load(9000, "", nil)
		Expect(err).ToNot(HaveOccurred())
		Expect(cfg.ListenPort).To(Equal(9000))
		Expect(cfg.LogLevel).To(Equal("info"))
		Expect(cfg.LogFormat).To(Equal("text"))
		Expect(cfg.AdminAddr).To(Equal(""))
	})

	It("lets a flag override the default", func() {
		fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
		config.BindFlags(fs)
		Expect(fs.Set("log-level", "debug")).To(Succeed())

		cfg, err := config.Load(9000, "", fs)
		Expect(err).ToNot(HaveOccurred())
		Expect(cfg.LogLevel).To(Equal("debug"))
	})

	It("rejects a port outside the valid range", func() {
		_, err := config.Load(80, "", nil)
		Expect(err).To(HaveOccurred())
	})

	It("rejects an unrecognized log level", func() {
		fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
		config.BindFlags(fs)
		Expect(fs.Set("log-level", "verbose")).To(Succeed())

		_, err := config.Load(9000, "", fs)
		Expect(err).To(HaveOccurred())
	})
})
