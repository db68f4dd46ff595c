package client_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/pentestai/pentestai/pkg/client"
)

var _ = Describe("Preferences", func() {
	var path string

	BeforeEach(func() {
		path = filepath.Join(GinkgoT().TempDir(), "nested", "preferences.toml")
	})

	It("returns empty preferences when the file does not exist", func() {
		p, err := client.LoadPreferences(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(p).To(Equal(client.Preferences{}))
	})

	It("round-trips the preferred model", func() {
		Expect(client.Preferences{Model: "deepseek"}.Save(path)).To(Succeed())

		p, err := client.LoadPreferences(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Model).To(Equal("deepseek"))
	})

	It("reports malformed files", func() {
		Expect(os.MkdirAll(filepath.Dir(path), 0o700)).To(Succeed())
		Expect(os.WriteFile(path, []byte("model = "), 0o600)).To(Succeed())

		_, err := client.LoadPreferences(path)
		Expect(err).To(HaveOccurred())
	})

	It("defaults to a file under the home directory", func() {
		p, err := client.DefaultPreferencesPath()
		Expect(err).NotTo(HaveOccurred())
		Expect(p).To(HaveSuffix(filepath.Join(".pentestai", "preferences.toml")))
	})
})

var _ = Describe("ResolveBaseURL", func() {
	BeforeEach(func() {
		prev, had := os.LookupEnv("PENTESTAI_RELAY")
		os.Unsetenv("PENTESTAI_RELAY")
		DeferCleanup(func() {
			if had {
				os.Setenv("PENTESTAI_RELAY", prev)
			} else {
				os.Unsetenv("PENTESTAI_RELAY")
			}
		})
	})

	It("prefers the explicit value", func() {
		os.Setenv("PENTESTAI_RELAY", "http://env:3000")
		Expect(client.ResolveBaseURL("http://flag:3000", client.Preferences{Relay: "http://saved:3000"})).
			To(Equal("http://flag:3000"))
	})

	It("falls back to the environment, then preferences, then the default", func() {
		Expect(client.ResolveBaseURL("", client.Preferences{})).To(Equal(client.DefaultBaseURL))
		Expect(client.ResolveBaseURL("", client.Preferences{Relay: "http://saved:3000"})).To(Equal("http://saved:3000"))

		os.Setenv("PENTESTAI_RELAY", "http://env:3000")
		Expect(client.ResolveBaseURL("", client.Preferences{Relay: "http://saved:3000"})).To(Equal("http://env:3000"))
	})
})
