package scanning

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Gemini", func() {
	It("should require an API key", func() {
		_, err := NewGemini(context.Background(), "", "")
		Expect(err).To(MatchError(ContainSubstring("api key is required")))
	})

	It("should configure a deterministic model with the default name", func() {
		g, err := NewGemini(context.Background(), "test-key", "")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(g.Close)

		Expect(g.model.Temperature).NotTo(BeNil())
		Expect(*g.model.Temperature).To(BeZero())
	})
})
