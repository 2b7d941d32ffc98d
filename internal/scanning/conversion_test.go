package scanning

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("toPNG", func() {
	var img *image.RGBA

	BeforeEach(func() {
		img = image.NewRGBA(image.Rect(0, 0, 4, 4))
		img.Set(1, 1, color.White)
	})

	It("should pass PNG data through untouched", func() {
		var buf bytes.Buffer
		Expect(png.Encode(&buf, img)).To(Succeed())

		out, err := toPNG(buf.Bytes(), "image/png")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(buf.Bytes()))
	})

	It("should re-encode JPEG as PNG", func() {
		var buf bytes.Buffer
		Expect(jpeg.Encode(&buf, img, nil)).To(Succeed())

		out, err := toPNG(buf.Bytes(), "image/jpeg; charset=binary")
		Expect(err).NotTo(HaveOccurred())
		_, format, err := image.Decode(bytes.NewReader(out))
		Expect(err).NotTo(HaveOccurred())
		Expect(format).To(Equal("png"))
	})

	It("should reject data that is not an image", func() {
		_, err := toPNG([]byte("hello"), "text/plain")
		Expect(err).To(MatchError(ContainSubstring("unsupported receipt image")))
	})
})

var _ = Describe("isHEIC", func() {
	It("should detect the ftyp brand", func() {
		Expect(isHEIC([]byte("\x00\x00\x00\x18ftypheic0000"), "")).To(BeTrue())
		Expect(isHEIC([]byte("\x00\x00\x00\x18ftypmp42"), "")).To(BeFalse())
	})

	It("should trust the MIME type", func() {
		Expect(isHEIC(nil, "image/heif")).To(BeTrue())
	})
})
