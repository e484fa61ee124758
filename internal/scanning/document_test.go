package scanning

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// mockScanner is a mock implementation of Scanner
type mockScanner struct {
	mu       sync.Mutex
	calls    int
	errs     []error
	response string
}

func (m *mockScanner) ScanPage(ctx context.Context, image []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		if err != nil {
			return "", err
		}
	}
	return m.response, nil
}

func (m *mockScanner) Close() error {
	return nil
}

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.Black)
	return img
}

func pngBytes() []byte {
	var buf bytes.Buffer
	Expect(png.Encode(&buf, testImage())).To(Succeed())
	return buf.Bytes()
}

func jpegBytes() []byte {
	var buf bytes.Buffer
	Expect(jpeg.Encode(&buf, testImage(), nil)).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("SplitPages", func() {
	When("the document is a PNG", func() {
		It("should return the image unchanged as a single page", func() {
			data := pngBytes()
			pages, err := SplitPages(data, "image/png")
			Expect(err).NotTo(HaveOccurred())
			Expect(pages).To(HaveLen(1))
			Expect(pages[0]).To(Equal(data))
		})
	})

	When("the document is a JPEG", func() {
		It("should convert it to PNG", func() {
			pages, err := SplitPages(jpegBytes(), "image/jpeg")
			Expect(err).NotTo(HaveOccurred())
			Expect(pages).To(HaveLen(1))
			_, format, decodeErr := image.Decode(bytes.NewReader(pages[0]))
			Expect(decodeErr).NotTo(HaveOccurred())
			Expect(format).To(Equal("png"))
		})
	})

	When("the content type is missing", func() {
		It("should assume an image", func() {
			pages, err := SplitPages(jpegBytes(), "")
			Expect(err).NotTo(HaveOccurred())
			Expect(pages).To(HaveLen(1))
		})
	})

	When("the data is not an image", func() {
		It("returns an error", func() {
			_, err := SplitPages([]byte("plain text"), "text/plain")
			Expect(err).To(MatchError(ContainSubstring("unsupported image format")))
		})
	})

	When("the PDF is corrupt", func() {
		It("returns an error", func() {
			_, err := SplitPages([]byte("%PDF-1.4 garbage"), "application/pdf")
			Expect(err).To(HaveOccurred())
		})
	})
})

var _ = Describe("isHEICFormat", func() {
	It("detects the ftyp brand", func() {
		data := append([]byte{0, 0, 0, 24}, []byte("ftypheic0000")...)
		Expect(isHEICFormat(data)).To(BeTrue())
	})

	It("ignores short data", func() {
		Expect(isHEICFormat([]byte("ftyp"))).To(BeFalse())
	})
})

var _ = Describe("ScanDocument", func() {
	var (
		scanner     *mockScanner
		data        []byte
		contentType string
		pages       []PageText
		err         error
	)

	BeforeEach(func() {
		scanner = &mockScanner{response: `{"line_items": []}`}
		data = pngBytes()
		contentType = "image/png"
	})

	JustBeforeEach(func() {
		pages, err = ScanDocument(context.Background(), scanner, data, contentType, 2)
	})

	When("the scan succeeds", func() {
		It("should return the response per page", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(pages).To(HaveLen(1))
			Expect(pages[0].Text).To(Equal(`{"line_items": []}`))
			Expect(pages[0].Err).NotTo(HaveOccurred())
		})
	})

	When("the page scan fails", func() {
		BeforeEach(func() {
			scanner.errs = []error{errors.New("model overloaded")}
		})

		It("should keep the failure on the page instead of failing the document", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(pages[0].Err).To(MatchError("model overloaded"))
			Expect(pages[0].Error).To(Equal("model overloaded"))
		})
	})

	When("the document cannot be split", func() {
		BeforeEach(func() {
			data = []byte("nope")
			contentType = "text/plain"
		})

		It("returns the error without scanning", func() {
			Expect(err).To(HaveOccurred())
			Expect(pages).To(BeNil())
			Expect(scanner.calls).To(Equal(0))
		})
	})
})

// temporaryError is retryable
type temporaryError struct{}

func (temporaryError) Error() string   { return "try again" }
func (temporaryError) Temporary() bool { return true }

var _ = Describe("Resilient", func() {
	var (
		scanner   *mockScanner
		resilient *Resilient
		cfg       ResilienceConfig
	)

	BeforeEach(func() {
		scanner = &mockScanner{response: "{}"}
		cfg = ResilienceConfig{
			MaxAttempts:     3,
			InitialBackoff:  time.Millisecond,
			MaxBackoff:      2 * time.Millisecond,
			BreakerFailures: 2,
			BreakerTimeout:  time.Minute,
		}
	})

	JustBeforeEach(func() {
		resilient = NewResilient(scanner, "test", cfg)
	})

	When("a temporary error clears", func() {
		BeforeEach(func() {
			scanner.errs = []error{temporaryError{}, temporaryError{}}
		})

		It("should retry until it succeeds", func() {
			text, err := resilient.ScanPage(context.Background(), nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal("{}"))
			Expect(scanner.calls).To(Equal(3))
		})
	})

	When("the error is permanent", func() {
		BeforeEach(func() {
			scanner.errs = []error{errors.New("bad request")}
		})

		It("should not retry", func() {
			_, err := resilient.ScanPage(context.Background(), nil)
			Expect(err).To(MatchError("bad request"))
			Expect(scanner.calls).To(Equal(1))
		})
	})

	When("pages keep failing", func() {
		BeforeEach(func() {
			scanner.errs = []error{errors.New("down"), errors.New("down"), errors.New("down")}
		})

		It("should open the breaker", func() {
			_, err := resilient.ScanPage(context.Background(), nil)
			Expect(err).To(HaveOccurred())
			_, err = resilient.ScanPage(context.Background(), nil)
			Expect(err).To(HaveOccurred())
			_, err = resilient.ScanPage(context.Background(), nil)
			Expect(IsCircuitOpen(err)).To(BeTrue())
			Expect(scanner.calls).To(Equal(2))
		})
	})

	When("calls are rate limited", func() {
		BeforeEach(func() {
			cfg.RequestsPerSecond = 0.5
			cfg.Burst = 1
		})

		It("should refuse a call that cannot start before the deadline", func() {
			_, err := resilient.ScanPage(context.Background(), nil)
			Expect(err).NotTo(HaveOccurred())

			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			_, err = resilient.ScanPage(ctx, nil)
			Expect(err).To(MatchError(ContainSubstring("rate limiter")))
			Expect(scanner.calls).To(Equal(1))
		})
	})

	When("the context is cancelled", func() {
		It("returns the context error", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_, err := resilient.ScanPage(ctx, nil)
			Expect(err).To(MatchError(context.Canceled))
			Expect(scanner.calls).To(Equal(0))
		})
	})
})
