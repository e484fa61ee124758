package bill

import (
	"errors"
	"io/fs"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LocalStorage", func() {
	var (
		tmpDir  string
		storage Storage
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		var err error
		storage, err = NewLocalStorage(filepath.Join(tmpDir, "bills"))
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Save", func() {
		var (
			name      string
			savedName string
			err       error
		)

		BeforeEach(func() {
			name = "id_bill.pdf"
		})

		JustBeforeEach(func() {
			savedName, err = storage.Save(name, []byte("%PDF-1.4"))
		})

		When("saving succeeds", func() {
			It("should write the file under the base path", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(savedName).To(Equal(name))
				Expect(filepath.Join(tmpDir, "bills", name)).To(BeAnExistingFile())
			})
		})

		When("the name escapes the base path", func() {
			BeforeEach(func() {
				name = "../escape.pdf"
			})

			It("returns an error", func() {
				Expect(err).To(MatchError(ContainSubstring("invalid document name")))
				Expect(filepath.Join(tmpDir, "escape.pdf")).NotTo(BeAnExistingFile())
			})
		})

		When("the name is hidden", func() {
			BeforeEach(func() {
				name = ".bashrc"
			})

			It("returns an error", func() {
				Expect(err).To(HaveOccurred())
			})
		})
	})

	Describe("Get", func() {
		When("the file exists", func() {
			BeforeEach(func() {
				_, err := storage.Save("id_bill.png", []byte("png"))
				Expect(err).NotTo(HaveOccurred())
			})

			It("returns the data", func() {
				data, err := storage.Get("id_bill.png")
				Expect(err).NotTo(HaveOccurred())
				Expect(data).To(Equal([]byte("png")))
			})
		})

		When("the file does not exist", func() {
			It("returns a not-exist error", func() {
				_, err := storage.Get("missing.png")
				Expect(errors.Is(err, fs.ErrNotExist)).To(BeTrue())
			})
		})
	})

	Describe("Delete", func() {
		It("removes the file", func() {
			_, err := storage.Save("id_bill.png", []byte("png"))
			Expect(err).NotTo(HaveOccurred())
			Expect(storage.Delete("id_bill.png")).To(Succeed())
			Expect(filepath.Join(tmpDir, "bills", "id_bill.png")).NotTo(BeAnExistingFile())
		})

		It("returns an error for a missing file", func() {
			Expect(storage.Delete("missing.png")).NotTo(Succeed())
		})
	})
})
