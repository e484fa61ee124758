package reconcile

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Deduplicate", func() {
	var (
		cfg    Config
		pages  []PageItems
		out    []PageItems
		issues []ValidationIssue
	)

	BeforeEach(func() {
		cfg = DefaultConfig()
	})

	JustBeforeEach(func() {
		out, issues = Deduplicate(pages, cfg)
	})

	When("the next page repeats the last row", func() {
		BeforeEach(func() {
			pages = []PageItems{
				{PageIndex: 1, LineItems: []LineItem{
					item(1, "Gauze", "1", "3", "3"),
					item(1, "Paracetamol", "2", "5.0", "10.0"),
				}},
				{PageIndex: 2, LineItems: []LineItem{
					item(2, "Paracetamol", "2", "5.0", "10.0"),
					item(2, "Syringe", "3", "2", "6"),
				}},
			}
		})

		It("should remove the copy on the later page", func() {
			Expect(out[0].LineItems).To(HaveLen(2))
			Expect(out[1].LineItems).To(HaveLen(1))
			Expect(out[1].LineItems[0].Description).To(Equal("Syringe"))
		})

		It("should record a duplicate_removed issue", func() {
			Expect(issues).To(HaveLen(1))
			Expect(issues[0].Kind).To(Equal(IssueDuplicateRemoved))
			Expect(issues[0].PageIndex).To(Equal(2))
			Expect(issues[0].ItemSignature).To(Equal("paracetamol|2.00|5.00"))
		})

		It("should not modify the input", func() {
			Expect(pages[1].LineItems).To(HaveLen(2))
		})

		It("should keep the removed row with its page", func() {
			Expect(out[1].Removed).To(HaveLen(1))
			Expect(out[1].Removed[0].Description).To(Equal("Paracetamol"))
			Expect(pages[1].Removed).To(BeEmpty())
		})
	})

	When("the next page starts with several copies of the last row", func() {
		BeforeEach(func() {
			pages = []PageItems{
				{PageIndex: 1, LineItems: []LineItem{
					item(1, "Gauze", "1", "3", "3"),
					item(1, "Paracetamol", "2", "5", "10"),
				}},
				{PageIndex: 2, LineItems: []LineItem{
					item(2, "Paracetamol", "2", "5", "10"),
					item(2, "Paracetamol", "2", "5", "10"),
					item(2, "Syringe", "3", "2", "6"),
				}},
			}
		})

		It("should remove every copy so a second pass finds nothing", func() {
			Expect(out[1].LineItems).To(HaveLen(1))
			Expect(out[1].LineItems[0].Description).To(Equal("Syringe"))
			Expect(issues).To(HaveLen(2))

			again, moreIssues := Deduplicate(out, cfg)
			Expect(moreIssues).To(BeEmpty())
			Expect(again).To(Equal(out))
		})
	})

	When("the repeated row has small OCR drift in the amount", func() {
		BeforeEach(func() {
			pages = []PageItems{
				{PageIndex: 1, LineItems: []LineItem{item(1, "Paracetamol", "2", "5", "10.00")}},
				{PageIndex: 2, LineItems: []LineItem{item(2, "paracetamol ", "2", "5", "10.01")}},
			}
		})

		It("should treat it as a duplicate", func() {
			Expect(out[1].LineItems).To(BeEmpty())
			Expect(issues).To(HaveLen(1))
		})
	})

	When("the amounts differ beyond tolerance", func() {
		BeforeEach(func() {
			pages = []PageItems{
				{PageIndex: 1, LineItems: []LineItem{item(1, "Paracetamol", "2", "5", "10.00")}},
				{PageIndex: 2, LineItems: []LineItem{item(2, "Paracetamol", "2", "5", "12.00")}},
			}
		})

		It("should keep both as distinct purchases", func() {
			Expect(out[1].LineItems).To(HaveLen(1))
			Expect(issues).To(BeEmpty())
		})
	})

	When("the repeated row is outside the window", func() {
		BeforeEach(func() {
			pages = []PageItems{
				{PageIndex: 1, LineItems: []LineItem{
					item(1, "Paracetamol", "2", "5", "10"),
					item(1, "A", "1", "1", "1"),
					item(1, "B", "1", "2", "2"),
					item(1, "C", "1", "3", "3"),
				}},
				{PageIndex: 2, LineItems: []LineItem{item(2, "Paracetamol", "2", "5", "10")}},
			}
		})

		It("should keep it", func() {
			Expect(out[1].LineItems).To(HaveLen(1))
			Expect(issues).To(BeEmpty())
		})
	})

	When("the pages are not adjacent", func() {
		BeforeEach(func() {
			pages = []PageItems{
				{PageIndex: 1, LineItems: []LineItem{item(1, "Paracetamol", "2", "5", "10")}},
				{PageIndex: 3, LineItems: []LineItem{item(3, "Paracetamol", "2", "5", "10")}},
			}
		})

		It("should not compare them", func() {
			Expect(out[1].LineItems).To(HaveLen(1))
			Expect(issues).To(BeEmpty())
		})
	})

	When("there is a single page with fewer items than the window", func() {
		BeforeEach(func() {
			pages = []PageItems{
				{PageIndex: 0, LineItems: []LineItem{item(0, "Paracetamol", "2", "5", "10")}},
			}
		})

		It("should return the page untouched", func() {
			Expect(out).To(HaveLen(1))
			Expect(out[0].LineItems).To(HaveLen(1))
			Expect(issues).To(BeEmpty())
		})
	})

	When("a page is empty", func() {
		BeforeEach(func() {
			pages = []PageItems{
				{PageIndex: 0, LineItems: nil},
				{PageIndex: 1, LineItems: []LineItem{item(1, "Paracetamol", "2", "5", "10")}},
				{PageIndex: 2, LineItems: []LineItem{}},
			}
		})

		It("should not fail", func() {
			Expect(out).To(HaveLen(3))
			Expect(issues).To(BeEmpty())
		})
	})

	When("the window is disabled", func() {
		BeforeEach(func() {
			cfg.DedupWindow = 0
			pages = []PageItems{
				{PageIndex: 1, LineItems: []LineItem{item(1, "Paracetamol", "2", "5", "10")}},
				{PageIndex: 2, LineItems: []LineItem{item(2, "Paracetamol", "2", "5", "10")}},
			}
		})

		It("should remove nothing", func() {
			Expect(out[1].LineItems).To(HaveLen(1))
			Expect(issues).To(BeEmpty())
		})
	})

	Describe("idempotence", func() {
		BeforeEach(func() {
			pages = []PageItems{
				{PageIndex: 1, LineItems: []LineItem{
					item(1, "A", "1", "1", "1"),
					item(1, "B", "1", "2", "2"),
					item(1, "C", "1", "3", "3"),
				}},
				{PageIndex: 2, LineItems: []LineItem{
					item(2, "A", "1", "1", "1"),
					item(2, "X", "1", "4", "4"),
					item(2, "Y", "1", "5", "5"),
					item(2, "Q", "1", "7", "7"),
					item(2, "C", "1", "3", "3"),
				}},
				{PageIndex: 3, LineItems: []LineItem{
					item(3, "C", "1", "3", "3"),
					item(3, "Z", "1", "6", "6"),
				}},
			}
		})

		It("should remove nothing on a second pass", func() {
			again, moreIssues := Deduplicate(out, cfg)
			Expect(moreIssues).To(BeEmpty())
			Expect(again).To(Equal(out))
		})

		It("should stop scanning once the window of kept rows is full", func() {
			Expect(issues).To(HaveLen(2))
			descs := []string{}
			for _, l := range out[1].LineItems {
				descs = append(descs, l.Description)
			}
			Expect(descs).To(Equal([]string{"X", "Y", "Q", "C"}))
		})

		It("should compare the next pair using the deduplicated page", func() {
			Expect(out[2].LineItems).To(HaveLen(1))
			Expect(out[2].LineItems[0].Description).To(Equal("Z"))
		})
	})
})
