package reconcile

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Check", func() {
	var (
		cfg     Config
		input   LineItem
		checked LineItem
		issue   *ValidationIssue
	)

	BeforeEach(func() {
		cfg = DefaultConfig()
	})

	JustBeforeEach(func() {
		checked, issue = Check(input, cfg)
	})

	When("the arithmetic holds", func() {
		BeforeEach(func() {
			input = item(0, "Paracetamol", "2", "5.0", "10.0")
		})

		It("should not record an issue", func() {
			Expect(issue).To(BeNil())
		})

		It("should return the item unchanged", func() {
			Expect(checked).To(Equal(input))
		})
	})

	When("the arithmetic holds within tolerance", func() {
		BeforeEach(func() {
			input = item(0, "Paracetamol", "3", "3.33", "10.00")
		})

		It("should not record an issue", func() {
			Expect(issue).To(BeNil())
		})
	})

	When("the quantity was misread", func() {
		BeforeEach(func() {
			input = item(0, "Glucose Strip", "2", "7.35", "36.75")
		})

		It("should repair the quantity", func() {
			Expect(checked.Quantity.String()).To(Equal("5"))
		})

		It("should record arithmetic_repaired", func() {
			Expect(issue).NotTo(BeNil())
			Expect(issue.Kind).To(Equal(IssueArithmeticRepaired))
			Expect(issue.Detail).To(ContainSubstring("quantity corrected from 2 to 5"))
		})

		It("should keep the amount", func() {
			Expect(checked.Amount.StringFixed(2)).To(Equal("36.75"))
		})

		It("should refresh the signature", func() {
			Expect(checked.SourceSignature).To(Equal("glucose strip|5.00|7.35"))
		})
	})

	When("the rate was misread", func() {
		BeforeEach(func() {
			input = item(0, "Insulin Pen", "2", "4.0", "10.0")
		})

		It("should repair the rate", func() {
			Expect(checked.Rate.StringFixed(2)).To(Equal("5.00"))
			Expect(issue.Kind).To(Equal(IssueArithmeticRepaired))
		})
	})

	When("the amount was left at zero", func() {
		BeforeEach(func() {
			input = item(0, "Cotton Roll", "2", "4.25", "0")
		})

		It("should fill in the amount", func() {
			Expect(checked.Amount.StringFixed(2)).To(Equal("8.50"))
			Expect(issue.Kind).To(Equal(IssueArithmeticRepaired))
		})
	})

	When("no field solves cleanly", func() {
		BeforeEach(func() {
			input = item(0, "Syringe", "3", "2.0", "5.5")
		})

		It("should leave the amount as stated", func() {
			Expect(checked.Amount.StringFixed(2)).To(Equal("5.50"))
			Expect(checked).To(Equal(input))
		})

		It("should record arithmetic_mismatch", func() {
			Expect(issue).NotTo(BeNil())
			Expect(issue.Kind).To(Equal(IssueArithmeticMismatch))
			Expect(issue.ItemSignature).To(Equal("syringe|3.00|2.00"))
		})
	})

	When("more than one field solves cleanly", func() {
		BeforeEach(func() {
			input = item(0, "Bandage", "1", "5", "10")
		})

		It("should not guess", func() {
			Expect(checked).To(Equal(input))
			Expect(issue.Kind).To(Equal(IssueArithmeticMismatch))
		})
	})

	Describe("repaired items", func() {
		It("should satisfy the invariant", func() {
			for _, in := range []LineItem{
				item(0, "A", "2", "7.35", "36.75"),
				item(0, "B", "2", "4.0", "10.0"),
				item(0, "C", "2", "4.25", "0"),
				item(0, "D", "4", "12.5", "25"),
			} {
				out, issue := Check(in, cfg)
				Expect(issue).NotTo(BeNil())
				if issue.Kind == IssueArithmeticRepaired {
					diff := out.Amount.Sub(out.Rate.Mul(out.Quantity)).Abs()
					Expect(diff.LessThanOrEqual(cfg.Tolerance)).To(BeTrue(), in.Description)
				}
			}
		})
	})
})

var _ = Describe("CheckPages", func() {
	It("should check every item and keep page order", func() {
		pages := []PageItems{
			{PageIndex: 0, LineItems: []LineItem{item(0, "A", "1", "1", "1")}},
			{PageIndex: 1, LineItems: []LineItem{item(1, "Syringe", "3", "2.0", "5.5"), item(1, "B", "2", "2", "4")}},
		}
		out, issues := CheckPages(pages, DefaultConfig())
		Expect(out).To(HaveLen(2))
		Expect(out[1].PageIndex).To(Equal(1))
		Expect(out[1].LineItems).To(HaveLen(2))
		Expect(issues).To(HaveLen(1))
		Expect(issues[0].PageIndex).To(Equal(1))
	})
})
