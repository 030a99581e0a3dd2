package core

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// DateLayout is the on-disk and wire format of Expense.Date.
const DateLayout = "2006-01-02"

// maxDescriptionLen counts characters, not bytes.
const maxDescriptionLen = 200

const (
	FoodAndDining     Category = "Food & Dining"
	Transportation    Category = "Transportation"
	Shopping          Category = "Shopping"
	Entertainment     Category = "Entertainment"
	BillsAndUtilities Category = "Bills & Utilities"
	Healthcare        Category = "Healthcare"
	Travel            Category = "Travel"
	Education         Category = "Education"
	Groceries         Category = "Groceries"
	Other             Category = "Other"
)

type (
	Category string

	// Expense is a single recorded expense. Records are never edited after creation.
	Expense struct {
		ID          string          `json:"id"`
		Amount      decimal.Decimal `json:"amount"`
		Description string          `json:"description"`
		Category    Category        `json:"category"`
		Date        string          `json:"date"`      // day the expense occurred, YYYY-MM-DD
		CreatedAt   time.Time       `json:"createdAt"` // insertion instant, used for recency only
	}

	// Draft carries the user supplied fields of a new expense.
	Draft struct {
		Amount      decimal.Decimal
		Description string
		Category    Category
		Date        string
	}
)

var (
	ErrMissingAmount      = errors.New("amount is required")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrNegativeAmount     = errors.New("amount cannot be negative")
	ErrEmptyDescription   = errors.New("empty description")
	ErrDescriptionTooLong = errors.New("description too long (max 200 characters)")
	ErrMissingCategory    = errors.New("category is required")
	ErrInvalidCategory    = errors.New("unknown category")
	ErrInvalidDate        = errors.New("date must be formatted as YYYY-MM-DD")
)

var categories = []Category{
	FoodAndDining,
	Transportation,
	Shopping,
	Entertainment,
	BillsAndUtilities,
	Healthcare,
	Travel,
	Education,
	Groceries,
	Other,
}

// Categories returns the fixed category set in display order.
func Categories() []Category {
	return append([]Category(nil), categories...)
}

// ParseCategory matches s against the fixed category set.
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrMissingCategory
	}
	for _, c := range categories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", ErrInvalidCategory
}

func (c Category) Validate() error {
	_, err := ParseCategory(string(c))
	return err
}

func (c Category) String() string {
	return string(c)
}

// NewDraft builds a draft from raw form input. A blank date defaults to today.
func NewDraft(amount, description, category, date string, today time.Time) (Draft, error) {
	amt, err := ParseAmount(amount)
	if err != nil {
		return Draft{}, err
	}
	cat, err := ParseCategory(category)
	if err != nil {
		return Draft{}, err
	}
	date = strings.TrimSpace(date)
	if date == "" {
		date = today.Format(DateLayout)
	}
	d := Draft{
		Amount:      amt,
		Description: strings.TrimSpace(description),
		Category:    cat,
		Date:        date,
	}
	if err := d.Validate(); err != nil {
		return Draft{}, err
	}
	return d, nil
}

func (d Draft) Validate() error {
	if d.Amount.IsNegative() {
		return ErrNegativeAmount
	}
	if len(strings.TrimSpace(d.Description)) == 0 {
		return ErrEmptyDescription
	}
	if utf8.RuneCountInString(d.Description) > maxDescriptionLen {
		return ErrDescriptionTooLong
	}
	if err := d.Category.Validate(); err != nil {
		return err
	}
	if !IsISODate(d.Date) {
		return ErrInvalidDate
	}
	return nil
}

// IsISODate reports whether s is a valid calendar date in YYYY-MM-DD form.
func IsISODate(s string) bool {
	if len(s) != len(DateLayout) {
		return false
	}
	_, err := time.Parse(DateLayout, s)
	return err == nil
}
