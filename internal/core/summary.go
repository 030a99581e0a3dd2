package core

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// CategoryAmount represents an amount aggregated by category.
type CategoryAmount struct {
	Category Category        `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
}

// MonthAmount represents an amount aggregated by YYYY-MM month key.
type MonthAmount struct {
	Month  string          `json:"month"`
	Amount decimal.Decimal `json:"amount"`
}

// CategoryShare is a category total together with its share of the overall total.
type CategoryShare struct {
	CategoryAmount
	Percent float64 `json:"percent"`
}

// Trend compares the most recent month against the month before it.
// HasPrior is false when there is no prior month or the prior total is zero;
// Percent is 0 in that case.
type Trend struct {
	Percent  float64     `json:"percent"`
	Current  MonthAmount `json:"current"`
	Previous MonthAmount `json:"previous"`
	HasPrior bool        `json:"hasPrior"`
}

// Summary is the report view over a set of records.
type Summary struct {
	Total         decimal.Decimal `json:"total"`
	Count         int             `json:"count"`
	DailyAverage  decimal.Decimal `json:"dailyAverage"`
	Trend         Trend           `json:"trend"`
	TopCategories []CategoryShare `json:"topCategories"`
	ByMonth       []MonthAmount   `json:"byMonth"`
	Recent        []Expense       `json:"recent"`
}

// Settings is the secondary persisted state unrelated to expense records.
type Settings struct {
	Note        string `json:"note"`
	DisplayName string `json:"displayName"`
	Avatar      string `json:"avatar,omitempty"`
	Theme       string `json:"theme"`
	APIKey      string `json:"apiKey"` // masked unless read through prefs.APIKey
	HasAPIKey   bool   `json:"hasApiKey"`
}

const (
	EventCreated EventType = "created"
	EventDeleted EventType = "deleted"
	EventCleared EventType = "cleared"
)

type EventType string

// RecordEvent notifies interested parties that the record list changed.
type RecordEvent struct {
	Type      EventType       `json:"type"`
	ID        string          `json:"id,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	Category  Category        `json:"category,omitempty"`
	Date      string          `json:"date,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewRecordEvent describes a change to a single record.
func NewRecordEvent(t EventType, e Expense, at time.Time) RecordEvent {
	return RecordEvent{
		Type:      t,
		ID:        e.ID,
		Amount:    e.Amount,
		Category:  e.Category,
		Date:      e.Date,
		Timestamp: at,
	}
}

// ToJSON converts the event to JSON bytes
func (e RecordEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// RecordEventFromJSON decodes an event produced by ToJSON.
func RecordEventFromJSON(data []byte) (RecordEvent, error) {
	var ev RecordEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return RecordEvent{}, err
	}
	return ev, nil
}
