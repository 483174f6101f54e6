package equity

import "github.com/shopspring/decimal"

// CapTableRow is one holder/class position in the issued-and-outstanding view.
type CapTableRow struct {
	Shareholder      string          `json:"shareholder"`
	ShareClass       string          `json:"share_class"`
	Shares           decimal.Decimal `json:"shares"`
	OwnershipPct     float64         `json:"ownership_pct"`
	ComplianceIssues []string        `json:"compliance_issues"`
}

// CapTableSnapshot is a derived, never-stored projection of the ledger at AsOfDate.
// Inactive lists positions that netted to zero or below; they carry no percentage.
type CapTableSnapshot struct {
	AsOfDate     Date            `json:"as_of_date"`
	Shareholders []CapTableRow   `json:"shareholders"`
	TotalShares  decimal.Decimal `json:"total_shares"`
	Inactive     []CapTableRow   `json:"inactive,omitempty"`
}

// FullyDilutedRow merges a holder's issued shares with unexercised option grants.
type FullyDilutedRow struct {
	Shareholder string          `json:"shareholder"`
	Issued      decimal.Decimal `json:"issued"`
	Options     decimal.Decimal `json:"options"`
	Total       decimal.Decimal `json:"total"`
	Pct         float64         `json:"pct"`
}

type FullyDilutedSnapshot struct {
	AsOfDate     Date              `json:"as_of_date"`
	Shareholders []FullyDilutedRow `json:"shareholders"`
	TotalIssued  decimal.Decimal   `json:"total_issued"`
	TotalOptions decimal.Decimal   `json:"total_options"`
	GrandTotal   decimal.Decimal   `json:"grand_total"`
}

// OptionGrantView is an option grant outstanding as of a date.
type OptionGrantView struct {
	EventID         EventID             `json:"event_id"`
	Recipient       string              `json:"recipient"`
	GrantDate       Date                `json:"grant_date"`
	Shares          decimal.Decimal     `json:"shares"`
	StrikePrice     decimal.NullDecimal `json:"strike_price"`
	VestingSchedule string              `json:"vesting_schedule,omitempty"`
	ExpirationDate  Date                `json:"expiration_date"`
}
