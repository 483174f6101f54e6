package reconcile

import (
	"github.com/shopspring/decimal"

	"github.com/bryanwahyu/equity-ledger/internal/domain/equity"
)

func testDoc(id string, class equity.Classification, ext equity.Extraction) *equity.Document {
	return &equity.Document{
		ID:             id,
		AuditID:        "audit-1",
		Filename:       id + ".pdf",
		Classification: class,
		ParseStatus:    equity.ParseSuccess,
		Extracted:      ext,
	}
}

func issuanceDoc(id, date, holder, shares string) *equity.Document {
	return testDoc(id, equity.ClassStockPurchase, &equity.StockPurchaseExtraction{
		Issuances: []equity.StockIssuance{{Date: date, Shareholder: holder, SharesIssued: equity.Num(shares), ShareClass: "common"}},
	})
}

func consentDoc(id, date string, decisions ...string) *equity.Document {
	return testDoc(id, equity.ClassBoardConsent, &equity.MinutesExtraction{MeetingDate: date, KeyDecisions: decisions})
}

func testEvent(date string, typ equity.EventType, holder, class string, delta int64) *equity.EquityEvent {
	return &equity.EquityEvent{
		AuditID:          "audit-1",
		EventDate:        equity.MustDate(date),
		EventType:        typ,
		ShareholderName:  holder,
		ShareClass:       class,
		ShareDelta:       decimal.NewFromInt(delta),
		ComplianceStatus: equity.StatusVerified,
		Details:          map[string]any{},
	}
}
