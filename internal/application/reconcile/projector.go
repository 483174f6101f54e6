package reconcile

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/bryanwahyu/equity-ledger/internal/domain/equity"
)

// Projections are pure functions of (ledger, as-of date): no I/O, no shared state,
// identical input gives identical output.

var hundredths = decimal.NewFromInt(10000)

type position struct {
	name   string
	class  string
	shares decimal.Decimal
}

// Project computes the issued-and-outstanding cap table as of asOf.
func Project(events []*equity.EquityEvent, asOf equity.Date) equity.CapTableSnapshot {
	positions := map[string]*position{}
	var order []string
	notes := complianceNotes(events, asOf)

	for _, e := range events {
		if e.EventDate.After(asOf) || e.HolderKey() == "" {
			continue
		}
		if e.EventType != equity.EventIssuance && e.EventType != equity.EventRepurchase {
			continue
		}
		k := e.HolderKey() + "\x00" + e.ShareClass
		p, ok := positions[k]
		if !ok {
			p = &position{name: e.ShareholderName, class: e.ShareClass, shares: decimal.Zero}
			positions[k] = p
			order = append(order, k)
		}
		p.shares = p.shares.Add(e.ShareDelta)
	}

	snap := equity.CapTableSnapshot{AsOfDate: asOf, Shareholders: []equity.CapTableRow{}, TotalShares: decimal.Zero}
	var active []*position
	for _, k := range order {
		p := positions[k]
		if p.shares.Sign() > 0 {
			active = append(active, p)
			snap.TotalShares = snap.TotalShares.Add(p.shares)
			continue
		}
		snap.Inactive = append(snap.Inactive, equity.CapTableRow{
			Shareholder:      p.name,
			ShareClass:       p.class,
			Shares:           p.shares,
			ComplianceIssues: notesFor(notes, p.name),
		})
	}
	sort.SliceStable(snap.Inactive, func(i, j int) bool { return snap.Inactive[i].Shareholder < snap.Inactive[j].Shareholder })

	if snap.TotalShares.IsZero() {
		return snap
	}

	sort.SliceStable(active, func(i, j int) bool {
		if c := active[i].shares.Cmp(active[j].shares); c != 0 {
			return c > 0
		}
		if active[i].name != active[j].name {
			return active[i].name < active[j].name
		}
		return active[i].class < active[j].class
	})
	shares := make([]decimal.Decimal, len(active))
	for i, p := range active {
		shares[i] = p.shares
	}
	pcts := allocatePercent(shares, snap.TotalShares)
	for i, p := range active {
		snap.Shareholders = append(snap.Shareholders, equity.CapTableRow{
			Shareholder:      p.name,
			ShareClass:       p.class,
			Shares:           p.shares,
			OwnershipPct:     pcts[i],
			ComplianceIssues: notesFor(notes, p.name),
		})
	}
	return snap
}

// ProjectFullyDiluted merges issued positions with outstanding option grants per holder.
// SAFEs and convertible notes are not converted.
func ProjectFullyDiluted(events []*equity.EquityEvent, asOf equity.Date) equity.FullyDilutedSnapshot {
	type holder struct {
		name    string
		issued  decimal.Decimal
		options decimal.Decimal
	}
	holders := map[string]*holder{}
	var order []string
	get := func(e *equity.EquityEvent) *holder {
		h, ok := holders[e.HolderKey()]
		if !ok {
			h = &holder{name: e.ShareholderName, issued: decimal.Zero, options: decimal.Zero}
			holders[e.HolderKey()] = h
			order = append(order, e.HolderKey())
		}
		return h
	}

	for _, e := range events {
		if e.EventDate.After(asOf) || e.HolderKey() == "" {
			continue
		}
		switch e.EventType {
		case equity.EventIssuance, equity.EventRepurchase:
			h := get(e)
			h.issued = h.issued.Add(e.ShareDelta)
		case equity.EventOptionGrant:
			if optionExpired(e, asOf) {
				continue
			}
			h := get(e)
			h.options = h.options.Add(e.ShareDelta)
		}
	}

	snap := equity.FullyDilutedSnapshot{
		AsOfDate:     asOf,
		Shareholders: []equity.FullyDilutedRow{},
		TotalIssued:  decimal.Zero,
		TotalOptions: decimal.Zero,
		GrandTotal:   decimal.Zero,
	}
	var rows []equity.FullyDilutedRow
	for _, k := range order {
		h := holders[k]
		issued := decimal.Max(h.issued, decimal.Zero)
		total := issued.Add(h.options)
		if total.Sign() <= 0 {
			continue
		}
		rows = append(rows, equity.FullyDilutedRow{Shareholder: h.name, Issued: issued, Options: h.options, Total: total})
		snap.TotalIssued = snap.TotalIssued.Add(issued)
		snap.TotalOptions = snap.TotalOptions.Add(h.options)
		snap.GrandTotal = snap.GrandTotal.Add(total)
	}
	if snap.GrandTotal.IsZero() {
		return snap
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if c := rows[i].Total.Cmp(rows[j].Total); c != 0 {
			return c > 0
		}
		return rows[i].Shareholder < rows[j].Shareholder
	})
	totals := make([]decimal.Decimal, len(rows))
	for i := range rows {
		totals[i] = rows[i].Total
	}
	pcts := allocatePercent(totals, snap.GrandTotal)
	for i := range rows {
		rows[i].Pct = pcts[i]
	}
	snap.Shareholders = rows
	return snap
}

// ActiveOptions lists option grants made on or before asOf that have not expired by asOf.
func ActiveOptions(events []*equity.EquityEvent, asOf equity.Date) []equity.OptionGrantView {
	out := []equity.OptionGrantView{}
	for _, e := range events {
		if e.EventType != equity.EventOptionGrant || e.EventDate.After(asOf) || optionExpired(e, asOf) {
			continue
		}
		v := equity.OptionGrantView{
			EventID:         e.ID,
			Recipient:       e.ShareholderName,
			GrantDate:       e.EventDate,
			Shares:          e.ShareDelta,
			VestingSchedule: e.DetailString("vesting_schedule"),
		}
		if strike, err := decimal.NewFromString(e.DetailString("strike_price")); err == nil {
			v.StrikePrice = decimal.NewNullDecimal(strike)
		}
		if exp, err := equity.ParseDate(e.DetailString("expiration_date")); err == nil {
			v.ExpirationDate = exp
		}
		out = append(out, v)
	}
	return out
}

// LatestEventDate returns the greatest event date, or the zero Date for an empty ledger.
func LatestEventDate(events []*equity.EquityEvent) equity.Date {
	var latest equity.Date
	for _, e := range events {
		if latest.IsZero() || e.EventDate.After(latest) {
			latest = e.EventDate
		}
	}
	return latest
}

func optionExpired(e *equity.EquityEvent, asOf equity.Date) bool {
	exp, err := equity.ParseDate(e.DetailString("expiration_date"))
	return err == nil && exp.Before(asOf)
}

// complianceNotes collects, per holder, the distinct WARNING/CRITICAL notes of events up to asOf.
func complianceNotes(events []*equity.EquityEvent, asOf equity.Date) map[string][]string {
	out := map[string][]string{}
	seen := map[string]bool{}
	for _, e := range events {
		if e.EventDate.After(asOf) || e.HolderKey() == "" || e.ComplianceNote == "" {
			continue
		}
		if e.ComplianceStatus != equity.StatusWarning && e.ComplianceStatus != equity.StatusCritical {
			continue
		}
		k := e.HolderKey() + "\x00" + e.ComplianceNote
		if seen[k] {
			continue
		}
		seen[k] = true
		out[e.HolderKey()] = append(out[e.HolderKey()], e.ComplianceNote)
	}
	return out
}

func notesFor(notes map[string][]string, name string) []string {
	if n := notes[equity.HolderKey(name)]; len(n) > 0 {
		return append([]string{}, n...)
	}
	return []string{}
}

// allocatePercent splits 100.00 across parts in hundredths of a percent with the
// largest-remainder method: every share is within 0.01 of its exact value and the
// shares sum to exactly 100.00.
func allocatePercent(parts []decimal.Decimal, total decimal.Decimal) []float64 {
	units := make([]int64, len(parts))
	rems := make([]decimal.Decimal, len(parts))
	var assigned int64
	for i, p := range parts {
		exact := p.Mul(hundredths).DivRound(total, 18)
		floor := exact.Floor()
		units[i] = floor.IntPart()
		rems[i] = exact.Sub(floor)
		assigned += units[i]
	}

	idx := make([]int, len(parts))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return rems[idx[a]].Cmp(rems[idx[b]]) > 0 })
	for k := 0; assigned < hundredths.IntPart() && k < len(idx); k++ {
		units[idx[k]]++
		assigned++
	}

	out := make([]float64, len(parts))
	for i, u := range units {
		out[i], _ = decimal.New(u, -2).Float64()
	}
	return out
}
