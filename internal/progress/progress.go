// Package progress computes completion summaries from a loaded project snapshot.
package progress

import "baulot/internal/domain"

// TradeSummary counts the tasks of one trade by status.
type TradeSummary struct {
	TradeID    string `json:"trade_id"`
	TradeName  string `json:"trade_name"`
	Total      int    `json:"total"`
	Done       int    `json:"done"`
	InProgress int    `json:"in_progress"`
	Blocked    int    `json:"blocked"`
	Open       int    `json:"open"`
	Percentage int    `json:"percentage"`
}

// Summary is the derived, non-persisted progress of a project.
type Summary struct {
	Trades          []TradeSummary `json:"trades"`
	TotalPercentage int            `json:"total_percentage"`
	BlockedCount    int            `json:"blocked_count"`
}

// Aggregate summarizes the trades of p in their input order. The project
// percentage is weighted by task count, not averaged over trades. Statuses
// are not validated: a task with an unknown status counts toward Total only.
func Aggregate(p domain.Project) Summary {
	return AggregateTrades(p.Trades)
}

// AggregateTrades is Aggregate over a bare trade list, typically the output
// of the visibility filter.
func AggregateTrades(trades []domain.Trade) Summary {
	s := Summary{Trades: make([]TradeSummary, 0, len(trades))}
	var done, total int
	for _, tr := range trades {
		ts := summarizeTrade(tr)
		s.Trades = append(s.Trades, ts)
		done += ts.Done
		total += ts.Total
		s.BlockedCount += ts.Blocked
	}
	s.TotalPercentage = Percentage(done, total)
	return s
}

func summarizeTrade(tr domain.Trade) TradeSummary {
	ts := TradeSummary{
		TradeID:   tr.ID,
		TradeName: tr.Name,
		Total:     len(tr.Tasks),
	}
	for _, t := range tr.Tasks {
		switch t.Status {
		case domain.StatusDone:
			ts.Done++
		case domain.StatusInProgress:
			ts.InProgress++
		case domain.StatusBlocked:
			ts.Blocked++
		case domain.StatusPending:
			ts.Open++
		}
	}
	ts.Percentage = Percentage(ts.Done, ts.Total)
	return ts
}

// Percentage returns round(100*part/whole) with halves rounded away from
// zero, or 0 when whole is not positive.
func Percentage(part, whole int) int {
	if whole <= 0 {
		return 0
	}
	n := 200*part + whole
	d := 2 * whole
	if n < 0 {
		// part is negative; mirror so halves still round away from zero.
		return -((-200*part + whole) / d)
	}
	return n / d
}
