// Package visibility decides which parts of a project snapshot a caller may read.
//
// The filter assumes project-level access was already granted by the caller.
// It never mutates its input and always returns freshly allocated slices, so
// one loaded snapshot can be filtered for several roles.
package visibility

import "baulot/internal/domain"

// Filter returns the trades visible to the caller.
//
//   - architect: every trade, unfiltered.
//   - contractor: only trades whose contractor is callerID; all photos and
//     comments are kept.
//   - client: every trade, but only photos and comments marked for clients.
//
// Any other role yields an empty slice.
func Filter(role domain.Role, callerID string, trades []domain.Trade) []domain.Trade {
	out := make([]domain.Trade, 0, len(trades))
	switch role {
	case domain.RoleArchitect:
		for _, tr := range trades {
			out = append(out, copyTrade(tr, keepAll))
		}
	case domain.RoleContractor:
		for _, tr := range trades {
			if tr.ContractorID == nil || *tr.ContractorID != callerID {
				continue
			}
			out = append(out, copyTrade(tr, keepAll))
		}
	case domain.RoleClient:
		for _, tr := range trades {
			out = append(out, copyTrade(tr, clientOnly))
		}
	}
	return out
}

// Project returns a copy of p whose trades are filtered for the caller.
func Project(role domain.Role, callerID string, p domain.Project) domain.Project {
	out := p
	out.ArchitectID = copyString(p.ArchitectID)
	out.ClientID = copyString(p.ClientID)
	out.Trades = Filter(role, callerID, p.Trades)
	return out
}

// Task returns the filtered copy of a single task together with its trade,
// or false when the caller cannot see it.
func Task(role domain.Role, callerID string, p domain.Project, taskID string) (domain.Trade, domain.Task, bool) {
	return Project(role, callerID, p).TaskByID(taskID)
}

func keepAll(domain.Visibility) bool { return true }

func clientOnly(v domain.Visibility) bool { return v == domain.VisibilityClient }

func copyTrade(tr domain.Trade, keep func(domain.Visibility) bool) domain.Trade {
	out := tr
	out.ContractorID = copyString(tr.ContractorID)
	out.Tasks = make([]domain.Task, 0, len(tr.Tasks))
	for _, t := range tr.Tasks {
		out.Tasks = append(out.Tasks, copyTask(t, keep))
	}
	return out
}

func copyTask(t domain.Task, keep func(domain.Visibility) bool) domain.Task {
	out := t
	out.BlockedReason = copyString(t.BlockedReason)
	out.Photos = make([]domain.Photo, 0, len(t.Photos))
	for _, ph := range t.Photos {
		if keep(ph.Visibility) {
			out.Photos = append(out.Photos, ph)
		}
	}
	out.Comments = make([]domain.Comment, 0, len(t.Comments))
	for _, c := range t.Comments {
		if keep(c.Visibility) {
			out.Comments = append(out.Comments, c)
		}
	}
	return out
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
