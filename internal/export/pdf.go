package export

import (
	"fmt"
	"io"
	"time"

	"github.com/go-pdf/fpdf"

	"baulot/internal/domain"
	"baulot/internal/progress"
)

const (
	pageMargin = 15.0
	rowHeight  = 7.0
	barWidth   = 50.0
)

var reportColumns = []struct {
	title string
	width float64
	align string
}{
	{"Trade", 60, "L"},
	{"Tasks", 18, "R"},
	{"Done", 18, "R"},
	{"Blocked", 18, "R"},
	{"Progress", barWidth + 16, "L"},
}

// WriteReport renders p as an A4 progress report: a trade table with bars
// followed by the list of blocked tasks.
func WriteReport(w io.Writer, p domain.Project, generated time.Time) error {
	sum := progress.Aggregate(p)

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)
	pdf.SetTitle(p.Name, true)
	pdf.SetCreator("BauLot", false)
	pdf.SetCreationDate(generated)
	pdf.SetModificationDate(generated)
	pdf.AliasNbPages("")
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFooterFunc(func() {
		pdf.SetY(-pageMargin)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(128, 128, 128)
		pdf.CellFormat(0, 8, fmt.Sprintf("Generated %s  |  Page %d/{nb}", generated.UTC().Format("2006-01-02 15:04 MST"), pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 10, tr(p.Name), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	if p.Address != "" {
		pdf.CellFormat(0, 6, tr(p.Address), "", 1, "L", false, 0, "")
	}
	pdf.CellFormat(0, 6, tr(schedule(p)), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 8, fmt.Sprintf("Overall progress: %d%%   Blocked tasks: %d", sum.TotalPercentage, sum.BlockedCount), "", 1, "L", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(230, 230, 230)
	for _, c := range reportColumns {
		pdf.CellFormat(c.width, rowHeight, c.title, "1", 0, c.align, true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 10)
	for _, ts := range sum.Trades {
		pdf.CellFormat(reportColumns[0].width, rowHeight, tr(ts.TradeName), "1", 0, "L", false, 0, "")
		pdf.CellFormat(reportColumns[1].width, rowHeight, fmt.Sprint(ts.Total), "1", 0, "R", false, 0, "")
		pdf.CellFormat(reportColumns[2].width, rowHeight, fmt.Sprint(ts.Done), "1", 0, "R", false, 0, "")
		pdf.CellFormat(reportColumns[3].width, rowHeight, fmt.Sprint(ts.Blocked), "1", 0, "R", false, 0, "")
		x, y := pdf.GetXY()
		pdf.CellFormat(reportColumns[4].width, rowHeight, "", "1", 0, "L", false, 0, "")
		drawBar(pdf, x+2, y+2, ts.Percentage)
		pdf.SetXY(x+barWidth+3, y)
		pdf.CellFormat(reportColumns[4].width-barWidth-3, rowHeight, fmt.Sprintf("%d%%", ts.Percentage), "", 1, "R", false, 0, "")
	}

	if blocked := blockedTasks(p); len(blocked) > 0 {
		pdf.Ln(6)
		pdf.SetFont("Helvetica", "B", 12)
		pdf.CellFormat(0, 8, "Blocked tasks", "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		for _, b := range blocked {
			pdf.MultiCell(0, 6, tr(b), "", "L", false)
		}
	}
	return pdf.Output(w)
}

func drawBar(pdf *fpdf.Fpdf, x, y float64, pct int) {
	h := rowHeight - 4
	pdf.SetFillColor(220, 220, 220)
	pdf.Rect(x, y, barWidth, h, "F")
	if pct > 0 {
		pdf.SetFillColor(46, 139, 87)
		pdf.Rect(x, y, barWidth*float64(min(pct, 100))/100, h, "F")
	}
}

func schedule(p domain.Project) string {
	s := "Status: " + string(p.Status)
	if p.StartDate != "" {
		s += "   Start: " + p.StartDate
	}
	if p.TargetEndDate != "" {
		s += "   Target end: " + p.TargetEndDate
	}
	return s
}

func blockedTasks(p domain.Project) []string {
	var out []string
	for _, tr := range p.Trades {
		for _, t := range tr.Tasks {
			if t.Status != domain.StatusBlocked {
				continue
			}
			line := fmt.Sprintf("%s / %s", tr.Name, t.Title)
			if t.BlockedReason != nil {
				line += ": " + *t.BlockedReason
			}
			out = append(out, line)
		}
	}
	return out
}
