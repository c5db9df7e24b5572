package screens

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/thereceipt/label-engine/internal/printer"
)

// JobsView shows the print history
type JobsView struct {
	app     *tview.Application
	history *printer.History
	table   *tview.Table
	details *tview.TextView
	layout  *tview.Flex
	jobs    []*printer.HistoryEntry
}

// NewJobsView creates a new jobs view screen
func NewJobsView(app *tview.Application, history *printer.History) *JobsView {
	j := &JobsView{
		app:     app,
		history: history,
	}

	j.setupUI()
	return j
}

func (j *JobsView) setupUI() {
	// Jobs table
	j.table = tview.NewTable()
	j.table.SetBorder(true)
	j.table.SetTitle("Print History")
	j.table.SetSelectable(true, false)
	j.table.SetFixed(1, 0)
	j.table.SetSelectedFunc(func(row, column int) {
		j.selectJob(row)
	})

	// Details view
	j.details = tview.NewTextView()
	j.details.SetBorder(true)
	j.details.SetTitle("Job Details")
	j.details.SetDynamicColors(true)

	// Layout: Table | Details
	j.layout = tview.NewFlex().
		AddItem(j.table, 0, 2, true).
		AddItem(j.details, 0, 1, false)

	// Key bindings
	j.table.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyEsc:
			return event // Let parent handle
		case tcell.KeyRune:
			switch event.Rune() {
			case 'r':
				j.Refresh()
				return nil
			case 'c':
				j.history.ClearCompleted()
				j.Refresh()
				return nil
			}
		}
		return event
	})

	j.Refresh()
}

// Refresh reloads the table, newest job first
func (j *JobsView) Refresh() {
	j.table.Clear()

	// Headers
	j.table.SetCell(0, 0, tview.NewTableCell("ID").SetAlign(tview.AlignCenter).SetSelectable(false))
	j.table.SetCell(0, 1, tview.NewTableCell("Printer").SetAlign(tview.AlignCenter).SetSelectable(false))
	j.table.SetCell(0, 2, tview.NewTableCell("Status").SetAlign(tview.AlignCenter).SetSelectable(false))
	j.table.SetCell(0, 3, tview.NewTableCell("Labels").SetAlign(tview.AlignCenter).SetSelectable(false))
	j.table.SetCell(0, 4, tview.NewTableCell("Age").SetAlign(tview.AlignCenter).SetSelectable(false))

	all := j.history.GetAll()
	j.jobs = make([]*printer.HistoryEntry, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		j.jobs = append(j.jobs, all[i])
	}

	for i, job := range j.jobs {
		row := i + 1
		printerName := job.DeviceName
		if printerName == "" {
			printerName = job.DeviceID
		}

		j.table.SetCell(row, 0, tview.NewTableCell(shortID(job.ID)))
		j.table.SetCell(row, 1, tview.NewTableCell(printerName))
		j.table.SetCell(row, 2, tview.NewTableCell(StatusIcon(job.Status)+" "+job.Status))
		j.table.SetCell(row, 3, tview.NewTableCell(fmt.Sprintf("%d", job.Labels)))
		j.table.SetCell(row, 4, tview.NewTableCell(time.Since(job.CreatedAt).Truncate(time.Second).String()))
	}

	if len(j.jobs) == 0 {
		j.details.SetText("[yellow]No print jobs yet[white]")
	}
}

func (j *JobsView) selectJob(row int) {
	if row == 0 || row-1 >= len(j.jobs) {
		return
	}
	job := j.jobs[row-1]

	var details strings.Builder
	details.WriteString(fmt.Sprintf("[yellow]Job ID:[white] %s\n", job.ID))
	details.WriteString(fmt.Sprintf("[yellow]Printer:[white] %s %s\n", job.DeviceID, job.DeviceName))
	details.WriteString(fmt.Sprintf("[yellow]Status:[white] %s %s\n", StatusIcon(job.Status), job.Status))
	if job.Mode != "" {
		details.WriteString(fmt.Sprintf("[yellow]Mode:[white] %s\n", job.Mode))
	}
	details.WriteString(fmt.Sprintf("[yellow]Labels:[white] %d\n", job.Labels))
	details.WriteString(fmt.Sprintf("[yellow]Created:[white] %s\n", job.CreatedAt.Format("2006-01-02 15:04:05")))
	if job.CompletedAt != nil {
		details.WriteString(fmt.Sprintf("[yellow]Took:[white] %s\n", job.CompletedAt.Sub(job.CreatedAt).Round(time.Millisecond)))
	}

	if job.Error != "" {
		details.WriteString(fmt.Sprintf("\n[red]Error:[white] %s\n", job.Error))
	}

	details.WriteString("\n[yellow]Press 'r' to refresh, 'c' to clear finished jobs[white]")

	j.details.SetText(details.String())
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// StatusIcon returns the glyph shown next to a job status
func StatusIcon(status string) string {
	switch status {
	case printer.JobPrinting:
		return "🟡"
	case printer.JobCompleted:
		return "✅"
	case printer.JobFailed:
		return "❌"
	default:
		return "⚪"
	}
}

// GetRoot returns the root primitive for this screen
func (j *JobsView) GetRoot() tview.Primitive {
	return j.layout
}
