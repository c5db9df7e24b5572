package screens

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/thereceipt/label-engine/internal/job"
	"github.com/thereceipt/label-engine/internal/printer"
	"github.com/thereceipt/label-engine/pkg/labelformat"
)

// PrintBuilder loads a label job from disk, checks it and prints it
type PrintBuilder struct {
	app       *tview.Application
	manager   *printer.Manager
	form      *tview.Form
	fileInput *tview.InputField
	preview   *tview.TextView
	layout    *tview.Flex
	spec      *labelformat.Job
}

// NewPrintBuilder creates a new print builder screen
func NewPrintBuilder(app *tview.Application, manager *printer.Manager) *PrintBuilder {
	p := &PrintBuilder{
		app:     app,
		manager: manager,
	}

	p.setupUI()
	return p
}

func (p *PrintBuilder) setupUI() {
	// File input
	p.fileInput = tview.NewInputField()
	p.fileInput.SetLabel("Label File: ")
	p.fileInput.SetPlaceholder("/path/to/label.json")

	// Preview area
	p.preview = tview.NewTextView()
	p.preview.SetBorder(true)
	p.preview.SetTitle("Job")
	p.preview.SetDynamicColors(true)

	// Form
	p.form = tview.NewForm()
	p.form.SetBorder(true)
	p.form.SetTitle("Print Labels")
	p.form.AddFormItem(p.fileInput)
	p.form.AddButton("Load", func() {
		p.loadJob()
	})
	p.form.AddButton("Print", func() {
		p.printJob()
	})
	p.form.AddButton("Cancel Print", func() {
		p.manager.CancelPrint()
		p.preview.SetText("[yellow]Cancel requested[white]")
	})

	// Layout: Form | Preview
	p.layout = tview.NewFlex().
		AddItem(p.form, 0, 1, true).
		AddItem(p.preview, 0, 1, false)

	// Key bindings
	p.form.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		return event
	})
}

func (p *PrintBuilder) loadJob() {
	path := strings.TrimSpace(p.fileInput.GetText())
	if path == "" {
		p.preview.SetText("[red]Please enter a label file path[white]")
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		p.preview.SetText(fmt.Sprintf("[red]Error reading file: %v[white]", err))
		return
	}

	spec, err := labelformat.Decode(data)
	if err != nil {
		p.preview.SetText(fmt.Sprintf("[red]%v[white]", err))
		return
	}

	j, err := p.manager.Build(spec)
	if err != nil {
		p.spec = nil
		p.preview.SetText(fmt.Sprintf("[red]✗ Invalid job[white]\n\n%v", err))
		return
	}
	p.spec = spec
	p.preview.SetText(describe(j))
}

func describe(j *job.PrintJob) string {
	var b strings.Builder
	b.WriteString("[green]✓ Job is valid[white]\n\n")
	b.WriteString(fmt.Sprintf("[yellow]Label:[white] %d x %d mm\n", j.LabelWidth, j.LabelHeight))
	b.WriteString(fmt.Sprintf("[yellow]Mode:[white] %s\n", j.Mode))
	b.WriteString(fmt.Sprintf("[yellow]Pages:[white] %d\n", len(j.Pages)))
	if len(j.Images) > 0 {
		b.WriteString(fmt.Sprintf("[yellow]Images:[white] %d\n", len(j.Images)))
	}
	b.WriteString(fmt.Sprintf("[yellow]Copies:[white] %d\n", j.Copies))
	b.WriteString(fmt.Sprintf("[yellow]Labels to print:[white] %d\n", j.Labels()))
	b.WriteString(fmt.Sprintf("[yellow]Density:[white] %d  [yellow]Rotate:[white] %d\n", j.Density, j.Rotate))

	for i, page := range j.Pages {
		b.WriteString(fmt.Sprintf("\n[cyan]Page %d[white] (%dx%d mm, x%d)\n", i+1, page.Width, page.Height, page.Repeat))
		for _, it := range page.Items {
			pl := it.Place()
			switch it := it.(type) {
			case *job.Text:
				b.WriteString(fmt.Sprintf("  text %q at %.1f,%.1f\n", it.Content, pl.X, pl.Y))
			case *job.Image:
				w, h := it.PixelSize()
				b.WriteString(fmt.Sprintf("  image %dx%d px at %.1f,%.1f\n", w, h, pl.X, pl.Y))
			}
		}
	}
	return b.String()
}

func (p *PrintBuilder) printJob() {
	if p.spec == nil {
		p.loadJob()
		if p.spec == nil {
			return
		}
	}
	spec := p.spec

	p.preview.SetText("[yellow]Printing...[white]")
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		jobID, err := p.manager.Print(ctx, spec)
		p.app.QueueUpdateDraw(func() {
			if err != nil {
				p.preview.SetText(fmt.Sprintf("[red]✗ %v[white]\n\n[yellow]Code:[white] %s", err, printer.Code(err)))
				return
			}
			p.preview.SetText(fmt.Sprintf("[green]✓ Printed[white]\n\n[yellow]Job ID:[white] %s", jobID))
		})
	}()
}

// GetRoot returns the root primitive for this screen
func (p *PrintBuilder) GetRoot() tview.Primitive {
	return p.layout
}
