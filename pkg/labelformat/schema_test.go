package labelformat

import (
	"testing"
)

func TestValidate_ValidJob(t *testing.T) {
	job := &Job{
		Pages: []Page{
			{Items: []Item{{Format: FormatText, Content: "Hello"}}},
		},
	}

	if err := Validate(job); err != nil {
		t.Errorf("Expected valid job, got error: %v", err)
	}
}

func TestValidate_NoPages(t *testing.T) {
	job := &Job{}

	if err := Validate(job); err == nil {
		t.Error("Expected error for job without pages")
	}
}

func TestValidate_EmptyPageAllowed(t *testing.T) {
	job := &Job{Pages: []Page{{}}}

	if err := Validate(job); err != nil {
		t.Errorf("Expected empty page to be valid, got error: %v", err)
	}
}

func TestValidate_Rotate(t *testing.T) {
	tests := []struct {
		rotate  int
		wantErr bool
	}{
		{0, false},
		{1, false},
		{2, false},
		{3, false},
		{4, true},
		{-1, true},
	}

	for _, tt := range tests {
		job := &Job{Rotate: Int(tt.rotate), Pages: []Page{{}}}
		err := Validate(job)
		if (err != nil) != tt.wantErr {
			t.Errorf("rotate=%d: expected error=%v, got %v", tt.rotate, tt.wantErr, err)
		}
	}
}

func TestValidate_NegativeCoordinate(t *testing.T) {
	job := &Job{
		Pages: []Page{
			{Items: []Item{{Format: FormatText, X: Float(-1)}}},
		},
	}

	if err := Validate(job); err == nil {
		t.Error("Expected error for negative x")
	}
}

func TestValidate_NegativeLabelSize(t *testing.T) {
	job := &Job{LabelWidth: Int(-40), Pages: []Page{{}}}

	if err := Validate(job); err == nil {
		t.Error("Expected error for negative labelWidth")
	}
}

func TestValidate_ZeroCopies(t *testing.T) {
	job := &Job{Copies: Int(0), Pages: []Page{{}}}

	if err := Validate(job); err == nil {
		t.Error("Expected error for zero copies")
	}
}

func TestValidate_UnknownFormat(t *testing.T) {
	job := &Job{
		Pages: []Page{
			{Items: []Item{{Format: "SHAPE"}}},
		},
	}

	if err := Validate(job); err == nil {
		t.Error("Expected error for unknown format")
	}
}

func TestParse(t *testing.T) {
	data := []byte(`{
		"labelWidth": 50,
		"rotate": 1,
		"pages": [
			{"items": [{"format": "text", "content": "Hello", "x": 2}]}
		]
	}`)

	job, err := Parse(data)
	if err != nil {
		t.Fatalf("Failed to parse: %v", err)
	}

	if job.LabelWidth == nil || *job.LabelWidth != 50 {
		t.Errorf("Expected labelWidth 50, got %v", job.LabelWidth)
	}
	if job.LabelHeight != nil {
		t.Errorf("Expected omitted labelHeight, got %d", *job.LabelHeight)
	}
	if job.Pages[0].Items[0].Format != FormatText {
		t.Errorf("Expected format to be normalized to TEXT, got %s", job.Pages[0].Items[0].Format)
	}
	if job.Pages[0].Items[0].X == nil || *job.Pages[0].Items[0].X != 2 {
		t.Errorf("Expected x 2, got %v", job.Pages[0].Items[0].X)
	}
}

func TestParse_ImageBytesBase64(t *testing.T) {
	data := []byte(`{"pages":[{"items":[{"format":"IMAGE","imageBytes":"AQID"}]}]}`)

	job, err := Parse(data)
	if err != nil {
		t.Fatalf("Failed to parse: %v", err)
	}

	got := job.Pages[0].Items[0].ImageBytes
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Errorf("Expected decoded bytes [1 2 3], got %v", got)
	}
}

func TestParse_InvalidJSON(t *testing.T) {
	if _, err := Parse([]byte(`{"pages":`)); err == nil {
		t.Error("Expected error for truncated JSON")
	}
}

func TestParse_ExplicitZeroKept(t *testing.T) {
	job, err := Parse([]byte(`{"gap":0,"oneByOne":false,"pages":[{}]}`))
	if err != nil {
		t.Fatalf("Failed to parse: %v", err)
	}

	if job.Gap == nil || *job.Gap != 0 {
		t.Errorf("Expected explicit gap 0, got %v", job.Gap)
	}
	if job.OneByOne == nil || *job.OneByOne {
		t.Errorf("Expected explicit oneByOne false, got %v", job.OneByOne)
	}
}

func TestValidate_Variables(t *testing.T) {
	base := func() *Job {
		return &Job{
			Variables: []Variable{{Let: "name"}},
			Pages:     []Page{{Items: []Item{{DynamicValue: "name"}}}},
		}
	}

	if err := Validate(base()); err != nil {
		t.Errorf("Expected valid job, got %v", err)
	}

	j := base()
	j.Variables = append(j.Variables, Variable{Let: "name"})
	if err := Validate(j); err == nil {
		t.Error("Expected error for duplicate variable")
	}

	j = base()
	j.Variables[0].Let = ""
	if err := Validate(j); err == nil {
		t.Error("Expected error for variable without let")
	}

	j = base()
	j.Pages[0].Items[0].Format = FormatImage
	if err := Validate(j); err == nil {
		t.Error("Expected error for dynamicValue on an image")
	}
}
