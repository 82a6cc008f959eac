package extract

import (
	"strings"
	"testing"
)

func TestKind(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		contentType string
		fileName    string
		want        string
	}{
		{"pdf magic", "%PDF-1.7 ...", "", "sheet", KindPDF},
		{"pdf extension", "binary stuff", "application/octet-stream", "functions.PDF", KindPDF},
		{"html content type", "whatever", "text/html; charset=utf-8", "", KindHTML},
		{"doctype sniff", "  <!DOCTYPE html><html><body>hi</body></html>", "", "", KindHTML},
		{"html tag sniff", "<html lang=\"en\"><body>hi</body></html>", "", "", KindHTML},
		{"plain text", "Jazz night on Friday at 20:00", "text/plain", "note.txt", KindText},
		{"unknown defaults to text", "{\"not\": \"html\"}", "application/json", "", KindText},
		{"empty", "", "", "", KindText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Kind([]byte(tt.content), tt.contentType, tt.fileName)
			if got != tt.want {
				t.Errorf("Kind() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestText_Plain(t *testing.T) {
	in := "Annual Wine Fair\nDate: 2025-06-14\nExpected guests: 800"
	got, err := Text([]byte(in), "text/plain", "")
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if got != in {
		t.Errorf("plain text must pass through verbatim, got:\n%s", got)
	}
}

func TestText_HTML(t *testing.T) {
	page := `<!DOCTYPE html>
<html>
<head>
  <title>Summer Concert</title>
  <style>body { color: red; }</style>
  <script>console.log("tracking")</script>
</head>
<body>
  <h1>Summer   Concert</h1>
  <p>Riverside Park, 2 km from the old town.</p>
  <div>Doors open at <strong>19:00</strong>.</div>
  <ul><li>Expected attendance: 4000</li></ul>
</body>
</html>`

	got, err := Text([]byte(page), "text/html", "")
	if err != nil {
		t.Fatalf("Text: %v", err)
	}

	for _, want := range []string{"Summer Concert", "Riverside Park, 2 km from the old town.", "Doors open at 19:00", "Expected attendance: 4000"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	for _, banned := range []string{"console.log", "color: red"} {
		if strings.Contains(got, banned) {
			t.Errorf("output contains script/style content %q:\n%s", banned, got)
		}
	}
	if strings.Contains(got, "\n\n\n") {
		t.Errorf("output has uncollapsed blank lines:\n%q", got)
	}
	if strings.Contains(got, "  ") {
		t.Errorf("output has uncollapsed spaces:\n%q", got)
	}
}

func TestText_HTMLWithoutContentType(t *testing.T) {
	got, err := Text([]byte("<html><body><p>Street market on the square</p></body></html>"), "", "")
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if !strings.Contains(got, "Street market on the square") {
		t.Errorf("sniffed html not extracted: %q", got)
	}
	if strings.Contains(got, "<p>") {
		t.Errorf("tags leaked into output: %q", got)
	}
}

func TestText_TruncatedPDF(t *testing.T) {
	_, err := Text([]byte("%PDF-1.4 not actually a pdf"), "", "broken.pdf")
	if err == nil {
		t.Fatal("expected error for truncated pdf, got nil")
	}
}

func TestCollapse(t *testing.T) {
	in := "a  b\n\n\n\nc\n   d\t\te"
	want := "a b\n\nc\nd e"
	if got := collapse(in); got != want {
		t.Errorf("collapse() = %q, want %q", got, want)
	}
}
