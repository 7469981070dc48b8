package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.yaml.in/yaml/v3"
)

type sample struct {
	BlocklistID string   `json:"blocklist_id"`
	Websites    []string `json:"websites"`
	Strict      bool     `json:"strict_mode"`
}

func newWriter(format Format) (*Writer, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	return New(format, WithOutput(&out), WithErrorOutput(&errOut)), &out, &errOut
}

func TestParseFormat(t *testing.T) {
	cases := map[string]Format{
		"":      FormatText,
		"text":  FormatText,
		"JSON":  FormatJSON,
		" yaml": FormatYAML,
	}
	for in, want := range cases {
		got, err := ParseFormat(in)
		if err != nil {
			t.Fatalf("ParseFormat(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseFormat(%q)=%q want %q", in, got, want)
		}
	}
	if _, err := ParseFormat("toml"); err == nil {
		t.Fatalf("expected error for unsupported format")
	}
}

func TestWriter_Write_Text(t *testing.T) {
	w, out, _ := newWriter(FormatText)
	if err := w.Write("hello"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := out.String(); got != "hello\n" {
		t.Fatalf("unexpected output: %q", got)
	}
	if w.Structured() {
		t.Fatalf("text is not structured")
	}
}

func TestWriter_Write_JSON(t *testing.T) {
	w, out, _ := newWriter(FormatJSON)
	in := sample{BlocklistID: "b1", Websites: []string{"reddit.com"}, Strict: true}
	if err := w.Write(in); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !strings.Contains(out.String(), "\n  \"blocklist_id\"") {
		t.Fatalf("expected indented snake_case json, got %q", out.String())
	}
	var got sample
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if diff := cmp.Diff(in, got); diff != "" {
		t.Fatalf("round trip (-want +got):\n%s", diff)
	}
}

func TestWriter_Write_YAMLUsesJSONTags(t *testing.T) {
	w, out, _ := newWriter(FormatYAML)
	if err := w.Write(sample{BlocklistID: "b1", Websites: []string{"x.com"}}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	var got map[string]any
	if err := yaml.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if got["blocklist_id"] != "b1" {
		t.Fatalf("expected json tag key, got %#v", got)
	}
	if !strings.HasSuffix(out.String(), "\n") {
		t.Fatalf("expected trailing newline")
	}
}

func TestWriter_WriteNDJSON(t *testing.T) {
	w, out, _ := newWriter(FormatJSON)
	for i := 0; i < 2; i++ {
		if err := w.WriteNDJSON(map[string]int{"n": i}); err != nil {
			t.Fatalf("WriteNDJSON: %v", err)
		}
	}
	if got := out.String(); got != "{\"n\":0}\n{\"n\":1}\n" {
		t.Fatalf("unexpected ndjson: %q", got)
	}

	yw, _, _ := newWriter(FormatYAML)
	if err := yw.WriteNDJSON(1); err == nil {
		t.Fatalf("expected error for yaml ndjson")
	}
}

func TestWriter_UnsupportedFormat(t *testing.T) {
	w, _, _ := newWriter(Format("toon"))
	if err := w.Write(1); err == nil {
		t.Fatalf("expected error")
	}
}

func TestWriter_SuccessAndError(t *testing.T) {
	w, out, errOut := newWriter(FormatText)
	w.Success("saved")
	w.Error(errors.New("boom"))
	if out.String() != "✓ saved\n" {
		t.Fatalf("unexpected success: %q", out.String())
	}
	if errOut.String() != "✗ boom\n" {
		t.Fatalf("unexpected error: %q", errOut.String())
	}

	jw, jout, _ := newWriter(FormatJSON)
	jw.Error(errors.New("siren is locked"))
	var payload ErrorPayload
	if err := json.Unmarshal(jout.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload.Error != "error" || payload.Message != "siren is locked" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}
