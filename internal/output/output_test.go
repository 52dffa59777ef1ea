package output

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestPrintFunctionsJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	p := NewPrinter(FormatJSON)
	p.SetWriter(buf)

	rows := []FunctionRow{
		{ID: "fn1", Project: "proj1", ActiveVersion: 3, Memory: 128, Timeout: 5000, Created: "2026-01-01"},
	}
	if err := p.PrintFunctions(rows); err != nil {
		t.Fatalf("PrintFunctions: %v", err)
	}

	var got []FunctionRow
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal output: %v", err)
	}
	if len(got) != 1 || got[0].ID != "fn1" {
		t.Fatalf("got %+v, want one row with ID fn1", got)
	}
}

func TestPrintFunctionsEmptyTable(t *testing.T) {
	buf := &bytes.Buffer{}
	p := NewPrinter(FormatTable)
	p.SetWriter(buf)

	if err := p.PrintFunctions(nil); err != nil {
		t.Fatalf("PrintFunctions: %v", err)
	}
	if buf.String() != "No functions found\n" {
		t.Fatalf("output = %q, want empty-state message", buf.String())
	}
}

func TestPrintInvokeResultError(t *testing.T) {
	buf := &bytes.Buffer{}
	p := NewPrinter(FormatTable)
	p.SetWriter(buf)
	p.noColor = true

	err := p.PrintInvokeResult(InvokeResult{RequestID: "req1", Error: "boom", DurationMs: 12})
	if err != nil {
		t.Fatalf("PrintInvokeResult: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("boom")) {
		t.Fatalf("output %q does not contain error message", buf.String())
	}
}
