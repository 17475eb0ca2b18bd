package store

import "testing"

func TestVectorLiteralRoundTrip(t *testing.T) {
	in := []float32{0.25, -1, 3.5}
	lit := vectorLiteral(in)
	if lit == nil {
		t.Fatalf("vectorLiteral() = nil, want literal")
	}
	if *lit != "[0.25,-1,3.5]" {
		t.Fatalf("vectorLiteral() = %q, want %q", *lit, "[0.25,-1,3.5]")
	}
	out := parseVectorLiteral(*lit)
	if len(out) != len(in) {
		t.Fatalf("parse len = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("parse[%d] = %v, want %v", i, out[i], in[i])
		}
	}
}

func TestVectorLiteralNil(t *testing.T) {
	if vectorLiteral(nil) != nil {
		t.Fatalf("vectorLiteral(nil) != nil, want SQL NULL")
	}
	if got := parseVectorLiteral("[]"); got != nil {
		t.Fatalf("parseVectorLiteral(\"[]\") = %v, want nil", got)
	}
}
