package rule

import (
	"encoding/json"
	"testing"
)

func TestKeywords_CaseInsensitive(t *testing.T) {
	r := Keywords("Deploy", "rollback")

	if !r.Evaluate("please DEPLOY the service") {
		t.Error("expected match on mixed-case keyword")
	}
	if !r.Evaluate("Rollback now") {
		t.Error("expected match on capitalized message")
	}
	if r.Evaluate("restart the pod") {
		t.Error("expected no match")
	}
}

func TestKeywords_EmptyList(t *testing.T) {
	r := Keywords()
	if r.Evaluate("anything") {
		t.Error("empty keyword list must never match")
	}
}

func TestRegex_Match(t *testing.T) {
	r := Regex(`fix.*bug`)
	if !r.Evaluate("please Fix this BUG") {
		t.Error("regex match must be case-insensitive")
	}
	if r.Evaluate("nothing here") {
		t.Error("expected no match")
	}
}

func TestRegex_InvalidPattern(t *testing.T) {
	r := Regex(`[unclosed`)
	if err := r.Compile(); err == nil {
		t.Fatal("expected compile error for malformed pattern")
	}
	// A malformed pattern degrades to "never matches", it never panics.
	if r.Evaluate("[unclosed") {
		t.Error("invalid pattern must evaluate to false")
	}
	if r.Evaluate("anything") {
		t.Error("invalid pattern must evaluate to false")
	}
}

func TestRegex_LazyCompile(t *testing.T) {
	// Evaluate without an explicit Compile call still works.
	r := Regex(`^hello`)
	if !r.Evaluate("Hello world") {
		t.Error("expected lazy-compiled match")
	}
}

func TestComplex_EmptyChildren(t *testing.T) {
	for _, op := range []Operator{OpAnd, OpOr, ""} {
		r := Complex(op)
		if r.Evaluate("any message at all") {
			t.Errorf("empty complex rule with operator %q must be false", op)
		}
	}
}

func TestComplex_And(t *testing.T) {
	r := Complex(OpAnd, Keywords("deploy"), Keywords("prod"))
	if !r.Evaluate("deploy to prod") {
		t.Error("expected AND match when all children match")
	}
	if r.Evaluate("deploy to staging") {
		t.Error("expected no AND match when one child fails")
	}
}

func TestComplex_OrIsDefault(t *testing.T) {
	r := Complex("", Keywords("deploy"), Keywords("rollback"))
	if !r.Evaluate("rollback please") {
		t.Error("expected OR match with empty operator")
	}
	if r.Evaluate("restart") {
		t.Error("expected no match")
	}
}

func TestDefault_ExclusionGate(t *testing.T) {
	r := Default(Keywords("x"))
	if r.Evaluate("contains x") {
		t.Error("default must be false when exclusion matches")
	}
	if !r.Evaluate("no match") {
		t.Error("default must be true when exclusion does not match")
	}
}

func TestDefault_NoExclusion(t *testing.T) {
	r := Default(nil)
	if !r.Evaluate("anything") {
		t.Error("bare default rule must always match")
	}
}

func TestUnknownKind_FailClosed(t *testing.T) {
	r := &Node{Type: "telepathy"}
	if r.Evaluate("anything") {
		t.Error("unknown rule type must evaluate to false")
	}
}

func TestNilNode(t *testing.T) {
	var r *Node
	if r.Evaluate("anything") {
		t.Error("nil rule must evaluate to false")
	}
	if err := r.Compile(); err != nil {
		t.Errorf("nil rule Compile: %v", err)
	}
}

func TestJSONRoundTrip_NestedTree(t *testing.T) {
	src := Complex(OpAnd,
		Keywords("file", "document"),
		Default(Regex(`ignore`)),
	)
	data, err := json.Marshal(src)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got Node
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := got.Compile(); err != nil {
		t.Fatalf("compile: %v", err)
	}

	if !got.Evaluate("send the File") {
		t.Error("expected deserialized tree to match")
	}
	if got.Evaluate("ignore this file") {
		t.Error("expected exclusion to block the match")
	}
}
