package compileerr

import "testing"

func TestErrorFormatsKindAndMessage(t *testing.T) {
	err := New(Structural, "node %d: bad operand", 3)
	want := "structural: node 3: bad operand"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		Structural:             "structural",
		Resource:               "resource",
		Allocator:              "allocator",
		ExecutionPrecondition:  "execution-precondition",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}

func TestErrorIsAnError(t *testing.T) {
	var err error = New(Resource, "out of slots")
	if err.Error() == "" {
		t.Fatalf("expected non-empty error message")
	}
}
