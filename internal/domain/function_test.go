package domain

import "testing"

func TestFunctionMarshalRoundTrip(t *testing.T) {
	f := &Function{
		ID:            "fn_123",
		Project:       "proj_1",
		ActiveVersion: 3,
		PackageDigest: "sha256:abcd",
		PackagePath:   "s3://bucket/proj_1/fn_123/3",
		EnvVars:       map[string]string{"FOO": "bar"},
	}

	data, err := f.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}

	var got Function
	if err := got.UnmarshalBinary(data); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}

	if got.ID != f.ID || got.PackageDigest != f.PackageDigest || got.EnvVars["FOO"] != "bar" {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, *f)
	}
}
