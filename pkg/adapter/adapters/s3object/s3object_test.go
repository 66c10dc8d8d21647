package s3object

import (
	"encoding/json"
	"testing"
)

func paramsJSON(t *testing.T, p Params) string {
	t.Helper()
	b, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}
	return string(b)
}

func TestValidateParamsRejectsMalformedJSON(t *testing.T) {
	a := New()
	if err := a.ValidateParams("not json"); err == nil {
		t.Error("expected error for malformed params")
	}
}

func TestValidateParamsRequiresBucket(t *testing.T) {
	a := New()
	params := paramsJSON(t, Params{PublicURL: "https://example.com"})
	if err := a.ValidateParams(params); err == nil {
		t.Error("expected error for missing bucket")
	}
}

func TestValidateParamsRequiresPublicURL(t *testing.T) {
	a := New()
	params := paramsJSON(t, Params{Bucket: "my-bucket"})
	if err := a.ValidateParams(params); err == nil {
		t.Error("expected error for missing publicUrl")
	}
}

func TestValidateParamsAcceptsMinimalValid(t *testing.T) {
	a := New()
	params := paramsJSON(t, Params{Bucket: "my-bucket", PublicURL: "https://example.com"})
	if err := a.ValidateParams(params); err != nil {
		t.Errorf("expected valid params to pass, got %v", err)
	}
}

func TestKindMatchesSourceTag(t *testing.T) {
	a := New()
	if a.Kind() != "s3" {
		t.Errorf("expected kind s3, got %s", a.Kind())
	}
}
