package observability

import (
	"reflect"
	"testing"
)

func TestParseHeaders(t *testing.T) {
	got := parseHeaders(" api-key = abc ,broken, =x,tenant=memoir")
	want := map[string]string{"api-key": "abc", "tenant": "memoir"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("parseHeaders = %v", got)
	}
	if parseHeaders("") != nil {
		t.Fatalf("empty input should yield nil")
	}
}
