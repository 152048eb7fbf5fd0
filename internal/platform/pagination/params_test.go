package pagination

import (
	"errors"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	params, err := Parse(url.Values{}, Options{})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageSize != 0 {
		t.Fatalf("expected zero page size when omitted, got %d", params.PageSize)
	}
	if params.PageToken != "" {
		t.Fatalf("expected empty page token, got %q", params.PageToken)
	}
}

func TestParsePageSizeClampsToMax(t *testing.T) {
	values := url.Values{}
	values.Set("pageSize", "250")

	params, err := Parse(values, Options{MaxPageSize: 40})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageSize != 40 {
		t.Fatalf("expected page size clamped to 40, got %d", params.PageSize)
	}
}

func TestParsePageSizeRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"non-numeric": "abc",
		"negative":    "-3",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			values := url.Values{}
			values.Set("pageSize", raw)
			if _, err := Parse(values, Options{}); !errors.Is(err, ErrInvalidPageSize) {
				t.Fatalf("expected ErrInvalidPageSize, got %v", err)
			}
		})
	}
}

func TestFromRequest(t *testing.T) {
	req := httptest.NewRequest("GET", "/history?pageSize=5&pageToken=%20cursor-1%20", nil)

	params, err := FromRequest(req, Options{})
	if err != nil {
		t.Fatalf("FromRequest returned error: %v", err)
	}
	if params.PageSize != 5 {
		t.Fatalf("expected page size 5, got %d", params.PageSize)
	}
	if params.PageToken != "cursor-1" {
		t.Fatalf("expected trimmed page token, got %q", params.PageToken)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	createdAt := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	cursor := Cursor{StartAfter: []any{createdAt.Format(time.RFC3339Nano), "payment-42"}}

	token, err := EncodeToken(cursor)
	if err != nil {
		t.Fatalf("EncodeToken returned error: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	decoded, err := DecodeToken(token)
	if err != nil {
		t.Fatalf("DecodeToken returned error: %v", err)
	}
	if len(decoded.StartAfter) != 2 {
		t.Fatalf("expected two cursor values, got %d", len(decoded.StartAfter))
	}
	if decoded.StartAfter[0] != createdAt.Format(time.RFC3339Nano) {
		t.Fatalf("unexpected cursor timestamp %v", decoded.StartAfter[0])
	}
	if decoded.StartAfter[1] != "payment-42" {
		t.Fatalf("unexpected cursor id %v", decoded.StartAfter[1])
	}
}

func TestDecodeTokenRejectsGarbage(t *testing.T) {
	if _, err := DecodeToken("not base64 !!"); !errors.Is(err, ErrInvalidPageToken) {
		t.Fatalf("expected ErrInvalidPageToken, got %v", err)
	}
}

func TestEncodeTokenEmptyCursor(t *testing.T) {
	token, err := EncodeToken(Cursor{})
	if err != nil {
		t.Fatalf("EncodeToken returned error: %v", err)
	}
	if token != "" {
		t.Fatalf("expected empty token for empty cursor, got %q", token)
	}
}

func TestClamp(t *testing.T) {
	if got := Clamp(0, 20, 100); got != 20 {
		t.Fatalf("expected fallback 20, got %d", got)
	}
	if got := Clamp(500, 20, 100); got != 100 {
		t.Fatalf("expected max 100, got %d", got)
	}
	if got := Clamp(7, 20, 100); got != 7 {
		t.Fatalf("expected 7, got %d", got)
	}
}
