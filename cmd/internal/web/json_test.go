package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWriteError_Shape(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	WriteError(rr, http.StatusBadRequest, "invalid_excuse", "excuse text is required")

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d want=400", rr.Code)
	}
	if cc := rr.Header().Get("Cache-Control"); cc != "no-store" {
		t.Fatalf("cache-control=%q want=no-store", cc)
	}
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != "invalid_excuse" || body.Error.Message != "excuse text is required" {
		t.Fatalf("body=%+v", body)
	}
}

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	type payload struct {
		Excuse string `json:"excuse"`
	}
	cases := []struct {
		name    string
		body    string
		max     int64
		wantErr bool
		want    string
	}{
		{name: "ok", body: `{"excuse":"late"}`, want: "late"},
		{name: "unknown fields ignored", body: `{"excuse":"late","extra":1}`, want: "late"},
		{name: "malformed", body: `{"excuse":`, wantErr: true},
		{name: "trailing data", body: `{"excuse":"a"}{"excuse":"b"}`, wantErr: true},
		{name: "too large", body: `{"excuse":"` + strings.Repeat("x", 64) + `"}`, max: 16, wantErr: true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodPost, "/api/excuses", strings.NewReader(tc.body))
			var dst payload
			err := DecodeJSON(httptest.NewRecorder(), req, tc.max, &dst)
			if tc.wantErr {
				if !errors.Is(err, ErrBadBody) {
					t.Fatalf("err=%v want=%v", err, ErrBadBody)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeJSON: %v", err)
			}
			if dst.Excuse != tc.want {
				t.Fatalf("excuse=%q want=%q", dst.Excuse, tc.want)
			}
		})
	}
}

func TestDecodeJSON_NoBody(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPost, "/api/excuses", nil)
	var dst map[string]any
	if err := DecodeJSON(httptest.NewRecorder(), req, 0, &dst); !errors.Is(err, ErrBadBody) {
		t.Fatalf("err=%v want=%v", err, ErrBadBody)
	}
}
