package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteJSON(t *testing.T) {
	t.Run("sets content-type and status", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteJSON(w, http.StatusOK, map[string]string{"key": "value"})

		if got := w.Header().Get("Content-Type"); got != "application/json; charset=utf-8" {
			t.Errorf("Content-Type = %q; want application/json; charset=utf-8", got)
		}
		if w.Code != http.StatusOK {
			t.Errorf("Code = %d; want %d", w.Code, http.StatusOK)
		}
	})

	t.Run("encodes body as JSON", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteJSON(w, http.StatusCreated, map[string]float64{"weight_kg": 65})

		var got map[string]float64
		if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
			t.Fatalf("body is not valid JSON: %v", err)
		}
		if got["weight_kg"] != 65 {
			t.Errorf("weight_kg = %v; want 65", got["weight_kg"])
		}
	})
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, http.StatusBadRequest, "upload too short")

	if w.Code != http.StatusBadRequest {
		t.Errorf("Code = %d; want %d", w.Code, http.StatusBadRequest)
	}
	var got map[string]any
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("body is not valid JSON: %v", err)
	}
	if got["error"] != http.StatusText(http.StatusBadRequest) {
		t.Errorf("error = %q; want %q", got["error"], http.StatusText(http.StatusBadRequest))
	}
	if got["message"] != "upload too short" {
		t.Errorf("message = %q; want %q", got["message"], "upload too short")
	}
}

func TestWriteBinary(t *testing.T) {
	w := httptest.NewRecorder()
	WriteBinary(w, http.StatusOK, make([]byte, 104))

	if got := w.Header().Get("Content-Length"); got != "104" {
		t.Errorf("Content-Length = %q; want 104", got)
	}
	if got := w.Header().Get("Content-Type"); got != "application/octet-stream" {
		t.Errorf("Content-Type = %q; want application/octet-stream", got)
	}
	if w.Body.Len() != 104 {
		t.Errorf("body length = %d; want 104", w.Body.Len())
	}
}

func TestHex(t *testing.T) {
	if got := Hex4(0x31C3); got != "31C3" {
		t.Errorf("Hex4 = %q; want 31C3", got)
	}
	if got := Hex4(0x000A); got != "000A" {
		t.Errorf("Hex4 = %q; want 000A", got)
	}
	if got := BytesToHex([]byte{0x00, 0xAB, 0x7F}); got != "00AB7F" {
		t.Errorf("BytesToHex = %q; want 00AB7F", got)
	}
	if got := BytesToHex(nil); got != "" {
		t.Errorf("BytesToHex(nil) = %q; want empty", got)
	}
}

func TestHexDump(t *testing.T) {
	b := make([]byte, 18)
	for i := range b {
		b[i] = byte(i)
	}
	want := "0000: 00 01 02 03 04 05 06 07 08 09 0A 0B 0C 0D 0E 0F\n" +
		"0010: 10 11\n"
	if got := HexDump(b); got != want {
		t.Errorf("HexDump =\n%s\nwant\n%s", got, want)
	}
	if got := HexDump(nil); got != "" {
		t.Errorf("HexDump(nil) = %q; want empty", got)
	}
}
