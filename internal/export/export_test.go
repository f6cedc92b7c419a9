package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmaslov/tablefeed/internal/feed"
)

func sampleLog(t *testing.T, n int) *feed.Log {
	t.Helper()
	log := feed.NewLog(100)
	base := time.UnixMilli(1700000000000)
	for i := 0; i < n; i++ {
		log.Append(feed.Message{
			Type:       feed.TypeTableUpdate,
			Data:       []byte(fmt.Sprintf(`{"pot":%d}`, i)),
			Timestamp:  base.Add(time.Duration(i) * time.Second),
			ReceivedAt: base.Add(time.Duration(i) * time.Second),
		})
	}
	return log
}

func TestWriteJSON_OrderAndShape(t *testing.T) {
	log := sampleLog(t, 3)

	var buf bytes.Buffer
	if err := WriteJSON(&buf, log.Snapshot()); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	var records []struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(buf.Bytes(), &records); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d, want 3", len(records))
	}
	for i, r := range records {
		if r.Type != feed.TypeTableUpdate {
			t.Errorf("record[%d].Type = %q", i, r.Type)
		}
		if want := fmt.Sprintf(`{"pot":%d}`, i); string(r.Data) != want {
			t.Errorf("record[%d].Data = %s, want %s (oldest first)", i, r.Data, want)
		}
	}
}

func TestWriteJSON_EmptyLog(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, nil); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != "[]" {
		t.Errorf("empty export = %q, want []", got)
	}
}

func TestWriteCSV_HeaderAndRows(t *testing.T) {
	log := sampleLog(t, 2)

	var buf bytes.Buffer
	if err := WriteCSV(&buf, log.Snapshot()); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(rows))
	}
	if rows[0][0] != "type" || rows[0][3] != "data" {
		t.Errorf("header = %v", rows[0])
	}
	if rows[1][0] != feed.TypeTableUpdate || rows[1][3] != `{"pot":0}` {
		t.Errorf("row 1 = %v", rows[1])
	}
	if rows[1][1] != "1700000000000" {
		t.Errorf("timestamp_ms = %s, want 1700000000000", rows[1][1])
	}
}

func TestHandler_Formats(t *testing.T) {
	log := sampleLog(t, 1)
	h := Handler(log)

	tests := []struct {
		query      string
		wantCode   int
		wantType   string
		wantPrefix string
	}{
		{"", 200, "application/json", "["},
		{"?format=json", 200, "application/json", "["},
		{"?format=csv", 200, "text/csv", "type,"},
		{"?format=xml", 400, "", ""},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("GET", "/export"+tt.query, nil))

		if rec.Code != tt.wantCode {
			t.Errorf("%q: status = %d, want %d", tt.query, rec.Code, tt.wantCode)
			continue
		}
		if tt.wantCode != 200 {
			continue
		}
		if ct := rec.Header().Get("Content-Type"); ct != tt.wantType {
			t.Errorf("%q: Content-Type = %q, want %q", tt.query, ct, tt.wantType)
		}
		if !strings.HasPrefix(rec.Body.String(), tt.wantPrefix) {
			t.Errorf("%q: body starts with %q", tt.query, rec.Body.String()[:1])
		}
		if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "attachment") {
			t.Errorf("%q: Content-Disposition = %q", tt.query, cd)
		}
	}
}
