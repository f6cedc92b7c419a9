// Package export serializes the buffered message log for download.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/dmaslov/tablefeed/internal/feed"
)

// Format selects the export encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// record is the flat export shape shared by both encodings.
type record struct {
	Type       string          `json:"type"`
	Timestamp  time.Time       `json:"timestamp"`
	ReceivedAt time.Time       `json:"received_at"`
	Data       json.RawMessage `json:"data"`
}

// WriteJSON writes the messages as a JSON array, oldest first.
func WriteJSON(w io.Writer, msgs []feed.Message) error {
	records := make([]record, len(msgs))
	for i, m := range msgs {
		records[i] = record{
			Type:       m.Type,
			Timestamp:  m.Timestamp,
			ReceivedAt: m.ReceivedAt,
			Data:       m.Data,
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

// WriteCSV writes the messages as CSV with a header row, oldest first.
// Payloads are embedded as raw JSON in the data column.
func WriteCSV(w io.Writer, msgs []feed.Message) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"type", "timestamp_ms", "received_at_ms", "data"}); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}

	for _, m := range msgs {
		row := []string{
			m.Type,
			strconv.FormatInt(m.Timestamp.UnixMilli(), 10),
			strconv.FormatInt(m.ReceivedAt.UnixMilli(), 10),
			string(m.Data),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// Handler serves the current log contents. The format query parameter
// selects json (default) or csv; an unknown format is a 400.
func Handler(log *feed.Log) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		format := Format(r.URL.Query().Get("format"))
		if format == "" {
			format = FormatJSON
		}

		msgs := log.Snapshot()
		stamp := time.Now().UTC().Format("20060102-150405")

		switch format {
		case FormatJSON:
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Content-Disposition", `attachment; filename="feed-`+stamp+`.json"`)
			if err := WriteJSON(w, msgs); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
		case FormatCSV:
			w.Header().Set("Content-Type", "text/csv")
			w.Header().Set("Content-Disposition", `attachment; filename="feed-`+stamp+`.csv"`)
			if err := WriteCSV(w, msgs); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
		default:
			http.Error(w, "unsupported format: "+string(format), http.StatusBadRequest)
		}
	})
}
