package export

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/odyssey-erp/docflow/internal/reports"
	"github.com/odyssey-erp/docflow/internal/shared"
)

const (
	csvFlushEvery = 200
	csvBufferSize = 32 * 1024
)

type csvStreamer struct {
	buf          *bufio.Writer
	csv          *csv.Writer
	flushEvery   int
	pendingLines int
}

func newCSVStreamer(w io.Writer) *csvStreamer {
	buf := bufio.NewWriterSize(w, csvBufferSize)
	writer := csv.NewWriter(buf)
	writer.UseCRLF = true
	return &csvStreamer{buf: buf, csv: writer, flushEvery: csvFlushEvery}
}

// writeComment emits a metadata line. Readers skip these with csv.Reader.Comment = '#'.
func (s *csvStreamer) writeComment(line string) error {
	if s == nil || s.buf == nil {
		return fmt.Errorf("export: csv streamer not initialised")
	}
	// Pending records must reach the buffer before raw text does.
	s.csv.Flush()
	if err := s.csv.Error(); err != nil {
		return err
	}
	line = "# " + strings.TrimRight(line, "\r\n") + "\r\n"
	_, err := s.buf.WriteString(line)
	return err
}

func (s *csvStreamer) writeRow(row []string) error {
	if s == nil || s.csv == nil {
		return fmt.Errorf("export: csv streamer not initialised")
	}
	if err := s.csv.Write(row); err != nil {
		return err
	}
	s.pendingLines++
	if s.flushEvery > 0 && s.pendingLines >= s.flushEvery {
		return s.Flush()
	}
	return nil
}

func (s *csvStreamer) Flush() error {
	if s == nil || s.csv == nil || s.buf == nil {
		return fmt.Errorf("export: csv streamer not initialised")
	}
	s.csv.Flush()
	if err := s.csv.Error(); err != nil {
		return err
	}
	if err := s.buf.Flush(); err != nil {
		return err
	}
	s.pendingLines = 0
	return nil
}

// WriteLineageCSV streams the lineage table as CRLF-delimited CSV.
func WriteLineageCSV(w io.Writer, report reports.LineageReport) error {
	streamer := newCSVStreamer(w)
	if err := writeMetadata(streamer, "Document lineage", report.Status, report.GeneratedAt,
		"Timezone: "+report.Timezone); err != nil {
		return err
	}
	if err := streamer.writeRow(LineageHeader); err != nil {
		return err
	}
	for _, row := range report.Rows {
		if err := streamer.writeRow(cellStrings(lineageCells(row))); err != nil {
			return err
		}
	}
	return streamer.Flush()
}

// WriteBreakdownCSV streams an order breakdown as CRLF-delimited CSV.
func WriteBreakdownCSV(w io.Writer, report reports.BreakdownReport) error {
	streamer := newCSVStreamer(w)
	date := ""
	if report.Date != nil {
		date = report.Date.String()
	}
	if err := writeMetadata(streamer, "Order breakdown", report.Status, report.GeneratedAt,
		fmt.Sprintf("Document: %s %s | Client: %s | Date: %s", report.DocType, report.DocNumber, report.Client, date),
		fmt.Sprintf("Mode: %s | Sort: %s | Catalog: %s", report.Mode, report.Sort, report.CatalogSource),
	); err != nil {
		return err
	}
	if err := streamer.writeRow(BreakdownHeader); err != nil {
		return err
	}
	for _, row := range report.Rows {
		if err := streamer.writeRow(cellStrings(breakdownCells(row))); err != nil {
			return err
		}
	}
	return streamer.Flush()
}

func writeMetadata(streamer *csvStreamer, name string, status shared.Status, generated time.Time, extra ...string) error {
	if err := streamer.writeComment("Report: " + name); err != nil {
		return err
	}
	if err := streamer.writeComment(fmt.Sprintf("Status: %s | Generated: %s", status, generated.UTC().Format(time.RFC3339))); err != nil {
		return err
	}
	for _, line := range extra {
		if err := streamer.writeComment(line); err != nil {
			return err
		}
	}
	return nil
}
