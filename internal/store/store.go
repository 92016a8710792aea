package store

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/rafagois03/EmbarquesTMSLincros/constants"
	"github.com/rafagois03/EmbarquesTMSLincros/internal/common"
	"github.com/rafagois03/EmbarquesTMSLincros/internal/entity"
)

// Options control how a workbook is read.
type Options struct {
	Sheet   string // overrides Profile.Sheet; empty means the first sheet
	Profile *Profile
	Logger  *slog.Logger
}

// Store is the in-memory view of one worksheet. Only control cells are ever written
// back; every other cell of the workbook is preserved as loaded.
type Store struct {
	path    string
	sheet   string
	file    *excelize.File
	columns map[constants.Column]int // canonical column -> 1-based sheet column
	records []*entity.Record
	logger  *slog.Logger
}

// Open loads the workbook at path.
func Open(path string, opts Options) (*Store, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, common.NewPersistenceError("open workbook "+path, err)
	}
	s, err := load(f, opts)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	s.path = path
	return s, nil
}

func load(f *excelize.File, opts Options) (*Store, error) {
	start := time.Now()
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	profile := opts.Profile
	if profile == nil {
		profile = DefaultProfile()
	}

	sheet := opts.Sheet
	if sheet == "" {
		sheet = profile.Sheet
	}
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, common.NewPersistenceError("workbook has no sheets", nil)
		}
		sheet = sheets[0]
	}
	if idx, _ := f.GetSheetIndex(sheet); idx == -1 {
		return nil, common.NewPersistenceError(fmt.Sprintf("sheet %q not found", sheet), nil)
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, common.NewPersistenceError("read rows", err)
	}
	if len(rows) == 0 {
		return nil, common.NewPersistenceError(fmt.Sprintf("sheet %q has no header row", sheet), nil)
	}

	s := &Store{
		sheet:   sheet,
		file:    f,
		columns: make(map[constants.Column]int),
		logger:  logger,
	}

	header := rows[0]
	for i, caption := range header {
		col := profile.Canonicalize(caption)
		if col == "" {
			continue
		}
		if _, dup := s.columns[col]; dup {
			logger.Warn("store.header.duplicate", "column", string(col), "index", i+1)
			continue
		}
		s.columns[col] = i + 1
	}

	if missing := profile.Missing(s.columns); len(missing) > 0 {
		names := make([]string, len(missing))
		for i, m := range missing {
			names[i] = string(m)
		}
		return nil, common.NewPersistenceError("missing required columns: "+strings.Join(names, ", "), nil)
	}

	next := len(header) + 1
	for _, col := range constants.ControlColumns {
		if _, ok := s.columns[col]; ok {
			continue
		}
		cell, _ := excelize.CoordinatesToCellName(next, 1)
		if err := f.SetCellValue(sheet, cell, constants.ControlHeaders[col]); err != nil {
			return nil, common.NewPersistenceError("add control column", err)
		}
		s.columns[col] = next
		logger.Info("store.control_column.added", "column", constants.ControlHeaders[col], "cell", cell)
		next++
	}

	for i := 1; i < len(rows); i++ {
		if blankRow(rows[i]) {
			continue
		}
		rec, err := s.toRecord(i+1, rows[i])
		if err != nil {
			return nil, common.NewPersistenceError("read control fields", err)
		}
		s.records = append(s.records, rec)
	}

	logger.Info("store.load.ok",
		"sheet", sheet,
		"records", len(s.records),
		"columns", len(s.columns),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return s, nil
}

func (s *Store) toRecord(sheetRow int, cells []string) (*entity.Record, error) {
	rec := entity.NewRecord(sheetRow)
	for col, idx := range s.columns {
		if idx-1 < len(cells) {
			rec.Fields[col] = cells[idx-1]
		} else {
			rec.Fields[col] = ""
		}
	}

	var err error
	if rec.Protocol, err = parseControl(rec, constants.ColProtocol); err != nil {
		return nil, err
	}
	if rec.ShipmentID, err = parseControl(rec, constants.ColShipmentID); err != nil {
		return nil, err
	}
	if v := rec.Fields[constants.ColFreightSpot]; !entity.IsBlank(v) {
		v = strings.TrimSpace(v)
		rec.FreightSpot = &v
	}
	return rec, nil
}

func parseControl(rec *entity.Record, col constants.Column) (*int64, error) {
	raw := rec.Fields[col]
	if entity.IsBlank(raw) {
		return nil, nil
	}
	n, err := ParseInt(raw)
	if err != nil {
		return nil, &common.MalformedRecordError{Row: rec.Row, Column: string(col), Value: raw, Reason: err.Error()}
	}
	return &n, nil
}

// ParseInt coerces cell text to an integer. Integral float renderings ("111.0",
// "1.11E+2") are accepted since spreadsheet tools store numbers as doubles.
func ParseInt(raw string) (int64, error) {
	s := strings.TrimSpace(raw)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not an integer")
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, fmt.Errorf("not an integer")
	}
	return int64(f), nil
}

func blankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// Records returns the loaded rows in sheet order. Callers mutate them in place.
func (s *Store) Records() []*entity.Record {
	return s.records
}

// Path is where Save writes; empty for stores read from a stream.
func (s *Store) Path() string {
	return s.path
}

// Sheet is the worksheet the records came from.
func (s *Store) Sheet() string {
	return s.sheet
}

// Save writes the control cells back and saves the workbook to its path.
// A failed save leaves the in-memory records untouched so it can be retried.
func (s *Store) Save() error {
	if s.path == "" {
		return common.NewPersistenceError("save workbook: no path; use SaveAs", nil)
	}
	return s.SaveAs(s.path)
}

// SaveAs writes the control cells back and saves the workbook to path.
func (s *Store) SaveAs(path string) error {
	start := time.Now()
	if err := s.flush(); err != nil {
		return err
	}
	if err := s.file.SaveAs(path); err != nil {
		s.logger.Error("store.save.failed", "path", path, "error", err)
		return common.NewPersistenceError("save workbook "+path, err)
	}
	s.path = path
	s.logger.Info("store.save.ok", "path", path, "records", len(s.records), "elapsed_ms", time.Since(start).Milliseconds())
	return nil
}

func (s *Store) flush() error {
	for _, rec := range s.records {
		if err := s.writeControl(rec.Row, constants.ColProtocol, rec.Protocol); err != nil {
			return err
		}
		if err := s.writeControl(rec.Row, constants.ColShipmentID, rec.ShipmentID); err != nil {
			return err
		}
	}
	return nil
}

// writeControl only writes assigned values; a nil control field was blank on load.
func (s *Store) writeControl(row int, col constants.Column, v *int64) error {
	if v == nil {
		return nil
	}
	cell, err := excelize.CoordinatesToCellName(s.columns[col], row)
	if err != nil {
		return common.NewPersistenceError("locate control cell", err)
	}
	if err := s.file.SetCellValue(s.sheet, cell, *v); err != nil {
		return common.NewPersistenceError("write control cell "+cell, err)
	}
	return nil
}

// Close releases the workbook.
func (s *Store) Close() error {
	return s.file.Close()
}
