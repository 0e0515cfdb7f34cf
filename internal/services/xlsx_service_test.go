package services

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestXlsxServiceReadSheet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "list.xlsx")
	writeWorkbook(t, path, [][]string{
		{"phone", "code", "note"},
		{"13800138000", "842842"},
		{"", "", ""},
		{"13900139000", "ABC123", "vip"},
	})

	service, err := NewXlsxService()
	if err != nil {
		t.Fatalf("NewXlsxService: %v", err)
	}

	data, err := service.ReadSheet(context.Background(), path)
	if err != nil {
		t.Fatalf("ReadSheet: %v", err)
	}
	if data.Name != "Sheet1" {
		t.Fatalf("Name = %q, want %q", data.Name, "Sheet1")
	}
	if len(data.Body()) != 2 {
		t.Fatalf("body rows = %d, want 2", len(data.Body()))
	}
	if len(data.Body()[0]) != 3 {
		t.Fatalf("short row width = %d, want 3", len(data.Body()[0]))
	}
	if data.Body()[1][2] != "vip" {
		t.Fatalf("note = %q, want %q", data.Body()[1][2], "vip")
	}
}

func TestXlsxServiceReadSheetMissing(t *testing.T) {
	service, err := NewXlsxService()
	if err != nil {
		t.Fatalf("NewXlsxService: %v", err)
	}

	_, err = service.ReadSheet(context.Background(), filepath.Join(t.TempDir(), "absent.xlsx"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("ReadSheet missing: err = %v, want fs.ErrNotExist", err)
	}
}

func TestXlsxServiceWriteSheetReplacesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "claims.xlsx")

	service, err := NewXlsxService()
	if err != nil {
		t.Fatalf("NewXlsxService: %v", err)
	}

	first := SheetData{Name: "claims", Rows: [][]string{{"phone", "code"}, {"13800138000", "0842"}}}
	if err := service.WriteSheet(context.Background(), path, first); err != nil {
		t.Fatalf("WriteSheet: %v", err)
	}
	second := SheetData{Name: "claims", Rows: [][]string{{"phone", "code"}, {"13800138000", "0842"}, {"13900139000", "77"}}}
	if err := service.WriteSheet(context.Background(), path, second); err != nil {
		t.Fatalf("WriteSheet again: %v", err)
	}

	rows := readWorkbook(t, path)
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	if rows[1][1] != "0842" {
		t.Fatalf("code = %q, want leading zero kept", rows[1][1])
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("dir entries = %d, want only the workbook", len(entries))
	}
}

func TestXlsxServiceEncodeSheet(t *testing.T) {
	service, err := NewXlsxService()
	if err != nil {
		t.Fatalf("NewXlsxService: %v", err)
	}

	content, err := service.EncodeSheet(context.Background(), SheetData{Name: "领取记录", Rows: [][]string{{"手机号"}, {"13800138000"}}})
	if err != nil {
		t.Fatalf("EncodeSheet: %v", err)
	}

	workbook, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		t.Fatalf("open encoded workbook: %v", err)
	}
	defer workbook.Close()

	sheets := workbook.GetSheetList()
	if len(sheets) != 1 || sheets[0] != "领取记录" {
		t.Fatalf("sheets = %v, want [领取记录]", sheets)
	}
	value, err := workbook.GetCellValue("领取记录", "A2")
	if err != nil {
		t.Fatalf("GetCellValue: %v", err)
	}
	if value != "13800138000" {
		t.Fatalf("A2 = %q, want %q", value, "13800138000")
	}
}

func TestXlsxServiceNilReceiver(t *testing.T) {
	var service *XlsxService
	if _, err := service.ReadSheet(context.Background(), "x.xlsx"); err == nil {
		t.Fatalf("ReadSheet nil receiver: expected error")
	}
	if err := service.WriteSheet(context.Background(), "x.xlsx", SheetData{}); err == nil {
		t.Fatalf("WriteSheet nil receiver: expected error")
	}
}

func TestColumnIndex(t *testing.T) {
	header := []string{" 手机号 ", "Code", "状态"}
	if got := columnIndex(header, []string{"phone", "手机号"}); got != 0 {
		t.Fatalf("phone column = %d, want 0", got)
	}
	if got := columnIndex(header, []string{"code"}); got != 1 {
		t.Fatalf("code column = %d, want 1", got)
	}
	if got := columnIndex(header, []string{"claimedAt"}); got != -1 {
		t.Fatalf("claimedAt column = %d, want -1", got)
	}
}
