package parser

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/FACorreiaa/smart-import/internal/domain/common"
	"github.com/FACorreiaa/smart-import/internal/domain/import/sniffer"
)

func TestParser_ParseCSV(t *testing.T) {
	t.Run("parses semicolon export with BOM", func(t *testing.T) {
		data := "\uFEFFDate;Libellé;Débit;Crédit\n31/01/2024;Virement reçu;;150,00\n01/02/2024;CB CARREFOUR;45,20;\n"

		table, err := NewParser(0).Parse([]byte(data), "text/csv")

		require.NoError(t, err)
		assert.Equal(t, []string{"Date", "Libellé", "Débit", "Crédit"}, table.Headers)
		require.Len(t, table.Rows, 2)
		assert.Equal(t, "Virement reçu", table.Rows[0].Get("Libellé"))
		assert.Equal(t, "150,00", table.Rows[0].Get("Crédit"))
		assert.Equal(t, 2, table.Rows[0].Line)
		assert.Equal(t, 3, table.Rows[1].Line)
	})

	t.Run("falls back to latin-1", func(t *testing.T) {
		// "Libellé" and "reçu" encoded as ISO-8859-1
		data := []byte("Date,Libell\xe9,Montant\n31/01/2024,Virement re\xe7u,150.00\n")

		table, err := NewParser(0).ParseCSV(data)

		require.NoError(t, err)
		assert.Equal(t, "Libellé", table.Headers[1])
		assert.Equal(t, "Virement reçu", table.Rows[0].Get("Libellé"))
	})

	t.Run("tolerates ragged rows", func(t *testing.T) {
		data := "Date,Description,Amount\n2024-01-01,Short\n2024-01-02,Long,10.00,extra\n"

		table, err := NewParser(0).ParseCSV([]byte(data))

		require.NoError(t, err)
		require.Len(t, table.Rows, 2)
		assert.Equal(t, "", table.Rows[0].Get("Amount"))
		assert.Equal(t, "10.00", table.Rows[1].Get("Amount"))
		assert.Len(t, table.Rows[1].Values, 3)
	})

	t.Run("skips blank rows and keeps source lines", func(t *testing.T) {
		data := "Date,Amount\n2024-01-01,1\n,\n\n2024-01-02,2\n"

		table, err := NewParser(0).ParseCSV([]byte(data))

		require.NoError(t, err)
		require.Len(t, table.Rows, 2)
		assert.Equal(t, 5, table.Rows[1].Line)
	})

	t.Run("renames duplicate and empty headers", func(t *testing.T) {
		data := "Date,Date, ,Amount\n1,2,3,4\n"

		table, err := NewParser(0).ParseCSV([]byte(data))

		require.NoError(t, err)
		assert.Equal(t, []string{"Date", "Date_2", "column_3", "Amount"}, table.Headers)
	})

	t.Run("header only is empty data", func(t *testing.T) {
		_, err := NewParser(0).Parse([]byte("Date,Amount\n"), "text/csv")

		require.ErrorIs(t, err, ErrEmptyData)
		assert.Equal(t, common.KindInvalidInput, common.KindOf(err))
	})

	t.Run("empty file", func(t *testing.T) {
		_, err := NewParser(0).Parse([]byte("  \n"), "text/csv")
		require.ErrorIs(t, err, ErrEmptyData)
	})

	t.Run("rejects too many rows", func(t *testing.T) {
		var sb strings.Builder
		sb.WriteString("Date,Amount\n")
		for i := 0; i < 11; i++ {
			fmt.Fprintf(&sb, "2024-01-%02d,%d\n", i+1, i)
		}

		_, err := NewParser(10).Parse([]byte(sb.String()), "text/csv")

		require.ErrorIs(t, err, ErrTooManyRows)
		assert.Equal(t, common.KindInvalidInput, common.KindOf(err))
	})
}

func TestParser_ParseXLSX(t *testing.T) {
	t.Run("reads first sheet and renders dates", func(t *testing.T) {
		f := excelize.NewFile()
		sheet := "Sheet1"
		require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"Date", "Description", "Amount"}))
		require.NoError(t, f.SetCellValue(sheet, "A2", time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)))
		require.NoError(t, f.SetCellValue(sheet, "B2", "Virement reçu"))
		require.NoError(t, f.SetCellValue(sheet, "C2", 150.5))
		require.NoError(t, f.SetCellValue(sheet, "B3", "No date"))

		_, err := f.NewSheet("Other")
		require.NoError(t, err)
		require.NoError(t, f.SetCellValue("Other", "A1", "ignored"))

		buf, err := f.WriteToBuffer()
		require.NoError(t, err)

		table, err := NewParser(0).Parse(buf.Bytes(), sniffer.MIMEXLSX)

		require.NoError(t, err)
		assert.Equal(t, []string{"Date", "Description", "Amount"}, table.Headers)
		require.Len(t, table.Rows, 2)
		assert.Equal(t, "2024-01-31", table.Rows[0].Get("Date"))
		assert.Equal(t, "150.5", table.Rows[0].Get("Amount"))
		assert.Equal(t, "", table.Rows[1].Get("Date"))
		assert.Equal(t, "", table.Rows[1].Get("Amount"))
		assert.Equal(t, 3, table.Rows[1].Line)
	})

	t.Run("header only workbook", func(t *testing.T) {
		f := excelize.NewFile()
		require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"Date", "Amount"}))
		buf, err := f.WriteToBuffer()
		require.NoError(t, err)

		_, err = NewParser(0).Parse(buf.Bytes(), sniffer.MIMEXLSX)
		require.ErrorIs(t, err, ErrEmptyData)
	})

	t.Run("corrupt archive", func(t *testing.T) {
		_, err := NewParser(0).Parse([]byte("PK\x03\x04garbage"), sniffer.MIMEXLSX)
		require.Error(t, err)
		assert.Equal(t, common.KindInvalidInput, common.KindOf(err))
	})
}

func TestIsDateFormatCode(t *testing.T) {
	assert.True(t, isDateFormatCode("dd/mm/yyyy"))
	assert.True(t, isDateFormatCode("yyyy-mm-dd hh:mm"))
	assert.False(t, isDateFormatCode("#,##0.00"))
	assert.False(t, isDateFormatCode(`0.00" days"`))
}
