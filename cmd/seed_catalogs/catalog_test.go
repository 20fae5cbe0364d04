package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

func win1252(t *testing.T, s string) []byte {
	t.Helper()
	out, err := charmap.Windows1252.NewEncoder().String(s)
	require.NoError(t, err)
	return []byte(out)
}

func TestReadCatalog(t *testing.T) {
	raw := win1252(t, "c_ClaveUnidad,Nombre,FechaInicioVigencia,FechaFinVigencia\n"+
		"H87,Pieza,01/01/2022,\n"+
		"E48,Unidad de servicio,2022-01-01,\n"+
		"ACT,\"Actividad, económica\",01/01/2022,31/12/2023\n"+
		",,,\n"+
		"H87,Pieza (revisada),01/01/2022,\n")

	entries, err := readCatalog(bytes.NewReader(raw))
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "ACT", entries[0].Code, "ordenado por clave")
	assert.Equal(t, "Actividad, económica", entries[0].Description)
	require.NotNil(t, entries[0].ValidTo)
	assert.Equal(t, "2023-12-31", entries[0].ValidTo.Format("2006-01-02"))

	assert.Equal(t, "H87", entries[2].Code)
	assert.Equal(t, "Pieza (revisada)", entries[2].Description)
	assert.Nil(t, entries[2].ValidTo)
}

func TestReadCatalog_FechaInvalida(t *testing.T) {
	_, err := readCatalog(strings.NewReader("601,General,mañana,\n"))
	assert.ErrorContains(t, err, "línea 1")
}

func TestWriteSQL(t *testing.T) {
	entries, err := readCatalog(strings.NewReader("G03,Gastos en general,01/01/2022,\nS01,Sin efectos fiscales,,\n"))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, writeSQL(&buf, "c_UsoCFDI", entries))
	out := buf.String()
	assert.Contains(t, out, "('c_UsoCFDI', 'G03', 'Gastos en general', '2022-01-01', NULL),")
	assert.Contains(t, out, "('c_UsoCFDI', 'S01', 'Sin efectos fiscales', NULL, NULL)\n")
	assert.Contains(t, out, "ON CONFLICT (catalog, code) DO UPDATE SET")

	assert.Error(t, writeSQL(&buf, "c_UsoCFDI", nil))
}

func TestEscapeSQL(t *testing.T) {
	assert.Equal(t, "D''Angelo", escapeSQL("D'Angelo"))
}
