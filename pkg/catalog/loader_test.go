package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yamlDoc = `
courses:
  - kode_mk: TI101
    nama_mk: Algoritma dan Pemrograman
    sks: 3
    dosen: Dr. Ahmad Wijaya
    jadwal: Senin 08:00-10:00
    ruang: Lab Komputer A
    kapasitas: 40
  - kode_mk: TI106
    nama_mk: Pemrograman Web
    sks: 2
    semester: 3
`

func TestParseYAMLAppliesDefaults(t *testing.T) {
	courses, err := Parse(strings.NewReader(yamlDoc), FormatYAML)
	require.NoError(t, err)
	require.Len(t, courses, 2)

	assert.Equal(t, "TI101", courses[0].Code)
	assert.Equal(t, "Lab Komputer A", courses[0].Room)
	assert.Equal(t, DefaultSemester, courses[0].Semester)
	assert.Equal(t, DefaultCapacity, courses[1].Capacity)
	assert.Equal(t, 3, courses[1].Semester)
}

func TestParseJSON(t *testing.T) {
	doc := `{"courses":[{"kode_mk":"TI103","nama_mk":"Basis Data","sks":3,"ruang":"Lab Database","kapasitas":30}]}`
	courses, err := Parse(strings.NewReader(doc), FormatJSON)
	require.NoError(t, err)
	require.Len(t, courses, 1)
	assert.Equal(t, 30, courses[0].Capacity)
	assert.Equal(t, "Basis Data", courses[0].Title)
}

func TestParseRejectsInvalidEntries(t *testing.T) {
	cases := map[string]string{
		"zero credits":  `{"courses":[{"kode_mk":"X1","nama_mk":"X","sks":0}]}`,
		"missing code":  `{"courses":[{"nama_mk":"X","sks":2}]}`,
		"unknown field": `{"courses":[{"kode_mk":"X1","nama_mk":"X","sks":2,"prasyarat":"X0"}]}`,
		"duplicate":     `{"courses":[{"kode_mk":"X1","nama_mk":"X","sks":2},{"kode_mk":"X1","nama_mk":"Y","sks":2}]}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(doc), FormatJSON)
			assert.Error(t, err)
		})
	}
}

func TestLoadFileByExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yml")
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o600))

	courses, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, courses, 2)

	_, err = LoadFile(filepath.Join(dir, "catalog.csv"))
	assert.ErrorContains(t, err, "unsupported catalog file")
}

func TestBundledCatalog(t *testing.T) {
	courses, err := LoadFile(filepath.Join("..", "..", "configs", "catalog.yaml"))
	require.NoError(t, err)
	assert.Len(t, courses, 8)
}
