package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocaleSize(t *testing.T) {
	en := mustLocale("en")

	tests := []struct {
		name  string
		bytes int64
		want  string
	}{
		{"zero", 0, "0 bytes"},
		{"bytes", 512, "512 bytes"},
		{"kilobytes", 1536, "1.5 KB"},
		{"whole megabytes", 5242880, "5 MB"},
		{"upload limit", 100 << 20, "100 MB"},
		{"gigabytes", 1610612736, "1.5 GB"},
		{"beyond largest unit", 2 << 40, "2,048 GB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, en.size(tt.bytes))
		})
	}
}

func TestLocaleSize_Cyrillic(t *testing.T) {
	ru := mustLocale("ru")
	assert.Equal(t, "1,5 КБ", ru.size(1536))
	assert.Equal(t, "0 байт", ru.size(0))

	kk, err := newLocale("kz")
	require.NoError(t, err)
	assert.Equal(t, "kk", kk.lang)
	assert.True(t, strings.HasSuffix(kk.size(3<<20), "МБ"))
}

func TestLocaleCount(t *testing.T) {
	assert.Equal(t, "1,234,567", mustLocale("en").count(1234567))
	assert.Equal(t, "42", mustLocale("ru").count(42))
}

func TestNewLocale_Unsupported(t *testing.T) {
	_, err := newLocale("fr")
	assert.ErrorContains(t, err, "unsupported language")
}

func TestFormatTime(t *testing.T) {
	now := time.Now()
	sameYear := time.Date(now.Year(), time.March, 15, 10, 30, 0, 0, time.Local)
	diffYear := time.Date(2020, time.December, 25, 8, 0, 0, 0, time.Local)

	t.Run("same year", func(t *testing.T) {
		result := formatTime(sameYear)
		assert.Contains(t, result, "Mar")
		assert.Contains(t, result, "15")
		assert.Contains(t, result, "10:30")
	})

	t.Run("different year", func(t *testing.T) {
		result := formatTime(diffYear)
		assert.Contains(t, result, "Dec")
		assert.Contains(t, result, "2020")
	})

	t.Run("zero", func(t *testing.T) {
		assert.Equal(t, "-", formatTime(time.Time{}))
	})
}

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer

	printTable(&buf, []string{"ID", "SIZE", "NAME"}, [][]string{
		{"1", "1.5 KB", "q1.xlsx"},
		{"22", "10 bytes", "q2.xlsx"},
	})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "ID  SIZE      NAME", lines[0])
	assert.Equal(t, "1   1.5 KB    q1.xlsx", lines[1])
	assert.Equal(t, "22  10 bytes  q2.xlsx", lines[2])
}

func TestPrintTable_NoHeadersCyrillic(t *testing.T) {
	var buf bytes.Buffer

	printTable(&buf, nil, [][]string{
		{"1,5 КБ", "a"},
		{"10 байт", "b"},
	})

	assert.Equal(t, "1,5 КБ   a\n10 байт  b\n", buf.String())
}
