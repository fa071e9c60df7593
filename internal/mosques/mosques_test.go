package mosques

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	l := Default()
	require.Len(t, l, 28)

	m, ok := l.Lookup("bury-park-jamia-masjid")
	require.True(t, ok)
	assert.Equal(t, "Bury Park Jamia Masjid", m.Name)
	assert.Contains(t, m.URL, "refkey=")

	_, ok = l.Lookup("not-a-mosque")
	assert.False(t, ok)

	slugs := l.Slugs()
	assert.Len(t, slugs, len(l))
	assert.Equal(t, "al-hira-centre", slugs[0])
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantLen int
		wantErr string // substring, or "*" for any error
	}{
		{
			name:    "empty",
			input:   "",
			wantLen: 0,
		},
		{
			name:    "single",
			input:   "[[mosque]]\nslug = \"masjid-bilal\"\nurl = \"https://example.com/masjid-bilal?refkey=x\"\n",
			wantLen: 1,
		},
		{
			name:    "invalid slug",
			input:   "[[mosque]]\nslug = \"Masjid Bilal\"\nurl = \"https://example.com/\"\n",
			wantErr: "invalid slug",
		},
		{
			name:    "duplicate slug",
			input:   "[[mosque]]\nslug = \"a\"\nurl = \"https://example.com/a\"\n[[mosque]]\nslug = \"a\"\nurl = \"https://example.com/b\"\n",
			wantErr: "duplicate slug",
		},
		{
			name:    "bad url",
			input:   "[[mosque]]\nslug = \"a\"\nurl = \"ftp://example.com/a\"\n",
			wantErr: "invalid url",
		},
		{
			name:    "unknown key",
			input:   "[[mosque]]\nslug = \"a\"\nurl = \"https://example.com/a\"\naddress = \"Luton\"\n",
			wantErr: "unknown key",
		},
		{
			name:    "syntax",
			input:   "[[mosque]\n",
			wantErr: "*",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := Parse([]byte(tt.input))
			if tt.wantErr != "" {
				require.Error(t, err)
				if tt.wantErr != "*" {
					assert.Contains(t, err.Error(), tt.wantErr)
				}
				return
			}
			require.NoError(t, err)
			assert.Len(t, l, tt.wantLen)
		})
	}
}

func TestLoad(t *testing.T) {
	l, err := Load("")
	require.NoError(t, err)
	assert.Len(t, l, 28)

	path := filepath.Join(t.TempDir(), "mosques.toml")
	require.NoError(t, os.WriteFile(path, []byte("[[mosque]]\nname = \"Yusuf Hall\"\nslug = \"yusuf-hall\"\nurl = \"https://example.com/yusuf-hall\"\n"), 0666))

	l, err = Load(path)
	require.NoError(t, err)
	require.Len(t, l, 1)
	assert.Equal(t, "yusuf-hall", l[0].Slug)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestMonthURL(t *testing.T) {
	m := Mosque{
		Slug: "masjid-bilal",
		URL:  "https://www.inspirefm.org/view-prayer-timings/masjid-bilal?refkey=FQEhRGD3UvmSZPw",
	}
	assert.Equal(t, "https://www.inspirefm.org/view-prayer-timings/masjid-bilal?month=03&refkey=FQEhRGD3UvmSZPw", m.MonthURL(time.March))
	assert.Equal(t, "https://www.inspirefm.org/view-prayer-timings/masjid-bilal?month=11&refkey=FQEhRGD3UvmSZPw", m.MonthURL(time.November))

	m.URL = "https://example.com/x?month=01"
	assert.Equal(t, "https://example.com/x?month=12", m.MonthURL(time.December))
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "Masjid Bilal", Mosque{Slug: "masjid-bilal", Name: " Masjid Bilal "}.Label())
	assert.Equal(t, "masjid-bilal", Mosque{Slug: "masjid-bilal"}.Label())
}
