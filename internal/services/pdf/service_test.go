package pdf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/arbor"
)

func TestConvertMarkdownToPDF(t *testing.T) {
	logger := arbor.NewLogger()
	service := NewService(logger)

	tests := []struct {
		name     string
		markdown string
		title    string
		wantErr  bool
	}{
		{
			name:     "Basic Report",
			markdown: "# GNP.AU Daily Brief\n\nSome analysis text.\n\n- Signal 1\n- Signal 2",
			title:    "GNP.AU Daily Brief",
			wantErr:  false,
		},
		{
			name:     "Empty Markdown",
			markdown: "",
			title:    "Empty Doc",
			wantErr:  false,
		},
		{
			name: "Report with Price Table",
			markdown: `# Price History

Recent closes.

| Date | Close |
|------|-------|
| 2026-01-05 | 1.23 |
| 2026-01-06 | 1.25 |

` + "```\nraw data snippet\n```",
			title:   "Price History",
			wantErr: false,
		},
		{
			name:     "Bold and Italic",
			markdown: "Normal **Bold** *Italic* ***BoldItalic***",
			title:    "Styling",
			wantErr:  false,
		},
		{
			name:     "Frontmatter Stripped",
			markdown: "---\nsymbol: GNP.AU\n---\n# Report\n\nBody text.",
			title:    "Frontmatter",
			wantErr:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pdfBytes, err := service.ConvertMarkdownToPDF(tt.markdown, tt.title)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			assert.NoError(t, err)
			assert.NotNil(t, pdfBytes)
			assert.NotEmpty(t, pdfBytes)

			// Basic PDF header check
			assert.Equal(t, "%PDF", string(pdfBytes[:4]))
		})
	}
}

func TestConvertMarkdownToPDF_WideTable(t *testing.T) {
	logger := arbor.NewLogger()
	service := NewService(logger)

	markdown := `
# Fundamentals

| Metric | Value | Sector | Notes |
|--------|-------|--------|-------|
| Market Cap | 1.2B | Industrials | Mid cap |
| PE Ratio | 18.4 | Industrials | Near sector median |

End of table.
`
	pdfBytes, err := service.ConvertMarkdownToPDF(markdown, "Fundamentals")
	assert.NoError(t, err)
	assert.NotNil(t, pdfBytes)
	assert.Greater(t, len(pdfBytes), 500)
	assert.Equal(t, "%PDF", string(pdfBytes[:4]))
}
