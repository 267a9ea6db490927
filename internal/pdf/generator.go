package pdf

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"time"

	"github.com/playwright-community/playwright-go"

	"go-procurement-agent/internal/models"
)

//go:embed templates/report.html
var templates embed.FS

// lowConfidence marks rows a reviewer should double check.
const lowConfidence = 0.6

var reportTmpl = template.Must(template.New("report.html").Funcs(template.FuncMap{
	"lowConfidence": func(c models.Confidence) bool { return float64(c) < lowConfidence },
}).ParseFS(templates, "templates/report.html"))

// ContextFactory hands out isolated browser contexts; browser.PlaywrightManager
// satisfies it.
type ContextFactory interface {
	NewContext() (playwright.BrowserContext, error)
}

// Generator renders an extraction batch as a printable report.
type Generator struct {
	browsers ContextFactory
	now      func() time.Time
}

func NewGenerator(browsers ContextFactory) *Generator {
	return &Generator{browsers: browsers, now: time.Now}
}

// RenderHTML fills the report template for job and its batch.
func (g *Generator) RenderHTML(job *models.ScrapingJob, batch *models.ExtractionBatch) ([]byte, error) {
	var buf bytes.Buffer
	err := reportTmpl.Execute(&buf, struct {
		Job       *models.ScrapingJob
		Batch     *models.ExtractionBatch
		Generated string
	}{job, batch, g.now().UTC().Format("2006-01-02 15:04 MST")})
	if err != nil {
		return nil, fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.Bytes(), nil
}

// Generate renders the report and prints it to an A4 PDF in a throwaway
// browser context.
func (g *Generator) Generate(job *models.ScrapingJob, batch *models.ExtractionBatch) ([]byte, error) {
	html, err := g.RenderHTML(job, batch)
	if err != nil {
		return nil, err
	}

	bctx, err := g.browsers.NewContext()
	if err != nil {
		return nil, fmt.Errorf("could not create browser context: %w", err)
	}
	defer bctx.Close()

	page, err := bctx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("could not create new page: %w", err)
	}

	if err := page.SetContent(string(html), playwright.PageSetContentOptions{
		WaitUntil: playwright.WaitUntilStateLoad,
	}); err != nil {
		return nil, fmt.Errorf("could not set page content: %w", err)
	}

	pdfBytes, err := page.PDF(playwright.PagePdfOptions{
		Format:          playwright.String("A4"),
		Landscape:       playwright.Bool(true),
		PrintBackground: playwright.Bool(true),
		Margin: &playwright.Margin{
			Top:    playwright.String("12mm"),
			Bottom: playwright.String("12mm"),
			Left:   playwright.String("10mm"),
			Right:  playwright.String("10mm"),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("could not generate PDF: %w", err)
	}
	return pdfBytes, nil
}

// SaveToFile writes pdfBytes, creating the parent directory if needed.
func SaveToFile(pdfBytes []byte, outputPath string) error {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("could not create directory: %w", err)
	}
	return os.WriteFile(outputPath, pdfBytes, 0644)
}
