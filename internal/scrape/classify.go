package scrape

import (
	"regexp"
	"strings"

	"github.com/huntred/circle/internal/model"
)

// minContentLen is the shortest page body treated as real content.
const minContentLen = 100

var (
	jobTitleRe = regexp.MustCompile(`(?i)\b(vacante|empleo|oferta|se solicita|contratando|hiring|job|position|gerente|director|directora|coordinador|analista|ingeniero|manager|engineer|analyst)\b`)
	profileRe  = regexp.MustCompile(`(?i)(linkedin\.com/in/|/perfil/|/profile/)`)
	// "Title - Company", "Title | Company", "Title en Company", "Title at Company".
	companySepRe = regexp.MustCompile(`\s(?:-|–|\||en|at)\s`)
)

var challengeSignatures = []string{
	"checking your browser",
	"enable javascript",
	"please enable cookies",
	"access denied",
	"403 forbidden",
	"just a moment",
	"attention required",
	"captcha",
}

// blocked reports whether content is an anti-bot interstitial rather than
// the page itself.
func blocked(content string) bool {
	if len(content) >= 1000 {
		return false
	}
	lower := strings.ToLower(content)
	for _, sig := range challengeSignatures {
		if strings.Contains(lower, sig) {
			return true
		}
	}
	return false
}

var sectorKeywords = []struct {
	sector   string
	keywords []string
}{
	{"technology", []string{"software", "tecnología", "tecnologia", "developer", "desarrollador", "cloud", "datos", "data"}},
	{"finance", []string{"finanzas", "financiero", "banco", "bank", "fintech", "contador", "accounting"}},
	{"manufacturing", []string{"manufactura", "planta", "producción", "produccion", "industrial", "automotriz", "maquila"}},
	{"logistics", []string{"logística", "logistica", "transporte", "almacén", "almacen", "supply chain", "cadena de suministro"}},
	{"retail", []string{"retail", "tienda", "ventas", "comercio", "e-commerce", "ecommerce"}},
	{"healthcare", []string{"salud", "hospital", "farmacéutica", "farmaceutica", "clínica", "clinica", "health"}},
	{"energy", []string{"energía", "energia", "petróleo", "petroleo", "gas", "solar", "minería", "mineria"}},
}

// detectSector returns the first sector whose keywords appear in text.
func detectSector(text string) string {
	lower := strings.ToLower(text)
	for _, s := range sectorKeywords {
		for _, kw := range s.keywords {
			if strings.Contains(lower, kw) {
				return s.sector
			}
		}
	}
	return "general"
}

// companyFromTitle extracts the company from a listing title, preferring
// the segment after the last separator.
func companyFromTitle(title string) string {
	locs := companySepRe.FindAllStringIndex(title, -1)
	if len(locs) == 0 {
		return ""
	}
	last := locs[len(locs)-1]
	return strings.TrimSpace(title[last[1]:])
}

// classify turns one search hit into a record. Job boards yield jobs unless
// the hit is a profile; company and government sources yield companies
// unless the title reads like a vacancy.
func classify(category model.TargetCategory, domain, term, title, url, content string) model.ScrapedRecord {
	rec := model.ScrapedRecord{
		Category:   category,
		Domain:     domain,
		URL:        url,
		Title:      strings.TrimSpace(title),
		Content:    content,
		SearchTerm: term,
	}

	switch {
	case profileRe.MatchString(url):
		rec.Kind = model.RecordProfile
	case category == model.CategorySocial:
		rec.Kind = model.RecordProfile
	case category == model.CategoryJobBoards || jobTitleRe.MatchString(title):
		rec.Kind = model.RecordJob
	default:
		rec.Kind = model.RecordCompany
	}

	if rec.Kind == model.RecordCompany {
		rec.CompanyName = rec.Title
		if c := companyFromTitle(rec.Title); c != "" {
			rec.CompanyName = c
		}
	} else {
		rec.CompanyName = companyFromTitle(rec.Title)
	}
	rec.Sector = detectSector(title + " " + content + " " + term)
	return rec
}
