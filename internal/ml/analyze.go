package ml

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/huntred/circle/internal/model"
	"github.com/huntred/circle/internal/resilience"
	"github.com/huntred/circle/pkg/anthropic"
)

// maxEvidenceChars bounds the scraped text sent to Claude per company.
const maxEvidenceChars = 6000

// revenuePerEmployee backs out a revenue estimate when none is stated.
const revenuePerEmployee = 15_000

// employeesPerOpening estimates headcount from open roles when no size is
// stated.
const employeesPerOpening = 15

// companyEvidence is every record scraped for one company.
type companyEvidence struct {
	key      string
	name     string
	sector   string
	jobs     int
	profiles int
	texts    []string
}

func (c *companyEvidence) text() string {
	return strings.Join(c.texts, "\n")
}

// groupCompanies folds records into per-company evidence, ordered by open
// jobs then name, and truncated to limit.
func groupCompanies(records []model.ScrapedRecord, limit int) []*companyEvidence {
	byKey := make(map[string]*companyEvidence)
	sectorVotes := make(map[string]map[string]int)
	for _, r := range records {
		key := model.CompanyKey(r.CompanyName)
		if key == "" {
			continue
		}
		c, ok := byKey[key]
		if !ok {
			c = &companyEvidence{key: key, name: strings.TrimSpace(r.CompanyName)}
			byKey[key] = c
			sectorVotes[key] = make(map[string]int)
		}
		switch r.Kind {
		case model.RecordJob:
			c.jobs++
		case model.RecordProfile:
			c.profiles++
		}
		if r.Sector != "" {
			sectorVotes[key][r.Sector]++
		}
		if t := strings.TrimSpace(r.Title + "\n" + r.Content); t != "" {
			c.texts = append(c.texts, t)
		}
	}

	out := make([]*companyEvidence, 0, len(byKey))
	for key, c := range byKey {
		c.sector = topVote(sectorVotes[key])
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].jobs != out[j].jobs {
			return out[i].jobs > out[j].jobs
		}
		return out[i].key < out[j].key
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// topVote picks the most frequent sector other than "general", breaking
// ties alphabetically.
func topVote(votes map[string]int) string {
	best, bestN := "general", 0
	for s, n := range votes {
		if s == "general" {
			continue
		}
		if n > bestN || (n == bestN && s < best) {
			best, bestN = s, n
		}
	}
	return best
}

var (
	employeesRe = regexp.MustCompile(`(?i)(\d[\d,.]*)\s*(?:\+\s*)?(?:empleados|colaboradores|trabajadores|employees)`)
	revenueRe   = regexp.MustCompile(`(?i)(\d[\d,.]*)\s*(mil millones|millones|million|billion|mdp|mdd)`)
)

var signalKeywords = []struct {
	signal   string
	keywords []string
}{
	{model.SignalHiringSurge, []string{"contratación masiva", "contratacion masiva", "hiring surge", "cientos de vacantes", "estamos contratando", "reclutamiento masivo"}},
	{model.SignalExpansion, []string{"expansión", "expansion", "inversión", "inversion", "nueva planta", "ampliación", "ampliacion"}},
	{model.SignalNewLocations, []string{"nueva sucursal", "nuevas sucursales", "nuevas oficinas", "nueva sede", "apertura", "new location"}},
	{model.SignalStableGrowth, []string{"crecimiento", "growth", "crece"}},
	{model.SignalStartup, []string{"startup", "start-up", "serie a", "series a", "seed", "emprendimiento"}},
	{model.SignalSmallBusiness, []string{"pyme", "pymes", "pequeña empresa", "small business", "negocio familiar"}},
}

var (
	positiveWords = []string{"crecimiento", "expansión", "expansion", "récord", "record", "éxito", "exito", "líder", "lider", "inversión", "inversion", "growth", "innovación", "innovacion", "premio", "mejor"}
	negativeWords = []string{"despidos", "layoffs", "recorte", "cierre", "crisis", "pérdidas", "perdidas", "quiebra", "demanda", "huelga", "rotación", "rotacion", "turnover", "reestructura"}
	turnoverWords = []string{"rotación", "rotacion", "turnover", "despidos", "layoffs", "renuncia", "reestructura", "clima laboral"}
)

// parseAmount reads numbers written with either comma or dot as the
// thousands separator ("1,500", "1.500", "2.5", "2,5").
func parseAmount(s string) float64 {
	s = strings.TrimRight(s, ".,")
	comma, dot := strings.LastIndex(s, ","), strings.LastIndex(s, ".")
	switch {
	case comma >= 0 && dot >= 0:
		// The later separator is the decimal point.
		if comma > dot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case comma >= 0:
		s = normalizeSeparator(s, ",")
	case dot >= 0:
		s = normalizeSeparator(s, ".")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// normalizeSeparator treats sep as a thousands separator when it repeats or
// is followed by exactly three digits, otherwise as the decimal point.
func normalizeSeparator(s, sep string) string {
	if strings.Count(s, sep) > 1 || len(s)-strings.LastIndex(s, sep) == 4 {
		return strings.ReplaceAll(s, sep, "")
	}
	return strings.Replace(s, sep, ".", 1)
}

func statedEmployees(text string) int {
	best := 0
	for _, m := range employeesRe.FindAllStringSubmatch(text, -1) {
		if n := int(parseAmount(m[1])); n > best {
			best = n
		}
	}
	return best
}

func statedRevenue(text string) float64 {
	best := 0.0
	for _, m := range revenueRe.FindAllStringSubmatch(text, -1) {
		v := parseAmount(m[1])
		switch strings.ToLower(m[2]) {
		case "mil millones", "billion":
			v *= 1e9
		default:
			v *= 1e6
		}
		if v > best {
			best = v
		}
	}
	return best
}

func countWords(lower string, words []string) int {
	n := 0
	for _, w := range words {
		n += strings.Count(lower, w)
	}
	return n
}

// sentiment scores text in [-1,1] from a small Spanish/English lexicon.
func sentiment(text string) float64 {
	lower := strings.ToLower(text)
	pos := countWords(lower, positiveWords)
	neg := countWords(lower, negativeWords)
	if pos+neg == 0 {
		return 0
	}
	return float64(pos-neg) / float64(pos+neg)
}

// heuristicAnalysis derives a company profile from keywords and stated
// figures alone.
func heuristicAnalysis(c *companyEvidence) model.CompanyAnalysis {
	text := c.text()
	lower := strings.ToLower(text)

	var signals []string
	for _, sk := range signalKeywords {
		for _, kw := range sk.keywords {
			if strings.Contains(lower, kw) {
				signals = append(signals, sk.signal)
				break
			}
		}
	}
	switch {
	case c.jobs >= 5:
		signals = appendUnique(signals, model.SignalHiringSurge)
	case c.jobs >= 2:
		signals = appendUnique(signals, model.SignalConsistentHiring)
	}

	conf := 0.4 + 0.1*float64(min(len(signals), 3))
	employees := statedEmployees(text)
	if employees > 0 {
		conf += 0.1
	} else {
		employees = c.jobs * employeesPerOpening
	}
	revenue := statedRevenue(text)
	if revenue > 0 {
		conf += 0.1
	} else {
		revenue = float64(employees) * revenuePerEmployee
	}

	return model.CompanyAnalysis{
		CompanyID:        c.key,
		Name:             c.name,
		Sector:           c.sector,
		EmployeeCount:    employees,
		RevenueEstimate:  revenue,
		GrowthIndicators: signals,
		OpenJobs:         c.jobs,
		Sentiment:        sentiment(text),
		Confidence:       min(conf, 0.9),
	}
}

func appendUnique(list []string, v string) []string {
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(list, v)
}

const analysisPrompt = `You analyse Mexican companies for an executive search firm. From the scraped job listings and news below, estimate the company's profile.

Allowed growth_indicators: hiring_surge, expansion, new_locations, consistent_hiring, stable_growth, startup, small_business.
revenue_estimate is annual revenue in MXN. sentiment is the tone of the coverage from -1.0 to 1.0. confidence is how well the evidence supports your estimates, 0.0 to 1.0.

Respond with ONLY valid JSON, no other text:
{"employee_count": 0, "revenue_estimate": 0, "sector": "", "growth_indicators": [], "sentiment": 0.0, "confidence": 0.0}`

type analysisResponse struct {
	EmployeeCount    int      `json:"employee_count"`
	RevenueEstimate  float64  `json:"revenue_estimate"`
	Sector           string   `json:"sector"`
	GrowthIndicators []string `json:"growth_indicators"`
	Sentiment        float64  `json:"sentiment"`
	Confidence       float64  `json:"confidence"`
}

var knownSignals = map[string]bool{
	model.SignalHiringSurge:      true,
	model.SignalExpansion:        true,
	model.SignalNewLocations:     true,
	model.SignalConsistentHiring: true,
	model.SignalStableGrowth:     true,
	model.SignalStartup:          true,
	model.SignalSmallBusiness:    true,
}

// claudeAnalysis asks Claude for the company profile. The returned usage is
// valid even when parsing fails.
func (e *Engine) claudeAnalysis(ctx context.Context, c *companyEvidence) (model.CompanyAnalysis, anthropic.TokenUsage, error) {
	evidence := c.text()
	if len(evidence) > maxEvidenceChars {
		evidence = evidence[:maxEvidenceChars]
	}
	userMsg := fmt.Sprintf("Company: %s\nSector hint: %s\nOpen job listings: %d\n\nEvidence:\n%s", c.name, c.sector, c.jobs, evidence)

	temp := 0.0
	resp, err := resilience.Do(ctx, e.guard, "claude analysis", func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return e.llm.CreateMessage(ctx, anthropic.MessageRequest{
			Model:       e.cfg.Model,
			MaxTokens:   e.cfg.MaxTokens,
			System:      []anthropic.SystemBlock{{Text: analysisPrompt, Cached: true}},
			Messages:    []anthropic.Message{{Role: "user", Content: userMsg}},
			Temperature: &temp,
		})
	})
	if err != nil {
		return model.CompanyAnalysis{}, anthropic.TokenUsage{}, eris.Wrapf(err, "ml: analyse %s", c.name)
	}

	var parsed analysisResponse
	if err := parseJSONObject(resp.Text(), &parsed); err != nil {
		return model.CompanyAnalysis{}, resp.Usage, eris.Wrapf(err, "ml: analyse %s", c.name)
	}

	var signals []string
	for _, s := range parsed.GrowthIndicators {
		s = strings.ToLower(strings.TrimSpace(s))
		if knownSignals[s] {
			signals = appendUnique(signals, s)
		}
	}
	sector := strings.ToLower(strings.TrimSpace(parsed.Sector))
	if sector == "" {
		sector = c.sector
	}

	return model.CompanyAnalysis{
		CompanyID:        c.key,
		Name:             c.name,
		Sector:           sector,
		EmployeeCount:    max(parsed.EmployeeCount, 0),
		RevenueEstimate:  max(parsed.RevenueEstimate, 0),
		GrowthIndicators: signals,
		OpenJobs:         c.jobs,
		Sentiment:        max(-1, min(1, parsed.Sentiment)),
		Confidence:       clamp01(parsed.Confidence),
	}, resp.Usage, nil
}

// parseJSONObject decodes the first {...} span of text into v.
func parseJSONObject(text string, v any) error {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return eris.Errorf("no JSON in response: %.200s", text)
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), v); err != nil {
		return eris.Wrap(err, "parse response JSON")
	}
	return nil
}
