package scrape

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/huntred/circle/internal/model"
	"github.com/huntred/circle/pkg/jina"
)

// JinaScraper implements CategoryScraper on the Jina search and reader
// endpoints. Each (domain, search term) pair is one site-filtered search;
// a domain with no search terms is read directly.
type JinaScraper struct {
	client      jina.Client
	maxResults  int
	concurrency int
}

// NewJinaScraper creates a JinaScraper. maxResults caps hits kept per search.
func NewJinaScraper(client jina.Client, maxResults, concurrency int) *JinaScraper {
	if maxResults <= 0 {
		maxResults = 10
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &JinaScraper{client: client, maxResults: maxResults, concurrency: concurrency}
}

type fetchResult struct {
	domain  string
	records []model.ScrapedRecord
	tokens  int
	err     error
}

// Scrape runs every search of the group. It fails only when every request
// failed; partial failures are logged and skipped.
func (s *JinaScraper) Scrape(ctx context.Context, group model.TargetGroup) (*model.CategoryResult, error) {
	if len(group.Domains) == 0 {
		return &model.CategoryResult{Category: group.Category, Priority: group.Priority}, nil
	}

	type task struct{ domain, term string }
	var tasks []task
	for _, domain := range group.Domains {
		if len(group.SearchTerms) == 0 {
			tasks = append(tasks, task{domain: domain})
			continue
		}
		for _, term := range group.SearchTerms {
			tasks = append(tasks, task{domain: domain, term: term})
		}
	}

	fetched := make([]fetchResult, len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, t := range tasks {
		g.Go(func() error {
			fetched[i] = s.fetch(gctx, group.Category, t.domain, t.term)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "scrape: jina")
	}
	return s.collect(group, fetched)
}

func (s *JinaScraper) fetch(ctx context.Context, category model.TargetCategory, domain, term string) fetchResult {
	fr := fetchResult{domain: domain}

	if term == "" {
		resp, err := s.client.Read(ctx, "https://"+domain)
		if err != nil {
			fr.err = err
			return fr
		}
		fr.tokens = resp.Data.Usage.Tokens
		if content := strings.TrimSpace(resp.Data.Content); len(content) >= minContentLen && !blocked(content) {
			fr.records = append(fr.records, classify(category, domain, "", resp.Data.Title, resp.Data.URL, content))
		}
		return fr
	}

	resp, err := s.client.Search(ctx, term, jina.WithSite(domain))
	if err != nil {
		fr.err = err
		return fr
	}
	fr.tokens = resp.Tokens()
	for i, hit := range resp.Data {
		if i >= s.maxResults {
			break
		}
		content := strings.TrimSpace(hit.Content)
		if content == "" {
			content = strings.TrimSpace(hit.Description)
		}
		if hit.Title == "" || blocked(content) {
			continue
		}
		fr.records = append(fr.records, classify(category, domain, term, hit.Title, hit.URL, content))
	}
	return fr
}

func (s *JinaScraper) collect(group model.TargetGroup, fetched []fetchResult) (*model.CategoryResult, error) {
	res := &model.CategoryResult{Category: group.Category, Priority: group.Priority}

	okDomains := make(map[string]bool)
	seen := make(map[string]bool)
	var lastErr error
	failures := 0
	for _, fr := range fetched {
		res.Tokens += fr.tokens
		if fr.err != nil {
			failures++
			lastErr = fr.err
			zap.L().Debug("scrape: jina request failed",
				zap.String("category", string(group.Category)),
				zap.String("domain", fr.domain),
				zap.Error(fr.err),
			)
			continue
		}
		okDomains[fr.domain] = true
		for _, rec := range fr.records {
			key := rec.URL
			if key == "" {
				key = string(rec.Kind) + "|" + rec.Title
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			res.Records = append(res.Records, rec)
		}
	}
	if failures > 0 && failures == len(fetched) {
		return nil, eris.Wrapf(lastErr, "scrape: all %d requests failed for %s", failures, group.Category)
	}

	res.DomainsScraped = len(okDomains)
	for _, rec := range res.Records {
		switch rec.Kind {
		case model.RecordProfile:
			res.ProfilesScraped++
		case model.RecordJob:
			res.JobsScraped++
		case model.RecordCompany:
			res.CompaniesScraped++
		}
	}
	res.QualityScore = recordQuality(res.Records)
	return res, nil
}
