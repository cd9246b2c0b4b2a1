// Package salesforce provides JWT-authenticated access to the Salesforce REST
// API for proposal delivery and acquisition tracking.
package salesforce

import (
	"context"
	"fmt"
	"os"

	"github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/huntred/circle/internal/resilience"
)

// Client is the subset of the Salesforce API the circle uses.
type Client interface {
	Query(ctx context.Context, soql string, out any) error
	InsertOne(ctx context.Context, sObjectName string, record map[string]any) (string, error)
	UpdateOne(ctx context.Context, sObjectName string, id string, fields map[string]any) error
}

// Credentials identify a connected app using the JWT bearer flow.
type Credentials struct {
	LoginURL string
	Username string
	ClientID string
	KeyPath  string
}

// ClientOption configures the client.
type ClientOption func(*sfClient)

// WithRateLimit caps calls per second.
func WithRateLimit(rps float64) ClientOption {
	return func(c *sfClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

// WithGuard routes every call through g.
func WithGuard(g *resilience.Guard) ClientOption {
	return func(c *sfClient) { c.guard = g }
}

// sfClient wraps go-salesforce. The library takes no context, so ctx only
// bounds the rate limiter wait and the retry loop.
type sfClient struct {
	sf      *salesforce.Salesforce
	limiter *rate.Limiter
	guard   *resilience.Guard
}

// NewClient wraps an initialised go-salesforce instance.
func NewClient(sf *salesforce.Salesforce, opts ...ClientOption) Client {
	c := &sfClient{sf: sf}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect authenticates with the JWT bearer flow and returns a Client.
func Connect(creds Credentials, opts ...ClientOption) (Client, error) {
	if creds.ClientID == "" || creds.Username == "" {
		return nil, eris.New("sf: client id and username are required")
	}
	pem, err := os.ReadFile(creds.KeyPath)
	if err != nil {
		return nil, eris.Wrap(err, "sf: read JWT private key")
	}
	sf, err := salesforce.Init(salesforce.Creds{
		Domain:         creds.LoginURL,
		Username:       creds.Username,
		ConsumerKey:    creds.ClientID,
		ConsumerRSAPem: string(pem),
	})
	if err != nil {
		return nil, eris.Wrap(err, "sf: init")
	}
	return NewClient(sf, opts...), nil
}

func (c *sfClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "sf: rate limit")
	}
	return nil
}

func (c *sfClient) Query(ctx context.Context, soql string, out any) error {
	_, err := resilience.Do(ctx, c.guard, "sf.query", func(ctx context.Context) (struct{}, error) {
		if err := c.wait(ctx); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, c.sf.Query(soql, out)
	})
	if err != nil {
		return eris.Wrap(err, "sf: query")
	}
	return nil
}

func (c *sfClient) InsertOne(ctx context.Context, sObjectName string, record map[string]any) (string, error) {
	var (
		id     string
		ok     bool
		errMsg string
	)
	_, err := resilience.Do(ctx, c.guard, "sf.insert", func(ctx context.Context) (struct{}, error) {
		if err := c.wait(ctx); err != nil {
			return struct{}{}, err
		}
		res, err := c.sf.InsertOne(sObjectName, record)
		if err != nil {
			return struct{}{}, err
		}
		id, ok, errMsg = res.Id, res.Success, fmt.Sprint(res.Errors)
		return struct{}{}, nil
	})
	if err != nil {
		return "", eris.Wrapf(err, "sf: insert %s", sObjectName)
	}
	if !ok {
		return "", eris.New(fmt.Sprintf("sf: insert %s failed: %s", sObjectName, errMsg))
	}
	return id, nil
}

func (c *sfClient) UpdateOne(ctx context.Context, sObjectName string, id string, fields map[string]any) error {
	record := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		record[k] = v
	}
	record["Id"] = id

	_, err := resilience.Do(ctx, c.guard, "sf.update", func(ctx context.Context) (struct{}, error) {
		if err := c.wait(ctx); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, c.sf.UpdateOne(sObjectName, record)
	})
	if err != nil {
		return eris.Wrapf(err, "sf: update %s %s", sObjectName, id)
	}
	return nil
}
