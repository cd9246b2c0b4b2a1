package salesforce

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// maxIDsPerQuery keeps IN clauses well below the SOQL length limit.
const maxIDsPerQuery = 100

// Opportunity is a proposal as recorded in Salesforce.
type Opportunity struct {
	ID        string  `json:"Id" salesforce:"Id"`
	Name      string  `json:"Name" salesforce:"Name"`
	StageName string  `json:"StageName" salesforce:"StageName"`
	IsWon     bool    `json:"IsWon" salesforce:"IsWon"`
	IsClosed  bool    `json:"IsClosed" salesforce:"IsClosed"`
	Amount    float64 `json:"Amount" salesforce:"Amount"`
}

// Task is an activity logged against an opportunity (call, email, meeting).
type Task struct {
	ID      string `json:"Id" salesforce:"Id"`
	WhatID  string `json:"WhatId" salesforce:"WhatId"`
	Subject string `json:"Subject" salesforce:"Subject"`
	Status  string `json:"Status" salesforce:"Status"`
}

// OpportunityInput holds the fields of a new proposal opportunity.
type OpportunityInput struct {
	Name        string
	StageName   string
	Amount      float64
	CloseDate   time.Time
	LeadSource  string
	Description string
}

// CreateOpportunity inserts an Opportunity and returns its ID.
func CreateOpportunity(ctx context.Context, c Client, in OpportunityInput) (string, error) {
	if in.Name == "" {
		return "", eris.New("sf: opportunity Name is required")
	}
	stage := in.StageName
	if stage == "" {
		stage = "Proposal/Price Quote"
	}
	fields := map[string]any{
		"Name":      in.Name,
		"StageName": stage,
		"Amount":    in.Amount,
		"CloseDate": in.CloseDate.Format("2006-01-02"),
	}
	if in.LeadSource != "" {
		fields["LeadSource"] = in.LeadSource
	}
	if in.Description != "" {
		fields["Description"] = in.Description
	}

	id, err := c.InsertOne(ctx, "Opportunity", fields)
	if err != nil {
		return "", eris.Wrap(err, "sf: create opportunity")
	}
	return id, nil
}

// FindOpportunities loads opportunities by ID. Missing IDs are simply absent
// from the result.
func FindOpportunities(ctx context.Context, c Client, ids []string) ([]Opportunity, error) {
	var out []Opportunity
	for _, chunk := range chunkIDs(ids) {
		soql := fmt.Sprintf(
			"SELECT Id, Name, StageName, IsWon, IsClosed, Amount FROM Opportunity WHERE Id IN (%s)",
			quoteList(chunk),
		)
		var batch []Opportunity
		if err := c.Query(ctx, soql, &batch); err != nil {
			return nil, eris.Wrap(err, "sf: find opportunities")
		}
		out = append(out, batch...)
	}
	return out, nil
}

// FindTasks loads the tasks logged against the given opportunities.
func FindTasks(ctx context.Context, c Client, opportunityIDs []string) ([]Task, error) {
	var out []Task
	for _, chunk := range chunkIDs(opportunityIDs) {
		soql := fmt.Sprintf(
			"SELECT Id, WhatId, Subject, Status FROM Task WHERE WhatId IN (%s)",
			quoteList(chunk),
		)
		var batch []Task
		if err := c.Query(ctx, soql, &batch); err != nil {
			return nil, eris.Wrap(err, "sf: find tasks")
		}
		out = append(out, batch...)
	}
	return out, nil
}

func chunkIDs(ids []string) [][]string {
	var chunks [][]string
	for start := 0; start < len(ids); start += maxIDsPerQuery {
		end := min(start+maxIDsPerQuery, len(ids))
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}

func quoteList(ids []string) string {
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = "'" + escapeSoql(id) + "'"
	}
	return strings.Join(quoted, ", ")
}

// escapeSoql escapes single quotes in SOQL string literals.
func escapeSoql(s string) string {
	return strings.ReplaceAll(s, "'", "\\'")
}
