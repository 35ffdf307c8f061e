package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
)

// owlClassQuery counts declared OWL classes.
const owlClassQuery = `PREFIX owl: <http://www.w3.org/2002/07/owl#>
SELECT (COUNT(DISTINCT ?c) AS ?count) WHERE { ?c a owl:Class }`

// prober checks a running gateway over HTTP.
type prober struct {
	api    string
	client *http.Client
}

func (p *prober) do(ctx context.Context, method, url string, body []byte, header http.Header) (*http.Response, []byte, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, r)
	if err != nil {
		return nil, nil, err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, nil, fmt.Errorf("read response: %w", err)
	}
	return resp, data, nil
}

func (p *prober) health(ctx context.Context) (string, error) {
	resp, body, err := p.do(ctx, http.MethodGet, p.api+"/health", nil, nil)
	if err != nil {
		return "", fmt.Errorf("cannot connect to %s: %w", p.api, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}
	var env struct {
		Success bool `json:"success"`
		Data    struct {
			Status     string            `json:"status"`
			Components map[string]string `json:"components"`
			Statistics struct {
				LoadedFiles int `json:"loaded_files"`
				Triples     int `json:"triples"`
			} `json:"statistics"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return "", fmt.Errorf("decode health: %w", err)
	}
	if !env.Success || env.Data.Status != "healthy" {
		return "", fmt.Errorf("service is %s (backend %s)", env.Data.Status, env.Data.Components["backend"])
	}
	return fmt.Sprintf("healthy, %d files, %d triples", env.Data.Statistics.LoadedFiles, env.Data.Statistics.Triples), nil
}

// sparqlFormat checks that /query answers with a bare SPARQL JSON document,
// which is what graph explorers expect.
func (p *prober) sparqlFormat(ctx context.Context) (string, error) {
	body, _ := json.Marshal(map[string]string{"query": "SELECT ?s ?p ?o WHERE { ?s ?p ?o } LIMIT 1"})
	resp, data, err := p.do(ctx, http.MethodPost, p.api+"/query", body,
		http.Header{"Content-Type": {"application/json"}})
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("decode results: %w", err)
	}
	_, hasHead := doc["head"]
	_, hasResults := doc["results"]
	if !hasHead || !hasResults {
		return "", fmt.Errorf("unexpected result format")
	}
	return "returns SPARQL JSON results", nil
}

func (p *prober) cors(ctx context.Context) (string, error) {
	resp, _, err := p.do(ctx, http.MethodOptions, p.api+"/query", nil, http.Header{
		"Origin":                         {"http://localhost:3000"},
		"Access-Control-Request-Method":  {http.MethodPost},
		"Access-Control-Request-Headers": {"Content-Type"},
	})
	if err != nil {
		return "", err
	}
	origin := resp.Header.Get("Access-Control-Allow-Origin")
	if origin == "" {
		return "", fmt.Errorf("no Access-Control-Allow-Origin header (status %d)", resp.StatusCode)
	}
	return "allows origin " + origin, nil
}

func (p *prober) owlClasses(ctx context.Context) (string, error) {
	body, _ := json.Marshal(map[string]string{"query": owlClassQuery})
	resp, data, err := p.do(ctx, http.MethodPost, p.api+"/query", body,
		http.Header{"Content-Type": {"application/json"}})
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}
	var doc struct {
		Results struct {
			Bindings []map[string]struct {
				Value string `json:"value"`
			} `json:"bindings"`
		} `json:"results"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("decode results: %w", err)
	}
	if len(doc.Results.Bindings) == 0 {
		return "", fmt.Errorf("count query returned no rows")
	}
	n, err := strconv.Atoi(doc.Results.Bindings[0]["count"].Value)
	if err != nil {
		return "", fmt.Errorf("parse count: %w", err)
	}
	if n == 0 {
		return "", fmt.Errorf("no owl:Class found, is the ontology loaded?")
	}
	return fmt.Sprintf("%d classes", n), nil
}

func (p *prober) reachable(ctx context.Context, url string) (string, error) {
	resp, _, err := p.do(ctx, http.MethodGet, url, nil, nil)
	if err != nil {
		return "", fmt.Errorf("cannot connect: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}
	return "reachable", nil
}
