package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// NotebookSummary is a row of the notebook browser.
type NotebookSummary struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	GCSPath     string   `json:"gcsPath"`
	Description string   `json:"description"`
	Date        string   `json:"date"`
	Author      *string  `json:"author"`
	Tags        []string `json:"tags"`
}

type ReactionRole struct {
	ID            string `json:"id"`
	MoleculeID    string `json:"molecule_id"`
	SMILES        string `json:"smiles,omitempty"`
	Role          string `json:"role"`
	Stoichiometry string `json:"stoichiometry,omitempty"`
}

type Reaction struct {
	ID             string          `json:"id"`
	Name           string          `json:"name,omitempty"`
	ReactionSMILES string          `json:"reaction_smiles,omitempty"`
	Description    string          `json:"description,omitempty"`
	Roles          []*ReactionRole `json:"roles,omitempty"`
}

type Part struct {
	ID             string      `json:"id"`
	Name           string      `json:"name,omitempty"`
	SequenceNumber int         `json:"sequence_number"`
	Description    string      `json:"description,omitempty"`
	Reactions      []*Reaction `json:"reactions,omitempty"`
}

type Synthesis struct {
	ID          string  `json:"id"`
	Name        string  `json:"name,omitempty"`
	Description string  `json:"description,omitempty"`
	Parts       []*Part `json:"parts,omitempty"`
}

// Notebook is a notebook with its synthesis hierarchy.
type Notebook struct {
	ID          string       `json:"id"`
	GCSPath     string       `json:"gcs_path"`
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	Syntheses   []*Synthesis `json:"syntheses,omitempty"`
}

// NotebookFilter narrows ListNotebooks. Dates are YYYY-MM-DD.
type NotebookFilter struct {
	Search   string
	Author   string
	DateFrom string
	DateTo   string
	Limit    int
}

func (f NotebookFilter) query() url.Values {
	q := url.Values{}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	if f.Author != "" {
		q.Set("author", f.Author)
	}
	if f.DateFrom != "" {
		q.Set("date_from", f.DateFrom)
	}
	if f.DateTo != "" {
		q.Set("date_to", f.DateTo)
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	return q
}

func (c *Client) ListNotebooks(ctx context.Context, f NotebookFilter) ([]NotebookSummary, error) {
	path := "/api/v1/notebooks"
	if q := f.query(); len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out struct {
		Notebooks []NotebookSummary `json:"notebooks"`
	}
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.Notebooks, nil
}

func (c *Client) NotebookAuthors(ctx context.Context) ([]string, error) {
	var out struct {
		Authors []string `json:"authors"`
	}
	if err := c.get(ctx, "/api/v1/notebooks/authors", &out); err != nil {
		return nil, err
	}
	return out.Authors, nil
}

func (c *Client) GetNotebook(ctx context.Context, id string) (*Notebook, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: notebook id is required", ErrInvalidConfig)
	}
	var out Notebook
	if err := c.get(ctx, "/api/v1/notebooks/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}
