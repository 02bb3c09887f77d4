package client

import (
	"context"
	"fmt"
	"strings"
)

const (
	SearchExact        = "exact"
	SearchSubstructure = "substructure"
	SearchSimilarity   = "similarity"
)

// MoleculeSearchRequest is the body of POST /api/v1/molecules/search.
type MoleculeSearchRequest struct {
	SMILES     []string `json:"smiles"`
	Type       string   `json:"type,omitempty"`
	RequireAll bool     `json:"require_all,omitempty"`
	Limit      int      `json:"limit,omitempty"`
}

type MoleculeRole struct {
	SMILES string `json:"smiles"`
	Role   string `json:"role"`
}

// NotebookHit is a notebook that used at least one of the queried molecules.
type NotebookHit struct {
	Notebook       *Notebook      `json:"notebook"`
	MatchedSMILES  []string       `json:"matched_smiles"`
	ReactionIDs    []string       `json:"reaction_ids"`
	MoleculeRoles  []MoleculeRole `json:"molecule_roles"`
	MatchedQueries []string       `json:"matched_queries,omitempty"`
	Similarity     float64        `json:"similarity,omitempty"`
}

type MoleculeSearchResult struct {
	Query   []string       `json:"query"`
	Type    string         `json:"type"`
	Results []*NotebookHit `json:"results"`
	Total   int            `json:"total"`
}

func (c *Client) SearchMolecules(ctx context.Context, req MoleculeSearchRequest) (*MoleculeSearchResult, error) {
	smiles := req.SMILES[:0:0]
	for _, s := range req.SMILES {
		if s = strings.TrimSpace(s); s != "" {
			smiles = append(smiles, s)
		}
	}
	if len(smiles) == 0 {
		return nil, fmt.Errorf("%w: at least one SMILES is required", ErrInvalidConfig)
	}
	req.SMILES = smiles

	var out MoleculeSearchResult
	if err := c.post(ctx, "/api/v1/molecules/search", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
