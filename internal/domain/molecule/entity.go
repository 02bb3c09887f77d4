// Package molecule models molecules and the reversed search from a SMILES
// string to the notebooks whose reactions use it.
package molecule

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/molecule-search/internal/domain/notebook"
	"github.com/turtacn/molecule-search/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Molecule
// ─────────────────────────────────────────────────────────────────────────────

// Molecule is a unique chemical structure keyed by canonical SMILES.
type Molecule struct {
	ID               uuid.UUID `json:"id"`
	CanonicalSMILES  string    `json:"canonical_smiles"`
	InChI            string    `json:"inchi,omitempty"`
	InChIKey         string    `json:"inchi_key,omitempty"`
	MolecularFormula string    `json:"molecular_formula,omitempty"`
	MolecularWeight  *float64  `json:"molecular_weight,omitempty"`
	Name             string    `json:"name,omitempty"`
	CASNumber        string    `json:"cas_number,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Describe renders the known properties as a single line for prompts.
func (m *Molecule) Describe() string {
	var parts []string
	if m.Name != "" {
		parts = append(parts, "name "+m.Name)
	}
	if m.MolecularFormula != "" {
		parts = append(parts, "formula "+m.MolecularFormula)
	}
	if m.MolecularWeight != nil {
		parts = append(parts, fmt.Sprintf("molecular weight %.2f g/mol", *m.MolecularWeight))
	}
	if m.CASNumber != "" {
		parts = append(parts, "CAS "+m.CASNumber)
	}
	return strings.Join(parts, ", ")
}

// ─────────────────────────────────────────────────────────────────────────────
// SMILES validation
// ─────────────────────────────────────────────────────────────────────────────

// MaxSMILESLength bounds accepted input.
const MaxSMILESLength = 4096

// validSMILESChars is a character-set check; structure is validated by RDKit
// in the database when a search needs it.
var validSMILESChars = regexp.MustCompile(`^[A-Za-z0-9@+\-\[\]()=#$:/\\%.*~]+$`)

// ValidateSMILES rejects empty, oversized or obviously malformed SMILES.
func ValidateSMILES(smiles string) error {
	if smiles == "" {
		return errors.New(errors.ErrCodeMoleculeInvalidSMILES, "SMILES must not be empty")
	}
	if len(smiles) > MaxSMILESLength {
		return errors.New(errors.ErrCodeMoleculeInvalidSMILES, "SMILES is too long").
			WithDetail(fmt.Sprintf("length=%d max=%d", len(smiles), MaxSMILESLength))
	}
	if !validSMILESChars.MatchString(smiles) {
		return errors.New(errors.ErrCodeMoleculeInvalidSMILES, "SMILES contains invalid characters").
			WithDetail("smiles=" + smiles)
	}
	return validateBrackets(smiles)
}

func validateBrackets(smiles string) error {
	closers := map[rune]rune{')': '(', ']': '['}
	var stack []rune
	for _, ch := range smiles {
		switch ch {
		case '(', '[':
			stack = append(stack, ch)
		case ')', ']':
			if len(stack) == 0 || stack[len(stack)-1] != closers[ch] {
				return errors.New(errors.ErrCodeMoleculeInvalidSMILES, "unmatched brackets in SMILES").
					WithDetail("smiles=" + smiles)
			}
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) != 0 {
		return errors.New(errors.ErrCodeMoleculeInvalidSMILES, "unclosed brackets in SMILES").
			WithDetail("smiles=" + smiles)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Search
// ─────────────────────────────────────────────────────────────────────────────

// SearchType selects how the query structure is matched.
type SearchType string

const (
	SearchExact        SearchType = "exact"
	SearchSubstructure SearchType = "substructure"
	SearchSimilarity   SearchType = "similarity"
)

const (
	DefaultSearchLimit = 100
	MaxSearchLimit     = 500

	// SimilarityThreshold is the minimum Tanimoto score on Morgan
	// fingerprints for a similarity hit.
	SimilarityThreshold = 0.7
)

// ParseSearchType accepts the wire names; empty means exact.
func ParseSearchType(s string) (SearchType, error) {
	switch SearchType(strings.ToLower(strings.TrimSpace(s))) {
	case "", SearchExact:
		return SearchExact, nil
	case SearchSubstructure:
		return SearchSubstructure, nil
	case SearchSimilarity:
		return SearchSimilarity, nil
	}
	return "", errors.New(errors.ErrCodeMoleculeSearchType,
		"search type must be one of exact, substructure, similarity").WithDetail("type=" + s)
}

// ClampLimit applies DefaultSearchLimit and MaxSearchLimit.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultSearchLimit
	case limit > MaxSearchLimit:
		return MaxSearchLimit
	}
	return limit
}

// MoleculeRole is one (smiles, role) occurrence in a matched notebook.
type MoleculeRole struct {
	SMILES string        `json:"smiles"`
	Role   notebook.Role `json:"role"`
}

// NotebookSearchResult groups every hit that landed in one notebook.
type NotebookSearchResult struct {
	Notebook      *notebook.Notebook `json:"notebook"`
	MatchedSMILES []string           `json:"matched_smiles"`
	ReactionIDs   []uuid.UUID        `json:"reaction_ids"`
	MoleculeRoles []MoleculeRole     `json:"molecule_roles"`
	// MatchedQueries lists the query structures that produced a hit here.
	MatchedQueries []string `json:"matched_queries,omitempty"`
	// Similarity is the best Tanimoto score, set for similarity searches.
	Similarity float64 `json:"similarity,omitempty"`
}

// SearchRow is one joined row of molecule, reaction and notebook.
type SearchRow struct {
	Notebook   *notebook.Notebook
	Query      string
	SMILES     string
	ReactionID uuid.UUID
	Role       notebook.Role
	Similarity float64
}

// GroupRows folds rows into per-notebook results in first-seen order.
// Matched SMILES, queries and reaction ids are de-duplicated; roles are not.
func GroupRows(rows []SearchRow) []*NotebookSearchResult {
	byID := make(map[uuid.UUID]*NotebookSearchResult)
	out := []*NotebookSearchResult{}
	for _, row := range rows {
		res, ok := byID[row.Notebook.ID]
		if !ok {
			res = newResult(row.Notebook)
			byID[row.Notebook.ID] = res
			out = append(out, res)
		}
		res.MatchedSMILES = appendUnique(res.MatchedSMILES, row.SMILES)
		if row.Query != "" {
			res.MatchedQueries = appendUnique(res.MatchedQueries, row.Query)
		}
		if !containsUUID(res.ReactionIDs, row.ReactionID) {
			res.ReactionIDs = append(res.ReactionIDs, row.ReactionID)
		}
		res.MoleculeRoles = append(res.MoleculeRoles, MoleculeRole{SMILES: row.SMILES, Role: row.Role})
		if row.Similarity > res.Similarity {
			res.Similarity = row.Similarity
		}
	}
	return out
}

// MergeResults combines result sets that may name the same notebook, keeping
// the order in which notebooks first appear.
func MergeResults(sets ...[]*NotebookSearchResult) []*NotebookSearchResult {
	byID := make(map[uuid.UUID]*NotebookSearchResult)
	out := []*NotebookSearchResult{}
	for _, set := range sets {
		for _, res := range set {
			m, ok := byID[res.Notebook.ID]
			if !ok {
				m = newResult(res.Notebook)
				byID[res.Notebook.ID] = m
				out = append(out, m)
			}
			for _, s := range res.MatchedSMILES {
				m.MatchedSMILES = appendUnique(m.MatchedSMILES, s)
			}
			for _, q := range res.MatchedQueries {
				m.MatchedQueries = appendUnique(m.MatchedQueries, q)
			}
			for _, id := range res.ReactionIDs {
				if !containsUUID(m.ReactionIDs, id) {
					m.ReactionIDs = append(m.ReactionIDs, id)
				}
			}
			m.MoleculeRoles = append(m.MoleculeRoles, res.MoleculeRoles...)
			if res.Similarity > m.Similarity {
				m.Similarity = res.Similarity
			}
		}
	}
	return out
}

// FilterRequireAll keeps results that matched every query structure.
func FilterRequireAll(results []*NotebookSearchResult, queries []string) []*NotebookSearchResult {
	out := make([]*NotebookSearchResult, 0, len(results))
	for _, res := range results {
		all := true
		for _, q := range queries {
			if !containsString(res.MatchedQueries, q) {
				all = false
				break
			}
		}
		if all {
			out = append(out, res)
		}
	}
	return out
}

func newResult(nb *notebook.Notebook) *NotebookSearchResult {
	return &NotebookSearchResult{
		Notebook:      nb,
		MatchedSMILES: []string{},
		ReactionIDs:   []uuid.UUID{},
		MoleculeRoles: []MoleculeRole{},
	}
}

func appendUnique(list []string, s string) []string {
	if containsString(list, s) {
		return list
	}
	return append(list, s)
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsUUID(list []uuid.UUID, id uuid.UUID) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}
