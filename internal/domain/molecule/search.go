package molecule

import (
	"context"
)

// SearchNotebooks runs a single-structure search of the given type.
func SearchNotebooks(ctx context.Context, repo Repository, smiles string, t SearchType, limit int) ([]*NotebookSearchResult, error) {
	if err := ValidateSMILES(smiles); err != nil {
		return nil, err
	}
	limit = ClampLimit(limit)
	switch t {
	case SearchSubstructure:
		return repo.SearchSubstructure(ctx, smiles, limit)
	case SearchSimilarity:
		return repo.SearchSimilar(ctx, smiles, limit)
	default:
		return repo.SearchExact(ctx, []string{smiles}, limit)
	}
}

// SearchNotebooksMulti searches several structures at once. Exact matching is
// a single query; the structural types run one query per SMILES and merge
// the hits by notebook. With RequireAll only notebooks that matched every
// query structure are kept.
func SearchNotebooksMulti(ctx context.Context, repo Repository, q SearchQuery) ([]*NotebookSearchResult, error) {
	smiles := dedupe(q.SMILES)
	if len(smiles) == 0 {
		return []*NotebookSearchResult{}, nil
	}
	for _, s := range smiles {
		if err := ValidateSMILES(s); err != nil {
			return nil, err
		}
	}
	limit := ClampLimit(q.Limit)

	var (
		results []*NotebookSearchResult
		err     error
	)
	if q.Type == SearchExact || q.Type == "" || len(smiles) == 1 {
		if len(smiles) == 1 {
			results, err = SearchNotebooks(ctx, repo, smiles[0], q.Type, limit)
		} else {
			results, err = repo.SearchExact(ctx, smiles, limit)
		}
		if err != nil {
			return nil, err
		}
	} else {
		sets := make([][]*NotebookSearchResult, 0, len(smiles))
		for _, s := range smiles {
			set, err := SearchNotebooks(ctx, repo, s, q.Type, limit)
			if err != nil {
				return nil, err
			}
			sets = append(sets, set)
		}
		results = MergeResults(sets...)
	}

	if q.RequireAll && len(smiles) > 1 {
		results = FilterRequireAll(results, smiles)
	}
	if results == nil {
		results = []*NotebookSearchResult{}
	}
	return results, nil
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
