package search

import (
	"net/url"
	"strings"
)

// dedupeAndRank implements spec.md §4.5's post-processing: dedupe by
// (origin, pathname) keeping the highest-scoring representative, then
// sort by composite score descending and truncate to limit.
func dedupeAndRank(results []Result, limit int) []Result {
	type scored struct {
		result Result
		score  float64
	}

	best := make(map[string]scored)
	var order []string

	for _, group := range groupByOriginPath(results) {
		key := group[0].key
		// Score the group once with each member as representative; ties
		// keep the earlier member.
		for i := range group {
			group[0], group[i] = group[i], group[0]
			s := score(group)
			entry := scored{result: group[0].result, score: s}
			if existing, ok := best[key]; !ok || s > existing.score {
				if !ok {
					order = append(order, key)
				}
				best[key] = entry
			}
			group[0], group[i] = group[i], group[0]
		}
	}

	ranked := make([]scored, 0, len(order))
	for _, k := range order {
		ranked = append(ranked, best[k])
	}
	// stable insertion sort by score desc; result counts are small (<=30).
	for i := 1; i < len(ranked); i++ {
		j := i
		for j > 0 && ranked[j-1].score < ranked[j].score {
			ranked[j-1], ranked[j] = ranked[j], ranked[j-1]
			j--
		}
	}

	out := make([]Result, 0, limit)
	for _, r := range ranked {
		if len(out) >= limit {
			break
		}
		out = append(out, r.result)
	}
	return out
}

type keyedResult struct {
	key    string
	result Result
}

// groupByOriginPath buckets results sharing (origin, pathname), used both
// to pick the representative and to compute group_size for scoring.
func groupByOriginPath(results []Result) [][]keyedResult {
	groups := make(map[string][]keyedResult)
	var order []string
	for _, r := range results {
		key := originPathKey(r.URL)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], keyedResult{key: key, result: r})
	}

	out := make([][]keyedResult, 0, len(order))
	for _, k := range order {
		out = append(out, groups[k])
	}
	return out
}

func originPathKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return strings.ToLower(u.Scheme + "://" + u.Host + u.Path)
}

// score implements the composite formula from spec.md §4.5. group is all
// results sharing one (origin, pathname); group[0] is the representative
// whose title, snippet and URL are scored (dedupeAndRank puts each member
// in that slot in turn).
func score(group []keyedResult) float64 {
	rep := group[0].result

	snippetScore := float64(len(rep.Snippet)) / 10
	if snippetScore > 50 {
		snippetScore = 50
	}

	groupSize := float64(len(group)) * 20

	titleScore := 100 - float64(len(rep.Title))
	if titleScore < 0 {
		titleScore = 0
	}

	hostBonus := hostBonus(rep.URL)
	sourceBonus := 0.0
	for _, kr := range group {
		if kr.result.Source == "startpage" {
			sourceBonus = 8
		}
	}

	return snippetScore + groupSize + titleScore + hostBonus + sourceBonus
}

func hostBonus(rawURL string) float64 {
	lower := strings.ToLower(rawURL)
	switch {
	case strings.Contains(lower, "wikipedia"):
		return 30
	case strings.Contains(lower, "stackoverflow"):
		return 25
	case strings.Contains(lower, ".edu") || strings.Contains(lower, ".gov"):
		return 15
	case strings.Contains(lower, "github"):
		return 20
	default:
		return 0
	}
}
