// Package selectors holds the CSS selector lists and interstitial-detection
// markers SearchAggregator's three engine parsers use. The parsers read the
// embedded selectors.yaml through the package-level Get. Manager can layer
// an external file or remote URL over that set and hot-reload it, but only
// Manager.Get returns those lists; the package-level Get never changes.
package selectors

import (
	"embed"
	"sync"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

//go:embed selectors.yaml
var defaultSelectorsFS embed.FS

// Selectors holds the layered CSS selectors and textual markers each
// search engine parser (spec.md §4.5) tries in order.
type Selectors struct {
	DuckDuckGoResultRows  []string `yaml:"duckduckgo_result_rows"`
	DuckDuckGoFullResult  []string `yaml:"duckduckgo_full_result"`
	DuckDuckGoLinkPreferred []string `yaml:"duckduckgo_link_preferred"`

	StartpageResult   []string `yaml:"startpage_result"`
	StartpageTitleLink []string `yaml:"startpage_title_link"`

	BingAlgo     []string `yaml:"bing_algo"`
	BingFallback []string `yaml:"bing_fallback"`
	BingGeneric  []string `yaml:"bing_generic"`

	BingCaptchaMarkers []string `yaml:"bing_captcha_markers"`
}

var (
	instance *Selectors
	once     sync.Once
	loadErr  error
)

// Get returns the singleton Selectors instance, loaded from the embedded
// selectors.yaml file.
func Get() *Selectors {
	once.Do(func() {
		instance, loadErr = load()
		if loadErr != nil {
			log.Error().Err(loadErr).Msg("failed to load selectors, using defaults")
			instance = defaultSelectors()
		}
	})
	return instance
}

func load() (*Selectors, error) {
	data, err := defaultSelectorsFS.ReadFile("selectors.yaml")
	if err != nil {
		return nil, err
	}

	var s Selectors
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, err
	}

	log.Debug().
		Int("ddg_rows", len(s.DuckDuckGoResultRows)).
		Int("startpage_result", len(s.StartpageResult)).
		Int("bing_algo", len(s.BingAlgo)).
		Msg("selectors loaded")

	return &s, nil
}

// defaultSelectors mirrors the exact lists named in spec.md §4.5, used if
// the embedded YAML is missing or fails to parse.
func defaultSelectors() *Selectors {
	return &Selectors{
		DuckDuckGoResultRows:    []string{"tr"},
		DuckDuckGoFullResult:    []string{".result", ".result__body"},
		DuckDuckGoLinkPreferred: []string{"a.result-link", "a.result__a"},

		StartpageResult: []string{
			".w-gl__result", ".result-item", ".search-result", ".result",
			"article.result", "[data-testid=\"result\"]",
		},
		StartpageTitleLink: []string{"[data-testid=\"result-title-a\"]"},

		BingAlgo:     []string{".b_algo h2 a[href^=http]"},
		BingFallback: []string{"#b_results li a[href^=http]"},
		BingGeneric:  []string{"#b_content a[href^=http]"},

		BingCaptchaMarkers: []string{
			"verify you are a human",
			"unusual traffic",
		},
	}
}
