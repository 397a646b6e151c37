// Package picture looks up candidate portraits on Wikidata.
package picture

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/itchyny/gojq"
)

// Finder returns a picture URL for a candidate, or nil when none is known.
// Implementations never fail; lookup errors collapse to nil.
type Finder interface {
	Find(ctx context.Context, party, name string) *string
}

const userAgent = "candidatequiz/1.0 (https://github.com/Lllllllleong/candidatequiz)"

// firstPicture selects the first binding's image from a SPARQL JSON result.
var firstPicture = mustCompile(`.results.bindings[0].pic.value | select(type == "string")`)

// WikidataFinder queries the Wikidata SPARQL endpoint for a person labelled
// name whose party is labelled party, returning their P18 image.
type WikidataFinder struct {
	endpoint string
	client   *http.Client
}

func NewWikidataFinder(endpoint string) *WikidataFinder {
	return &WikidataFinder{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (f *WikidataFinder) Find(ctx context.Context, party, name string) *string {
	logCtx := slog.With("party", party, "name", name)
	pic, err := f.lookup(ctx, party, name)
	if err != nil {
		logCtx.Warn("Picture lookup failed", "error", err)
		return nil
	}
	if pic == nil {
		logCtx.Info("No picture found for candidate.")
	}
	return pic
}

func (f *WikidataFinder) lookup(ctx context.Context, party, name string) (*string, error) {
	params := url.Values{
		"format": {"json"},
		"query":  {buildQuery(party, name)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/sparql-results+json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad status: %s", resp.Status)
	}

	var body any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode sparql response: %w", err)
	}

	iter := firstPicture.Run(body)
	v, ok := iter.Next()
	if !ok {
		return nil, nil
	}
	if err, ok := v.(error); ok {
		return nil, err
	}
	s, _ := v.(string)
	if s == "" {
		return nil, nil
	}
	return &s, nil
}

func buildQuery(party, name string) string {
	return fmt.Sprintf(`SELECT ?pic WHERE {
  ?party rdfs:label "%s"@zh-hant.
  ?person rdfs:label "%s"@zh-hant.
  ?person wdt:P18 ?pic.
} LIMIT 1`, escapeLiteral(party), escapeLiteral(name))
}

var literalEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`)

func escapeLiteral(s string) string {
	return literalEscaper.Replace(s)
}

func mustCompile(src string) *gojq.Code {
	q, err := gojq.Parse(src)
	if err != nil {
		panic(err)
	}
	code, err := gojq.Compile(q)
	if err != nil {
		panic(err)
	}
	return code
}
