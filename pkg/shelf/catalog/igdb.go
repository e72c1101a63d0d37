package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/jamesainslie/shelf/pkg/shelf/logging"
	"github.com/jamesainslie/shelf/pkg/shelf/types"
)

// CoverURLTemplate builds a cover image URL from an image id.
const CoverURLTemplate = "https://images.igdb.com/igdb/image/upload/t_cover_big/%s.png"

// maxResponseBytes bounds how much of a catalog response is read.
const maxResponseBytes = 4 << 20

const gameFields = "id,name,slug,summary,first_release_date,total_rating,cover.image_id,genres.name,platforms.name"

// Options configures an HTTPClient.
type Options struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration

	// Logger receives request traces. Nil uses the "catalog" component logger.
	Logger *logging.Logger
}

// HTTPClient queries an IGDB-compatible API. Requests carry the Client-ID
// header and a bearer token obtained with the OAuth2 client-credentials flow.
type HTTPClient struct {
	baseURL  string
	clientID string
	http     *http.Client
	log      *logging.Logger
}

// NewHTTPClient builds an HTTPClient. The token is fetched lazily on the
// first lookup and refreshed when it expires.
func NewHTTPClient(ctx context.Context, opts Options) (*HTTPClient, error) {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, fmt.Errorf("catalog base URL is empty")
	}
	if opts.ClientID == "" {
		return nil, fmt.Errorf("catalog client id is empty")
	}

	log := opts.Logger
	if log == nil {
		log = logging.Get("catalog")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	// The oauth2 client uses the context's client both for token requests
	// and as the base transport of the returned client.
	base := &http.Client{Transport: NewTransport(log), Timeout: timeout}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)

	cc := &clientcredentials.Config{
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		TokenURL:     opts.TokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	httpClient := cc.Client(ctx)
	httpClient.Timeout = timeout

	return &HTTPClient{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		clientID: opts.ClientID,
		http:     httpClient,
		log:      log,
	}, nil
}

type igdbGame struct {
	ID               int64   `json:"id"`
	Name             string  `json:"name"`
	Slug             string  `json:"slug"`
	Summary          string  `json:"summary"`
	FirstReleaseDate int64   `json:"first_release_date"`
	TotalRating      float64 `json:"total_rating"`
	Cover            *struct {
		ImageID string `json:"image_id"`
	} `json:"cover"`
	Genres    []igdbNamed `json:"genres"`
	Platforms []igdbNamed `json:"platforms"`
}

type igdbNamed struct {
	Name string `json:"name"`
}

// Lookup implements Client. A 404 or an empty result is a miss. Any other
// non-2xx status or transport error is a failure carrying the cause.
func (c *HTTPClient) Lookup(ctx context.Context, title string) types.LookupResult {
	endpoint := c.baseURL + "/games"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(Query(title)))
	if err != nil {
		return types.Failed(err)
	}
	req.Header.Set("Client-ID", c.clientID)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.http.Do(req)
	if err != nil {
		return types.Failed(fmt.Errorf("looking up %q: %w", title, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return types.Failed(fmt.Errorf("reading catalog response for %q: %w", title, err))
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return types.Miss()
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return types.Failed(&HTTPStatusError{
			URL:        endpoint,
			StatusCode: resp.StatusCode,
			Body:       truncate(string(body), 256),
		})
	}

	var games []igdbGame
	if err := json.Unmarshal(body, &games); err != nil {
		return types.Failed(fmt.Errorf("decoding catalog response for %q: %w", title, err))
	}
	if len(games) == 0 {
		return types.Miss()
	}

	return types.Hit(games[0].record())
}

func (g igdbGame) record() types.CatalogRecord {
	rec := types.CatalogRecord{
		ID:      g.ID,
		Slug:    g.Slug,
		Name:    g.Name,
		Summary: g.Summary,
		Rating:  g.TotalRating,
	}
	if g.FirstReleaseDate > 0 {
		rec.ReleaseDate = time.Unix(g.FirstReleaseDate, 0).UTC()
	}
	if g.Cover != nil && g.Cover.ImageID != "" {
		rec.CoverID = g.Cover.ImageID
		rec.CoverURL = CoverURL(g.Cover.ImageID)
	}
	for _, genre := range g.Genres {
		rec.Genres = append(rec.Genres, genre.Name)
	}
	for _, p := range g.Platforms {
		rec.Platforms = append(rec.Platforms, p.Name)
	}
	return rec
}

// Query returns the Apicalypse body that searches for title.
func Query(title string) string {
	return "search " + strconv.Quote(title) + "; fields " + gameFields + "; limit 1;"
}

// CoverURL returns the cover image URL for an image id.
func CoverURL(imageID string) string {
	return fmt.Sprintf(CoverURLTemplate, imageID)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
