package metadata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/marco/cinematch/internal/metadata/cache"
	"github.com/marco/cinematch/internal/retry"
)

const avatarJSON = `{
	"id": 19995,
	"title": "Avatar",
	"poster_path": "/kyeqWdyUXW608qlYkRqosgbbJyK.jpg",
	"release_date": "2009-12-15",
	"overview": "  A \"paraplegic\" Marine.  ",
	"genres": [{"id": 28, "name": "Action"}, {"id": 12, "name": "Adventure"}],
	"runtime": 162,
	"vote_average": 7.6
}`

func testPolicy() retry.Policy {
	p := retry.DefaultPolicy().NoDelay()
	p.TransportRetries = 0
	return p
}

type tmdbServer struct {
	*httptest.Server
	hits atomic.Int32
}

func newTMDBServer(t *testing.T, handler http.HandlerFunc) *tmdbServer {
	t.Helper()
	s := &tmdbServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(s.Close)
	return s
}

func newTestClient(baseURL string, p retry.Policy) *Client {
	return NewClient(ClientConfig{
		APIKey:         "test-key",
		BaseURL:        baseURL,
		ImageBaseURL:   "https://img.test/w500",
		RateLimitDelay: -1,
		Policy:         p,
	})
}

func newTestFetcher(client DetailsClient, store cache.Store) *Fetcher {
	return NewFetcher(FetcherConfig{
		Client: client,
		Store:  store,
		Policy: testPolicy(),
	})
}

func TestFetchMetadata_ParsesAndCaches(t *testing.T) {
	srv := newTMDBServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/movie/19995" {
			t.Errorf("path = %s, want /movie/19995", r.URL.Path)
		}
		if got := r.URL.Query().Get("api_key"); got != "test-key" {
			t.Errorf("api_key = %q", got)
		}
		if got := r.URL.Query().Get("language"); got != "en-US" {
			t.Errorf("language = %q", got)
		}
		fmt.Fprint(w, avatarJSON)
	})

	path := filepath.Join(t.TempDir(), "poster_cache.json")
	store, err := cache.NewFileStore(path)
	if err != nil {
		t.Fatal(err)
	}
	f := newTestFetcher(newTestClient(srv.URL, testPolicy()), store)

	got := f.FetchMetadata(context.Background(), 19995)
	want := Record{
		PosterURL:   "https://img.test/w500/kyeqWdyUXW608qlYkRqosgbbJyK.jpg",
		Year:        "2009",
		Overview:    "A 'paraplegic' Marine.",
		Genres:      []string{"Action", "Adventure"},
		ReleaseDate: "2009-12-15",
		Runtime:     162,
		VoteAverage: 7.6,
	}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("FetchMetadata() = %+v, want %+v", got, want)
	}

	// A fresh process reading the same file serves the record without a call.
	reopened, err := cache.NewFileStore(path)
	if err != nil {
		t.Fatal(err)
	}
	f2 := newTestFetcher(newTestClient(srv.URL, testPolicy()), reopened)
	again := f2.FetchMetadata(context.Background(), 19995)
	if fmt.Sprint(again) != fmt.Sprint(want) {
		t.Errorf("cached FetchMetadata() = %+v, want %+v", again, want)
	}
	if n := srv.hits.Load(); n != 1 {
		t.Errorf("server hits = %d, want 1", n)
	}
}

func TestFetchMetadata_Defaults(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Record
	}{
		{
			name: "all fields missing",
			body: `{"id": 1}`,
			want: Placeholder(),
		},
		{
			name: "null poster and short date",
			body: `{"id": 1, "poster_path": null, "release_date": "199", "overview": "x"}`,
			want: Record{PosterURL: PlaceholderImage, Year: NotAvailable, Overview: "x",
				Genres: []string{}, ReleaseDate: "199"},
		},
		{
			name: "empty overview is kept",
			body: `{"id": 1, "overview": "", "release_date": "2001-05-01"}`,
			want: Record{PosterURL: PlaceholderImage, Year: "2001", Overview: "",
				Genres: []string{}, ReleaseDate: "2001-05-01"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTMDBServer(t, func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, tt.body)
			})
			f := newTestFetcher(newTestClient(srv.URL, testPolicy()), cache.NewMemoryStore())
			got := f.FetchMetadata(context.Background(), 1)
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("FetchMetadata() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestFetchMetadata_InvalidIDMakesNoCall(t *testing.T) {
	srv := newTMDBServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, avatarJSON)
	})
	f := newTestFetcher(newTestClient(srv.URL, testPolicy()), cache.NewMemoryStore())

	for _, id := range []int{0, -5} {
		if got := f.FetchMetadata(context.Background(), id); !got.IsPlaceholder() {
			t.Errorf("FetchMetadata(%d) = %+v, want placeholder", id, got)
		}
	}
	if n := srv.hits.Load(); n != 0 {
		t.Errorf("server hits = %d, want 0", n)
	}
}

func TestFetchMetadata_AlwaysFailing(t *testing.T) {
	srv := newTMDBServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	store := cache.NewMemoryStore()
	f := newTestFetcher(newTestClient(srv.URL, testPolicy()), store)

	got := f.FetchMetadata(context.Background(), 42)
	if !got.IsPlaceholder() {
		t.Errorf("FetchMetadata() = %+v, want placeholder", got)
	}
	if n := srv.hits.Load(); n != 3 {
		t.Errorf("server hits = %d, want 3 attempts", n)
	}
	if store.Len() != 0 {
		t.Error("placeholder must not be cached")
	}
}

func TestFetchMetadata_TransportRetriesUnderEachAttempt(t *testing.T) {
	srv := newTMDBServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	})
	p := retry.DefaultPolicy().NoDelay()
	p.TransportRetries = 2
	f := NewFetcher(FetcherConfig{
		Client: newTestClient(srv.URL, p),
		Store:  cache.NewMemoryStore(),
		Policy: p,
	})

	f.FetchMetadata(context.Background(), 42)
	// 3 attempts, each sent 1+2 times by the transport.
	if n := srv.hits.Load(); n != 9 {
		t.Errorf("server hits = %d, want 9", n)
	}
}

func TestFetchMetadata_NotFoundIsNotRetried(t *testing.T) {
	srv := newTMDBServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"status_code":34}`, http.StatusNotFound)
	})
	f := newTestFetcher(newTestClient(srv.URL, testPolicy()), cache.NewMemoryStore())

	if got := f.FetchMetadata(context.Background(), 7); !got.IsPlaceholder() {
		t.Errorf("FetchMetadata() = %+v, want placeholder", got)
	}
	if n := srv.hits.Load(); n != 1 {
		t.Errorf("server hits = %d, want 1", n)
	}
}

func TestFetchMetadata_LegacyEntryRefetched(t *testing.T) {
	srv := newTMDBServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, avatarJSON)
	})
	store := cache.NewMemoryStore()
	store.Set("19995", []byte(`["https://old/poster.jpg","2009"]`))

	f := newTestFetcher(newTestClient(srv.URL, testPolicy()), store)
	got := f.FetchMetadata(context.Background(), 19995)
	if got.Runtime != 162 {
		t.Errorf("Runtime = %d, want 162 from refetch", got.Runtime)
	}
	if n := srv.hits.Load(); n != 1 {
		t.Errorf("server hits = %d, want 1", n)
	}

	data, _ := store.Get("19995")
	if _, err := DecodeRecord(data); err != nil {
		t.Errorf("legacy entry not replaced: %v", err)
	}
}

type failingStore struct{ cache.Store }

func (failingStore) Set(string, []byte) error { return errors.New("disk full") }

func TestFetchMetadata_CacheWriteFailureStillReturns(t *testing.T) {
	srv := newTMDBServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, avatarJSON)
	})
	f := newTestFetcher(newTestClient(srv.URL, testPolicy()), failingStore{cache.NewMemoryStore()})
	if got := f.FetchMetadata(context.Background(), 19995); got.Year != "2009" {
		t.Errorf("FetchMetadata() = %+v, want fetched record", got)
	}
}

type countingClient struct {
	calls atomic.Int32
	err   error
}

func (c *countingClient) GetMovieDetails(ctx context.Context, id int) (*TMDBMovieDetails, error) {
	c.calls.Add(1)
	return nil, c.err
}

func (c *countingClient) Wait(ctx context.Context) error { return nil }

func (c *countingClient) PosterURL(p string) string { return p }

func TestFetchMetadata_BreakerOpens(t *testing.T) {
	client := &countingClient{err: errors.New("connection refused")}
	f := NewFetcher(FetcherConfig{
		Client:          client,
		Policy:          testPolicy(),
		BreakerFailures: 2,
		BreakerTimeout:  time.Hour,
	})

	for i := 0; i < 4; i++ {
		if got := f.FetchMetadata(context.Background(), 100+i); !got.IsPlaceholder() {
			t.Fatalf("FetchMetadata() = %+v, want placeholder", got)
		}
	}
	// Two fetches of three attempts each, then the circuit is open.
	if n := client.calls.Load(); n != 6 {
		t.Errorf("client calls = %d, want 6", n)
	}
}

func TestFetchAll_PreservesOrderAndStopsOnCancel(t *testing.T) {
	srv := newTMDBServer(t, func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/movie/")
		fmt.Fprintf(w, `{"id": %s, "release_date": "20%s-01-01"}`, id, id)
	})
	f := newTestFetcher(newTestClient(srv.URL, testPolicy()), cache.NewMemoryStore())

	got := f.FetchAll(context.Background(), []int{10, 0, 11})
	years := []string{got[0].Year, got[1].Year, got[2].Year}
	if fmt.Sprint(years) != "[2010 N/A 2011]" {
		t.Errorf("years = %v", years)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, r := range f.FetchAll(ctx, []int{12, 13}) {
		if !r.IsPlaceholder() {
			t.Errorf("cancelled FetchAll returned %+v", r)
		}
	}
}

func TestClient_RateLimitSpacing(t *testing.T) {
	srv := newTMDBServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id": 1}`)
	})
	c := NewClient(ClientConfig{
		BaseURL:        srv.URL,
		RateLimitDelay: 100 * time.Millisecond,
		Policy:         testPolicy(),
	})
	f := newTestFetcher(c, cache.NewMemoryStore())

	start := time.Now()
	f.FetchMetadata(context.Background(), 1)
	if first := time.Since(start); first > 80*time.Millisecond {
		t.Errorf("first fetch waited %v", first)
	}
	f.FetchMetadata(context.Background(), 2)
	f.FetchMetadata(context.Background(), 3)
	if total := time.Since(start); total < 190*time.Millisecond {
		t.Errorf("three fetches took %v, want >= 200ms", total)
	}
	if n := srv.hits.Load(); n != 3 {
		t.Errorf("server hits = %d, want 3", n)
	}
}

func TestFetchMetadata_QueuedBehindLimiterStaysHealthy(t *testing.T) {
	srv := newTMDBServer(t, func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/movie/")
		fmt.Fprintf(w, `{"id": %s, "release_date": "2001-01-01"}`, id)
	})
	p := testPolicy()
	p.Timeout = 200 * time.Millisecond
	c := NewClient(ClientConfig{
		BaseURL:        srv.URL,
		RateLimitDelay: 50 * time.Millisecond,
		Policy:         p,
	})
	f := NewFetcher(FetcherConfig{
		Client:          c,
		Store:           cache.NewMemoryStore(),
		Policy:          p,
		BreakerFailures: 2,
		BreakerTimeout:  time.Hour,
	})

	const n = 20
	var placeholders atomic.Int32
	var wg sync.WaitGroup
	for i := 1; i <= n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if f.FetchMetadata(context.Background(), id).IsPlaceholder() {
				placeholders.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if got := placeholders.Load(); got != 0 {
		t.Errorf("placeholders = %d, want 0", got)
	}
	if got := srv.hits.Load(); got != n {
		t.Errorf("server hits = %d, want %d", got, n)
	}
	if st := f.breaker.State(); st != gobreaker.StateClosed {
		t.Errorf("breaker state = %v, want closed", st)
	}
	if got := f.FetchMetadata(context.Background(), n+1); got.IsPlaceholder() {
		t.Error("fetch after the burst returned a placeholder")
	}
}

func TestFetchMetadata_CallerDeadlineDuringWaitKeepsBreakerClosed(t *testing.T) {
	srv := newTMDBServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, avatarJSON)
	})
	c := NewClient(ClientConfig{
		BaseURL:        srv.URL,
		RateLimitDelay: time.Hour,
		Policy:         testPolicy(),
	})
	f := NewFetcher(FetcherConfig{
		Client:          c,
		Policy:          testPolicy(),
		BreakerFailures: 1,
		BreakerTimeout:  time.Hour,
	})

	f.FetchMetadata(context.Background(), 1)
	for i := 2; i < 5; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		if got := f.FetchMetadata(ctx, i); !got.IsPlaceholder() {
			t.Errorf("FetchMetadata(%d) = %+v, want placeholder", i, got)
		}
		cancel()
	}
	if st := f.breaker.State(); st != gobreaker.StateClosed {
		t.Errorf("breaker state = %v, want closed", st)
	}
	if n := srv.hits.Load(); n != 1 {
		t.Errorf("server hits = %d, want 1", n)
	}
}

func TestClient_CacheHitsSkipLimiter(t *testing.T) {
	srv := newTMDBServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, avatarJSON)
	})
	c := NewClient(ClientConfig{
		BaseURL:        srv.URL,
		RateLimitDelay: time.Second,
		Policy:         testPolicy(),
	})
	f := newTestFetcher(c, cache.NewMemoryStore())

	start := time.Now()
	for i := 0; i < 5; i++ {
		f.FetchMetadata(context.Background(), 19995)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("cached fetches took %v", elapsed)
	}
}

func TestClient_Discover(t *testing.T) {
	tests := []struct {
		name  string
		query DiscoverQuery
		param string
		want  string
	}{
		{"year", DiscoverQuery{Year: 1999}, "primary_release_year", "1999"},
		{"genres", DiscoverQuery{GenreIDs: []int{28, 18}}, "with_genres", "28,18"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTMDBServer(t, func(w http.ResponseWriter, r *http.Request) {
				q := r.URL.Query()
				if r.URL.Path != "/discover/movie" {
					t.Errorf("path = %s", r.URL.Path)
				}
				if q.Get(tt.param) != tt.want {
					t.Errorf("%s = %q, want %q", tt.param, q.Get(tt.param), tt.want)
				}
				if q.Get("sort_by") != "popularity.desc" || q.Get("page") != "1" {
					t.Errorf("query = %s", r.URL.RawQuery)
				}
				fmt.Fprint(w, `{"page":1,"results":[{"id":603,"title":"The Matrix"}]}`)
			})
			c := newTestClient(srv.URL, testPolicy())
			got, err := c.Discover(context.Background(), tt.query)
			if err != nil {
				t.Fatalf("Discover() error = %v", err)
			}
			if len(got) != 1 || got[0].ID != 603 {
				t.Errorf("Discover() = %+v", got)
			}
		})
	}

	c := newTestClient("http://unused.invalid", testPolicy())
	if _, err := c.Discover(context.Background(), DiscoverQuery{}); err == nil {
		t.Error("Discover() with empty query should fail")
	}
}

func TestClient_GenresCached(t *testing.T) {
	srv := newTMDBServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"genres":[{"id":28,"name":"Action"},{"id":18,"name":"Drama"}]}`)
	})
	c := newTestClient(srv.URL, testPolicy())

	for i := 0; i < 3; i++ {
		g, err := c.Genres(context.Background())
		if err != nil {
			t.Fatalf("Genres() error = %v", err)
		}
		if g["Drama"] != 18 {
			t.Errorf("Genres()[Drama] = %d", g["Drama"])
		}
	}
	if n := srv.hits.Load(); n != 1 {
		t.Errorf("server hits = %d, want 1", n)
	}
}

func TestStatusError(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &StatusError{StatusCode: 404})
	if !errors.Is(err, ErrNotFound) {
		t.Error("404 should match ErrNotFound")
	}
	var se *StatusError
	if !errors.As(err, &se) || se.HTTPStatus() != 404 {
		t.Error("errors.As(StatusError) failed")
	}
	if errors.Is(&StatusError{StatusCode: 500}, ErrNotFound) {
		t.Error("500 should not match ErrNotFound")
	}
	if !retry.IsRetryable(&StatusError{StatusCode: 502}) {
		t.Error("502 should be retryable")
	}
}

func TestRecordCodec(t *testing.T) {
	r := Record{PosterURL: "p", Year: "1999", Overview: "o", Genres: []string{"Drama"},
		ReleaseDate: "1999-03-30", Runtime: 136, VoteAverage: 8.2}
	data, err := EncodeRecord(r)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), `["p","1999","o",["Drama"],"1999-03-30",136,8.2]`) {
		t.Errorf("EncodeRecord() = %s", data)
	}

	bad := []string{`["a","b"]`, `{"a":1}`, `[1,2,3,4,5,6,7]`, `garbage`}
	for _, b := range bad {
		if _, err := DecodeRecord([]byte(b)); err == nil {
			t.Errorf("DecodeRecord(%s) should fail", b)
		}
	}
	if _, err := DecodeRecord([]byte(`["a","b"]`)); !errors.Is(err, ErrRecordArity) {
		t.Errorf("DecodeRecord(2-tuple) error = %v, want ErrRecordArity", err)
	}
}
