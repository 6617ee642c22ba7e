package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/instagram-proxy/internal/domain"
	"github.com/vertextoedge/instagram-proxy/internal/logger"
	"github.com/vertextoedge/instagram-proxy/internal/port"
)

// mockLookupRepository implements port.LookupRepository for testing
type mockLookupRepository struct {
	mu        sync.Mutex
	lookups   []*domain.Lookup
	recordErr error
}

func (m *mockLookupRepository) RecordLookup(ctx context.Context, lookup *domain.Lookup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recordErr != nil {
		return m.recordErr
	}
	m.lookups = append(m.lookups, lookup)
	return nil
}
func (m *mockLookupRepository) RecentLookups(ctx context.Context, limit int) ([]*domain.Lookup, error) {
	return nil, nil
}
func (m *mockLookupRepository) GetLookupStats(ctx context.Context) (*domain.LookupStats, error) {
	return nil, nil
}
func (m *mockLookupRepository) PruneLookups(ctx context.Context, olderThan time.Duration) (int, error) {
	return 0, nil
}

// mockResultCache implements port.ResultCache for testing
type mockResultCache struct {
	mu      sync.Mutex
	results map[string]*domain.ResolverResult
	puts    int
}

func (m *mockResultCache) GetResult(ctx context.Context, postURL string) (*domain.ResolverResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.results[postURL], nil
}
func (m *mockResultCache) PutResult(ctx context.Context, postURL string, result *domain.ResolverResult, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.results == nil {
		m.results = make(map[string]*domain.ResolverResult)
	}
	m.results[postURL] = result
	m.puts++
	return nil
}
func (m *mockResultCache) DeleteExpiredResults(ctx context.Context) (int, error) {
	return 0, nil
}

func stubResolver(result *domain.ResolverResult, err error) port.Resolver {
	return port.ResolverFunc(func(ctx context.Context, postURL string) (*domain.ResolverResult, error) {
		return result, err
	})
}

func TestService_Download(t *testing.T) {
	tests := []struct {
		name       string
		url        string
		result     *domain.ResolverResult
		resolveErr error
		wantErr    error
		wantStatus int
		wantURLs   []string
	}{
		{
			name:       "missing url",
			url:        "",
			wantErr:    domain.ErrURLRequired,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "nil result",
			url:        "https://www.instagram.com/p/X/",
			result:     nil,
			wantErr:    domain.ErrNoMedia,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "absent url list",
			url:        "https://www.instagram.com/p/X/",
			result:     &domain.ResolverResult{},
			wantErr:    domain.ErrNoMedia,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "empty url list",
			url:        "https://www.instagram.com/p/X/",
			result:     &domain.ResolverResult{URLList: []string{}},
			wantErr:    domain.ErrNoMedia,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "resolver failure",
			url:        "https://www.instagram.com/p/X/",
			resolveErr: errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "success",
			url:        "https://www.instagram.com/p/X/",
			result:     &domain.ResolverResult{URLList: []string{"a", "b"}},
			wantStatus: http.StatusOK,
			wantURLs:   []string{"a", "b"},
		},
		{
			name:       "any non-empty string is accepted",
			url:        "not a url",
			result:     &domain.ResolverResult{URLList: []string{"a"}},
			wantStatus: http.StatusOK,
			wantURLs:   []string{"a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(nil, stubResolver(tt.result, tt.resolveErr), zap.NewNop())

			got, err := s.Download(context.Background(), domain.DownloadRequest{URL: tt.url})

			if status := StatusCode(err); status != tt.wantStatus {
				t.Errorf("StatusCode() = %d, want %d (err = %v)", status, tt.wantStatus, err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Download() error = %v, want %v", err, tt.wantErr)
			}
			if tt.resolveErr != nil {
				if !domain.IsUpstream(err) {
					t.Errorf("Download() error = %v, want upstream error", err)
				}
				if err.Error() != tt.resolveErr.Error() {
					t.Errorf("Download() error message = %q, want %q", err.Error(), tt.resolveErr.Error())
				}
			}
			if tt.wantURLs != nil {
				if got != tt.result {
					t.Error("Download() did not pass the resolver result through unmodified")
				}
				if len(got.URLList) != len(tt.wantURLs) {
					t.Errorf("URLList = %v, want %v", got.URLList, tt.wantURLs)
				}
			}
		})
	}
}

func TestService_MissingURLSkipsResolver(t *testing.T) {
	var calls int32
	resolver := port.ResolverFunc(func(ctx context.Context, postURL string) (*domain.ResolverResult, error) {
		atomic.AddInt32(&calls, 1)
		return nil, nil
	})

	s := New(nil, resolver, zap.NewNop())
	s.Download(context.Background(), domain.DownloadRequest{})

	if calls != 0 {
		t.Errorf("resolver called %d times, want 0", calls)
	}
}

func TestService_ConcurrentRequestsAreIndependent(t *testing.T) {
	resolver := port.ResolverFunc(func(ctx context.Context, postURL string) (*domain.ResolverResult, error) {
		time.Sleep(time.Millisecond)
		var i int
		fmt.Sscanf(postURL, "https://www.instagram.com/p/%d/", &i)
		switch i % 3 {
		case 0:
			return &domain.ResolverResult{URLList: []string{postURL}}, nil
		case 1:
			return &domain.ResolverResult{URLList: []string{}}, nil
		default:
			return nil, errors.New(postURL)
		}
	})
	s := New(nil, resolver, zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			url := fmt.Sprintf("https://www.instagram.com/p/%d/", i)
			result, err := s.Download(context.Background(), domain.DownloadRequest{URL: url})

			switch i % 3 {
			case 0:
				if err != nil || result.URLList[0] != url {
					t.Errorf("request %d: got %v, %v", i, result, err)
				}
			case 1:
				if !errors.Is(err, domain.ErrNoMedia) {
					t.Errorf("request %d: error = %v, want ErrNoMedia", i, err)
				}
			default:
				if err == nil || err.Error() != url {
					t.Errorf("request %d: error = %v, want %s", i, err, url)
				}
			}
		}(i)
	}
	wg.Wait()
}

func TestService_CoalescesIdenticalRequests(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	resolver := port.ResolverFunc(func(ctx context.Context, postURL string) (*domain.ResolverResult, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return &domain.ResolverResult{URLList: []string{"a"}}, nil
	})
	s := New(&Config{Coalesce: true}, resolver, zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Download(context.Background(), domain.DownloadRequest{URL: "same"}); err != nil {
				t.Errorf("Download() error = %v", err)
			}
		}()
	}

	// Let all callers join the in-flight call
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("resolver called %d times, want 1", n)
	}
}

func TestService_Timeout(t *testing.T) {
	resolver := port.ResolverFunc(func(ctx context.Context, postURL string) (*domain.ResolverResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	s := New(&Config{Timeout: 20 * time.Millisecond}, resolver, zap.NewNop())

	_, err := s.Download(context.Background(), domain.DownloadRequest{URL: "slow"})
	if StatusCode(err) != http.StatusInternalServerError {
		t.Fatalf("StatusCode() = %d, want 500", StatusCode(err))
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Download() error = %v, want deadline exceeded", err)
	}
}

func TestService_CoalescedCallerCanceled(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	resolver := port.ResolverFunc(func(ctx context.Context, postURL string) (*domain.ResolverResult, error) {
		<-release
		return nil, nil
	})
	s := New(&Config{Coalesce: true}, resolver, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.Download(ctx, domain.DownloadRequest{URL: "hang"})
	if !domain.IsUpstream(err) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Download() error = %v, want upstream deadline exceeded", err)
	}
}

func TestService_CallerCanceled(t *testing.T) {
	resolver := port.ResolverFunc(func(ctx context.Context, postURL string) (*domain.ResolverResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	s := New(nil, resolver, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Download(ctx, domain.DownloadRequest{URL: "gone"})
	if !domain.IsUpstream(err) || !errors.Is(err, context.Canceled) {
		t.Errorf("Download() error = %v, want upstream canceled", err)
	}
}

func TestService_SameURLResolvesPerRequest(t *testing.T) {
	var calls int32
	arrived := make(chan struct{}, 2)
	release := make(chan struct{})
	resolver := port.ResolverFunc(func(ctx context.Context, postURL string) (*domain.ResolverResult, error) {
		atomic.AddInt32(&calls, 1)
		arrived <- struct{}{}
		<-release
		return &domain.ResolverResult{URLList: []string{"for-" + logger.RequestID(ctx)}}, nil
	})
	s := New(nil, resolver, zap.NewNop())

	ids := []string{"req-A", "req-B"}
	got := make([]string, len(ids))
	errs := make([]error, len(ids))

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			ctx := logger.WithRequestID(context.Background(), id)
			result, err := s.Download(ctx, domain.DownloadRequest{URL: "https://www.instagram.com/p/SAME/"})
			errs[i] = err
			if result != nil && len(result.URLList) == 1 {
				got[i] = result.URLList[0]
			}
		}(i, id)
	}

	// Both requests must reach the resolver while the other is still in flight
	for range ids {
		select {
		case <-arrived:
		case <-time.After(time.Second):
			close(release)
			wg.Wait()
			t.Fatalf("resolver reached by %d of %d requests", atomic.LoadInt32(&calls), len(ids))
		}
	}
	close(release)
	wg.Wait()

	for i, id := range ids {
		if errs[i] != nil {
			t.Errorf("%s: Download() error = %v", id, errs[i])
		}
		if want := "for-" + id; got[i] != want {
			t.Errorf("%s: url_list = [%s], want [%s]", id, got[i], want)
		}
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("resolver called %d times, want 2", n)
	}
}

func TestService_RateLimit(t *testing.T) {
	var calls int32
	resolver := port.ResolverFunc(func(ctx context.Context, postURL string) (*domain.ResolverResult, error) {
		atomic.AddInt32(&calls, 1)
		return &domain.ResolverResult{URLList: []string{"a"}}, nil
	})
	s := New(&Config{RateLimit: 1000}, resolver, zap.NewNop())

	for i := 0; i < 5; i++ {
		if _, err := s.Download(context.Background(), domain.DownloadRequest{URL: fmt.Sprint(i)}); err != nil {
			t.Fatalf("Download() error = %v", err)
		}
	}
	if calls != 5 {
		t.Errorf("resolver called %d times, want 5", calls)
	}
}

func TestService_RateLimitRespectsTimeout(t *testing.T) {
	s := New(&Config{RateLimit: 0.001, Timeout: 20 * time.Millisecond}, stubResolver(&domain.ResolverResult{URLList: []string{"a"}}, nil), zap.NewNop())

	// First call consumes the only token
	if _, err := s.Download(context.Background(), domain.DownloadRequest{URL: "one"}); err != nil {
		t.Fatalf("first Download() error = %v", err)
	}
	if _, err := s.Download(context.Background(), domain.DownloadRequest{URL: "two"}); !domain.IsUpstream(err) {
		t.Errorf("second Download() error = %v, want upstream error", err)
	}
}

func TestService_RecordsLookups(t *testing.T) {
	repo := &mockLookupRepository{}
	s := New(nil, stubResolver(&domain.ResolverResult{URLList: []string{"a", "b"}}, nil), zap.NewNop(), WithLookups(repo))

	ctx := logger.WithRequestID(context.Background(), "req-42")
	s.Download(ctx, domain.DownloadRequest{URL: "u"})
	s.Download(ctx, domain.DownloadRequest{})

	repo.mu.Lock()
	defer repo.mu.Unlock()
	if len(repo.lookups) != 2 {
		t.Fatalf("recorded %d lookups, want 2", len(repo.lookups))
	}

	ok := repo.lookups[0]
	if ok.Status != http.StatusOK || ok.MediaCount != 2 || ok.RequestID != "req-42" || ok.URL != "u" {
		t.Errorf("success lookup = %+v", ok)
	}
	bad := repo.lookups[1]
	if bad.Status != http.StatusBadRequest || bad.Error != domain.ErrURLRequired.Error() {
		t.Errorf("rejected lookup = %+v", bad)
	}
}

func TestService_RecordFailureDoesNotAffectResponse(t *testing.T) {
	repo := &mockLookupRepository{recordErr: errors.New("disk full")}
	s := New(nil, stubResolver(&domain.ResolverResult{URLList: []string{"a"}}, nil), zap.NewNop(), WithLookups(repo))

	if _, err := s.Download(context.Background(), domain.DownloadRequest{URL: "u"}); err != nil {
		t.Errorf("Download() error = %v, want nil", err)
	}
}

func TestService_Cache(t *testing.T) {
	var calls int32
	resolver := port.ResolverFunc(func(ctx context.Context, postURL string) (*domain.ResolverResult, error) {
		atomic.AddInt32(&calls, 1)
		return &domain.ResolverResult{URLList: []string{"a"}}, nil
	})
	cache := &mockResultCache{}
	s := New(&Config{CacheTTL: time.Minute}, resolver, zap.NewNop(), WithCache(cache))

	for i := 0; i < 3; i++ {
		result, err := s.Download(context.Background(), domain.DownloadRequest{URL: "u"})
		if err != nil || result.URLList[0] != "a" {
			t.Fatalf("Download() = %v, %v", result, err)
		}
	}

	if calls != 1 {
		t.Errorf("resolver called %d times, want 1", calls)
	}
	if cache.puts != 1 {
		t.Errorf("cache puts = %d, want 1", cache.puts)
	}
}

func TestService_CacheDisabledWithoutTTL(t *testing.T) {
	var calls int32
	resolver := port.ResolverFunc(func(ctx context.Context, postURL string) (*domain.ResolverResult, error) {
		atomic.AddInt32(&calls, 1)
		return &domain.ResolverResult{URLList: []string{"a"}}, nil
	})
	cache := &mockResultCache{}
	s := New(nil, resolver, zap.NewNop(), WithCache(cache))

	s.Download(context.Background(), domain.DownloadRequest{URL: "u"})
	s.Download(context.Background(), domain.DownloadRequest{URL: "u"})

	if calls != 2 {
		t.Errorf("resolver called %d times, want 2", calls)
	}
	if cache.puts != 0 {
		t.Errorf("cache puts = %d, want 0", cache.puts)
	}
}

func TestService_EmptyResultsAreNotCached(t *testing.T) {
	cache := &mockResultCache{}
	s := New(&Config{CacheTTL: time.Minute}, stubResolver(&domain.ResolverResult{}, nil), zap.NewNop(), WithCache(cache))

	s.Download(context.Background(), domain.DownloadRequest{URL: "u"})

	if cache.puts != 0 {
		t.Errorf("cache puts = %d, want 0", cache.puts)
	}
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: http.StatusOK},
		{name: "validation", err: domain.ErrURLRequired, want: http.StatusBadRequest},
		{name: "not found", err: domain.ErrNoMedia, want: http.StatusNotFound},
		{name: "upstream", err: domain.NewUpstreamError(errors.New("x")), want: http.StatusInternalServerError},
		{name: "unknown", err: errors.New("x"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusCode(tt.err); got != tt.want {
				t.Errorf("StatusCode() = %d, want %d", got, tt.want)
			}
		})
	}
}
