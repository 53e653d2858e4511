package utils

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/parnurzeal/gorequest"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

const (
	dbDirEnv       = "DEPRISK_DB_DIR"
	requestTimeout = 30 * time.Second
)

// RetryWait returns how long to sleep before the given retry attempt.
var RetryWait = func(attempt int) time.Duration {
	wait := math.Pow(float64(attempt), 2) + float64(randInt()%10)
	return time.Duration(wait) * time.Second
}

func CacheDir() string {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		cacheDir = os.TempDir()
	}
	dir := filepath.Join(cacheDir, "deprisk")
	return dir
}

// DBDir is where the local advisory database lives, overridable with DEPRISK_DB_DIR.
func DBDir() string {
	return LookupEnv(dbDirEnv, filepath.Join(CacheDir(), "db"))
}

// StatusError is returned when a server answers with a status other than 200.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error. status code: %d, url: %s", e.StatusCode, e.URL)
}

// PostJSON sends body as JSON and returns the response body. Transport errors, 429 and 5xx
// responses are retried; other statuses fail immediately.
func PostJSON(ctx context.Context, url string, body interface{}, retry int) ([]byte, error) {
	res, err := withRetry(ctx, url, retry, func() *gorequest.SuperAgent {
		return gorequest.New().Post(url).Timeout(requestTimeout).Type("json").Send(body)
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to post to %s: %w", url, err)
	}
	return res, nil
}

// GetJSON fetches url with the same retry rules as PostJSON.
func GetJSON(ctx context.Context, url string, retry int) ([]byte, error) {
	res, err := withRetry(ctx, url, retry, func() *gorequest.SuperAgent {
		return gorequest.New().Get(url).Timeout(requestTimeout).Set("Accept", "application/json")
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to fetch %s: %w", url, err)
	}
	return res, nil
}

func withRetry(ctx context.Context, url string, retry int, newRequest func() *gorequest.SuperAgent) (res []byte, err error) {
	for i := 0; i <= retry; i++ {
		if i > 0 {
			wait := RetryWait(i)
			logrus.Debugf("retry %s after %s", url, wait)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}
		if err = ctx.Err(); err != nil {
			return nil, err
		}
		res, err = send(ctx, url, newRequest())
		if err == nil {
			return res, nil
		}
		if !retryable(err) {
			return nil, err
		}
	}
	return nil, err
}

func retryable(err error) bool {
	if xerrors.Is(err, context.Canceled) || xerrors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if xerrors.As(err, &se) {
		return se.StatusCode >= http.StatusInternalServerError || se.StatusCode == http.StatusTooManyRequests
	}
	return true
}

type response struct {
	body []byte
	err  error
}

// send runs the request in the background so that a canceled ctx returns immediately. The
// abandoned request ends at requestTimeout.
func send(ctx context.Context, url string, req *gorequest.SuperAgent) ([]byte, error) {
	done := make(chan response, 1)
	go func() {
		resp, b, errs := req.EndBytes()
		switch {
		case len(errs) > 0:
			done <- response{err: xerrors.Errorf("HTTP error. url: %s, err: %w", url, errs[0])}
		case resp.StatusCode != http.StatusOK:
			done <- response{err: &StatusError{URL: url, StatusCode: resp.StatusCode}}
		default:
			done <- response{body: b}
		}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		return r.body, r.err
	}
}

func randInt() int {
	seed, _ := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
	return int(seed.Int64())
}

func LookupEnv(key, defaultValue string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultValue
}
