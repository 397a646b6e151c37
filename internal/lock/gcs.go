package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/googleapi"
)

// DefaultStaleAfter bounds how long a crashed holder can block everyone else.
// It must exceed the longest generation run.
const DefaultStaleAfter = 15 * time.Minute

// GCSLocker implements Locker with objects in a Cloud Storage bucket. A lock is
// held while its object exists; creation uses a DoesNotExist precondition so
// exactly one writer wins.
type GCSLocker struct {
	bucket       *storage.BucketHandle
	prefix       string
	pollInterval time.Duration
	staleAfter   time.Duration
	host         string
}

// NewGCSLocker returns a locker that stores lock objects under locks/ in bucket.
func NewGCSLocker(bucket *storage.BucketHandle, pollInterval, staleAfter time.Duration) *GCSLocker {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	host, _ := os.Hostname()
	return &GCSLocker{
		bucket:       bucket,
		prefix:       "locks/",
		pollInterval: pollInterval,
		staleAfter:   staleAfter,
		host:         host,
	}
}

type lockBody struct {
	Name     string    `json:"name"`
	Holder   string    `json:"holder"`
	Host     string    `json:"host"`
	Acquired time.Time `json:"acquired"`
}

// Acquire blocks until the named lock is held by this caller.
func (l *GCSLocker) Acquire(ctx context.Context, name string) (Release, error) {
	obj := l.bucket.Object(l.objectName(name))
	return poll(ctx, name, l.pollInterval, func(ctx context.Context) (func() error, bool, error) {
		gen, err := l.create(ctx, obj, name)
		if err == nil {
			return func() error {
				err := obj.If(storage.Conditions{GenerationMatch: gen}).Delete(context.Background())
				if err != nil && !errors.Is(err, storage.ErrObjectNotExist) && !isPreconditionFailed(err) {
					return fmt.Errorf("failed to delete lock object: %w", err)
				}
				return nil
			}, true, nil
		}
		if !isPreconditionFailed(err) {
			return nil, false, fmt.Errorf("failed to create lock object for %s: %w", name, err)
		}
		l.breakIfStale(ctx, obj, name)
		return nil, false, nil
	})
}

func (l *GCSLocker) objectName(name string) string {
	return l.prefix + SafeName(name) + ".lock"
}

func (l *GCSLocker) create(ctx context.Context, obj *storage.ObjectHandle, name string) (int64, error) {
	body, err := json.Marshal(lockBody{
		Name:     name,
		Holder:   uuid.NewString(),
		Host:     l.host,
		Acquired: time.Now().UTC(),
	})
	if err != nil {
		return 0, err
	}

	writer := obj.If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	writer.ContentType = "application/json"
	writer.Metadata = map[string]string{"lock": name}
	if _, err := writer.Write(body); err != nil {
		_ = writer.Close()
		return 0, err
	}
	if err := writer.Close(); err != nil {
		return 0, err
	}
	return writer.Attrs().Generation, nil
}

// breakIfStale removes a lock object older than staleAfter. The delete is
// conditioned on the generation that was inspected so a fresh holder is never
// evicted.
func (l *GCSLocker) breakIfStale(ctx context.Context, obj *storage.ObjectHandle, name string) {
	attrs, err := obj.Attrs(ctx)
	if err != nil {
		return
	}
	age := time.Since(attrs.Created)
	if age < l.staleAfter {
		return
	}
	if err := obj.If(storage.Conditions{GenerationMatch: attrs.Generation}).Delete(ctx); err == nil {
		logStaleBreak(name, age)
	}
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}
