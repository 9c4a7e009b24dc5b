package vcs

import (
	"context"
	"time"
)

// WithTimeout wraps client so that every call gets its own deadline of d.
// A non-positive d returns client unchanged.
func WithTimeout(client Client, d time.Duration) Client {
	if d <= 0 {
		return client
	}
	return &timeoutClient{next: client, timeout: d}
}

type timeoutClient struct {
	next    Client
	timeout time.Duration
}

func (t *timeoutClient) Connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Connect(ctx)
}

func (t *timeoutClient) Kind(ctx context.Context, path string) (NodeKind, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Kind(ctx, path)
}

func (t *timeoutClient) Checkout(ctx context.Context, path, dir string) (Revision, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Checkout(ctx, path, dir)
}

func (t *timeoutClient) Revert(ctx context.Context, dir string) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Revert(ctx, dir)
}

func (t *timeoutClient) Update(ctx context.Context, dir string) (Revision, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Update(ctx, dir)
}

func (t *timeoutClient) Import(ctx context.Context, src, path, message string) (CommitInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Import(ctx, src, path, message)
}

func (t *timeoutClient) Mkdir(ctx context.Context, path, message string) (CommitInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Mkdir(ctx, path, message)
}

func (t *timeoutClient) Add(ctx context.Context, paths ...string) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Add(ctx, paths...)
}

func (t *timeoutClient) Changes(ctx context.Context, dirs ...string) (ChangeSet, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Changes(ctx, dirs...)
}

func (t *timeoutClient) Commit(ctx context.Context, changes ChangeSet, message string) (CommitInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Commit(ctx, changes, message)
}

func (t *timeoutClient) Info(ctx context.Context, path string) (Info, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Info(ctx, path)
}
