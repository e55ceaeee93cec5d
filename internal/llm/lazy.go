// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// keyFetchTimeout bounds the secret lookup shared by concurrent first callers.
const keyFetchTimeout = 15 * time.Second

// KeySource yields the API key used to build the shared client.
type KeySource interface {
	APIKey(ctx context.Context) (string, error)
}

// Lazy builds the Client on first use and reuses it afterwards. Concurrent
// first calls share one key fetch; a failed fetch is not cached, so the
// next request tries again.
type Lazy struct {
	keys  KeySource
	opts  Options
	group singleflight.Group

	mu     sync.RWMutex
	client *Client
}

// NewLazy creates a lazily initialised client handle.
func NewLazy(keys KeySource, opts Options) *Lazy {
	return &Lazy{keys: keys, opts: opts}
}

// Client returns the shared client, creating it if needed. Key lookup
// failures are reported as *TransportError.
func (l *Lazy) Client(ctx context.Context) (*Client, error) {
	if c := l.loaded(); c != nil {
		return c, nil
	}

	v, err, _ := l.group.Do("client", func() (any, error) {
		if c := l.loaded(); c != nil {
			return c, nil
		}

		// Detached from the first caller so its cancellation does not fail
		// the other callers waiting on the same fetch.
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), keyFetchTimeout)
		defer cancel()

		key, err := l.keys.APIKey(fetchCtx)
		if err != nil {
			return nil, err
		}

		c := NewClient(key, l.opts)
		l.mu.Lock()
		l.client = c
		l.mu.Unlock()
		return c, nil
	})
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("resolve api key: %w", err)}
	}
	return v.(*Client), nil
}

// Complete resolves the shared client and forwards the request to it.
func (l *Lazy) Complete(ctx context.Context, req Request) (string, error) {
	c, err := l.Client(ctx)
	if err != nil {
		return "", err
	}
	return c.Complete(ctx, req)
}

func (l *Lazy) loaded() *Client {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.client
}
