package graph

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fmulab/graphqa/internal/util"
	"github.com/fmulab/graphqa/pkg/logger"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"golang.org/x/sync/singleflight"
)

const defaultQueryTimeout = 30 * time.Second

// Executor runs a parameterized read query. Client implements it; tests and
// higher layers depend on the interface only.
type Executor interface {
	ExecuteQuery(ctx context.Context, query string, params map[string]any) (*Result, error)
}

// Result is the eagerly collected outcome of a query.
type Result struct {
	Records []*neo4j.Record
	Summary neo4j.ResultSummary
	Keys    []string
}

// Dialer opens and verifies a driver.
type Dialer func(ctx context.Context, params ClientParams) (neo4j.DriverWithContext, error)

// ClientParams configures the connection to the graph store.
//
// UserAgent is only sent when EnableUserAgent is set.
type ClientParams struct {
	URI             string
	Username        string
	Password        string
	Database        string
	UserAgent       string
	EnableUserAgent bool

	QueryTimeout time.Duration
	Retry        util.RetryPolicy
}

// Client owns the shared driver. The driver is opened lazily on first use
// and reused by every request.
//
// A Client should be created using NewClient.
type Client struct {
	params ClientParams
	dial   Dialer

	mu     sync.RWMutex
	driver neo4j.DriverWithContext
	group  singleflight.Group
}

type ClientOption func(*Client)

// WithDialer replaces the driver factory.
func WithDialer(d Dialer) ClientOption {
	return func(c *Client) {
		c.dial = d
	}
}

func NewClient(params ClientParams, opts ...ClientOption) *Client {
	if params.QueryTimeout <= 0 {
		params.QueryTimeout = defaultQueryTimeout
	}
	c := &Client{
		params: params,
		dial:   dialNeo4j,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(c)
	}
	return c
}

func dialNeo4j(ctx context.Context, params ClientParams) (neo4j.DriverWithContext, error) {
	driver, err := neo4j.NewDriverWithContext(
		params.URI,
		neo4j.BasicAuth(params.Username, params.Password, ""),
		func(conf *neo4j.Config) {
			if params.EnableUserAgent && params.UserAgent != "" {
				conf.UserAgent = params.UserAgent
			}
		},
	)
	if err != nil {
		return nil, err
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(context.WithoutCancel(ctx))
		return nil, err
	}
	return driver, nil
}

func (c *Client) current() neo4j.DriverWithContext {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.driver
}

// Connect returns the shared driver, opening it on first use. Concurrent
// first callers share a single dial attempt.
func (c *Client) Connect(ctx context.Context) (neo4j.DriverWithContext, error) {
	if d := c.current(); d != nil {
		return d, nil
	}

	v, err, _ := c.group.Do("connect", func() (any, error) {
		if d := c.current(); d != nil {
			return d, nil
		}

		driver, err := util.RetryWithContext(ctx, c.params.Retry, func(ctx context.Context) (neo4j.DriverWithContext, error) {
			return c.dial(ctx, c.params)
		})
		if err != nil {
			logger.Error("Failed to connect to graph database", "uri", c.params.URI, "err", err)
			return nil, &ConnectionError{URI: c.params.URI, Err: err}
		}

		c.mu.Lock()
		c.driver = driver
		c.mu.Unlock()

		logger.Info("Connected to graph database", "uri", c.params.URI, "database", c.params.Database)
		return driver, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(neo4j.DriverWithContext), nil
}

// ExecuteQuery runs query against the configured database, routed to readers.
func (c *Client) ExecuteQuery(ctx context.Context, query string, params map[string]any) (*Result, error) {
	driver, err := c.Connect(ctx)
	if err != nil {
		return nil, err
	}

	qctx, cancel := context.WithTimeout(ctx, c.params.QueryTimeout)
	defer cancel()

	start := time.Now()
	res, err := neo4j.ExecuteQuery(
		qctx,
		driver,
		query,
		params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(c.params.Database),
		neo4j.ExecuteQueryWithReadersRouting(),
	)
	if err != nil {
		if neo4j.IsConnectivityError(err) {
			logger.Error("Graph database unreachable", "uri", c.params.URI, "err", err)
			return nil, &ConnectionError{URI: c.params.URI, Err: err}
		}
		cause := err
		switch {
		case ctx.Err() != nil:
			cause = fmt.Errorf("%w: %w", ctx.Err(), err)
		case errors.Is(qctx.Err(), context.DeadlineExceeded):
			cause = fmt.Errorf("%w after %s: %w", ErrQueryTimeout, c.params.QueryTimeout, err)
		}
		qerr := &QueryExecutionError{Query: query, Err: cause}
		logger.Error("Graph query failed", "err", qerr, "params", paramKeys(params))
		return nil, qerr
	}

	logger.Debug("Graph query finished", "records", len(res.Records), "duration", time.Since(start))
	return &Result{
		Records: res.Records,
		Summary: res.Summary,
		Keys:    res.Keys,
	}, nil
}

// Close releases the driver. The client reconnects on next use.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	driver := c.driver
	c.driver = nil
	c.mu.Unlock()

	if driver == nil {
		return nil
	}
	return driver.Close(ctx)
}

// paramKeys keeps embeddings and document lists out of log lines.
func paramKeys(params map[string]any) []string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	return keys
}
