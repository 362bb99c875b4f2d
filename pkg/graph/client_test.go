package graph

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/fmulab/graphqa/internal/util"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

type fakeDriver struct {
	neo4j.DriverWithContext
	closed atomic.Bool
}

func (d *fakeDriver) Close(context.Context) error {
	d.closed.Store(true)
	return nil
}

func TestConnectIsSingleFlight(t *testing.T) {
	t.Parallel()

	var dials atomic.Int32
	release := make(chan struct{})
	driver := &fakeDriver{}

	c := NewClient(ClientParams{URI: "bolt://test"}, WithDialer(func(ctx context.Context, _ ClientParams) (neo4j.DriverWithContext, error) {
		dials.Add(1)
		<-release
		return driver, nil
	}))

	var wg sync.WaitGroup
	results := make([]neo4j.DriverWithContext, 16)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := c.Connect(context.Background())
			if err != nil {
				t.Errorf("connect: %v", err)
				return
			}
			results[i] = d
		}()
	}
	close(release)
	wg.Wait()

	if got := dials.Load(); got != 1 {
		t.Fatalf("expected 1 dial, got %d", got)
	}
	for i, d := range results {
		if d != driver {
			t.Fatalf("caller %d got a different driver", i)
		}
	}

	if _, err := c.Connect(context.Background()); err != nil || dials.Load() != 1 {
		t.Fatalf("reconnect should reuse driver, dials=%d err=%v", dials.Load(), err)
	}
}

func TestConnectFailureIsConnectionError(t *testing.T) {
	t.Parallel()

	var dials atomic.Int32
	cause := errors.New("authentication failure")
	c := NewClient(ClientParams{URI: "bolt://test", Retry: util.RetryPolicy{MaxTries: 3}}, WithDialer(func(context.Context, ClientParams) (neo4j.DriverWithContext, error) {
		dials.Add(1)
		return nil, cause
	}))

	_, err := c.Connect(context.Background())
	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected ConnectionError, got %T %v", err, err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
	if dials.Load() != 3 {
		t.Fatalf("expected 3 dial attempts, got %d", dials.Load())
	}

	if _, err := c.ExecuteQuery(context.Background(), "RETURN 1", nil); !errors.As(err, &connErr) {
		t.Fatalf("ExecuteQuery should surface ConnectionError, got %v", err)
	}
}

func TestCloseResetsDriver(t *testing.T) {
	t.Parallel()

	driver := &fakeDriver{}
	var dials atomic.Int32
	c := NewClient(ClientParams{URI: "bolt://test"}, WithDialer(func(context.Context, ClientParams) (neo4j.DriverWithContext, error) {
		dials.Add(1)
		return driver, nil
	}))

	if _, err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !driver.closed.Load() {
		t.Fatal("driver not closed")
	}
	if _, err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if dials.Load() != 2 {
		t.Fatalf("expected reconnect after close, dials=%d", dials.Load())
	}
}

func TestQueryExecutionErrorTimeout(t *testing.T) {
	t.Parallel()

	err := error(&QueryExecutionError{Query: "MATCH (n)\n RETURN n", Err: ErrQueryTimeout})
	var qerr *QueryExecutionError
	if !errors.As(err, &qerr) || !qerr.Timeout() {
		t.Fatalf("expected timeout QueryExecutionError")
	}
	if !errors.Is(err, ErrQueryTimeout) {
		t.Fatalf("errors.Is should match ErrQueryTimeout")
	}
}
