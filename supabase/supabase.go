package supabase

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cepro/dercompliance/repository"
	supa "github.com/nedpals/supabase-go"
)

const (
	requestTimeout = 10 * time.Second

	resultRowTableName = "der_result_rows"
)

var errTimeout = errors.New("timed out")

// Client uploads result rows to Supabase. The underlying supabase-go client is created on first use and is
// re-created after any request that fails or times out.
type Client struct {
	url     string
	anonKey string
	userKey string // optional user JWT, sent in place of the anon key
	schema  string

	lock   sync.Mutex
	db     *supa.Client // nil until the next request creates it
	logger *slog.Logger
}

func New(url, anonKey, userKey, schema string) (*Client, error) {
	if url == "" || anonKey == "" {
		return nil, fmt.Errorf("supabase url and key are required")
	}
	return &Client{
		url:     url,
		anonKey: anonKey,
		userKey: userKey,
		schema:  schema,
		logger:  slog.Default().With("component", "supabase", "host", url),
	}, nil
}

// UploadResultRows inserts the rows into the results table.
func (c *Client) UploadResultRows(rows []repository.StoredResultRow) error {
	return c.insert(resultRowTableName, convertResultRows(rows))
}

func (c *Client) insert(table string, records interface{}) error {
	db := c.client()

	// supabase-go takes no context, so the request is abandoned rather than cancelled on timeout
	errCh := make(chan error, 1)
	go func() {
		errCh <- db.DB.From(table).Insert(records).Execute(nil)
	}()

	var err error
	select {
	case <-time.After(requestTimeout):
		err = errTimeout
	case err = <-errCh:
	}
	if err != nil {
		c.discard(db)
		return fmt.Errorf("insert into %s: %w", table, err)
	}
	return nil
}

// client returns the current supabase-go client, creating one if needed.
func (c *Client) client() *supa.Client {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.db != nil {
		return c.db
	}

	db := supa.CreateClient(c.url, c.anonKey)
	if c.schema != "" {
		db.DB.AddHeader("Accept-Profile", c.schema)
		db.DB.AddHeader("Content-Profile", c.schema)
	}
	if c.userKey != "" {
		db.DB.AddHeader("Authorization", "Bearer "+c.userKey)
	}
	c.db = db
	c.logger.Info("Created supabase client")
	return db
}

// discard drops `db` so that the next request starts with a fresh client, unless it has already been replaced.
func (c *Client) discard(db *supa.Client) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.db == db {
		c.db = nil
	}
}
