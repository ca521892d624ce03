// Package odoo is a JSON-RPC client for the Odoo-backed system of record.
// It covers only what the discovery pipeline needs: duplicate lookup,
// reference-id resolution, and lead creation.
package odoo

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Client performs system-of-record operations.
type Client interface {
	// FindSimilar returns existing leads whose partner name coarsely
	// matches name (prefix ilike), optionally narrowed by city. Precise
	// similarity scoring is the caller's job.
	FindSimilar(ctx context.Context, name, city string) ([]Lead, error)
	// StateID resolves a two-letter region code to a record id.
	// ok is false when the code is unknown.
	StateID(ctx context.Context, stateCode, countryCode string) (id int, ok bool, err error)
	// CountryID resolves an ISO country code to a record id.
	CountryID(ctx context.Context, countryCode string) (id int, ok bool, err error)
	// StageID resolves a pipeline stage by exact name.
	StageID(ctx context.Context, name string) (id int, ok bool, err error)
	// CreateLead writes a new lead and returns its id.
	CreateLead(ctx context.Context, values map[string]any) (int, error)
}

// Lead is the subset of an existing lead used for dedup.
type Lead struct {
	ID          int
	PartnerName string
	City        string
	Street      string
	StreamKey   string
}

// Config holds connection settings for the system of record.
type Config struct {
	URL      string
	Database string
	User     string
	APIKey   string
}

// Option configures the client.
type Option func(*rpcClient)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *rpcClient) {
		c.http = hc
	}
}

type rpcClient struct {
	cfg  Config
	http *http.Client

	mu  sync.Mutex
	uid int // 0 until authenticated
}

// NewClient creates a system-of-record client. Authentication is lazy: the
// first call authenticates and caches the session uid.
func NewClient(cfg Config, opts ...Option) Client {
	c := &rpcClient{
		cfg: Config{
			URL:      strings.TrimRight(cfg.URL, "/"),
			Database: cfg.Database,
			User:     cfg.User,
			APIKey:   cfg.APIKey,
		},
		http: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type rpcRequest struct {
	JSONRPC string    `json:"jsonrpc"`
	Method  string    `json:"method"`
	Params  rpcParams `json:"params"`
	ID      int       `json:"id"`
}

type rpcParams struct {
	Service string `json:"service"`
	Method  string `json:"method"`
	Args    []any  `json:"args"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
}

func (e *rpcError) String() string {
	if e.Data != nil {
		if msg, ok := e.Data["message"].(string); ok && msg != "" {
			return msg
		}
	}
	return e.Message
}

func (c *rpcClient) call(ctx context.Context, service, method string, args []any, out any) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  "call",
		Params:  rpcParams{Service: service, Method: method, Args: args},
		ID:      1,
	})
	if err != nil {
		return eris.Wrap(err, "odoo: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+"/jsonrpc", bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "odoo: create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "odoo: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "odoo: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("odoo: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return eris.Wrap(err, "odoo: unmarshal response")
	}
	if rpcResp.Error != nil {
		return eris.Errorf("odoo: rpc fault: %s", rpcResp.Error.String())
	}
	if out != nil {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return eris.Wrap(err, "odoo: unmarshal result")
		}
	}
	return nil
}

// authenticate resolves and caches the session uid.
func (c *rpcClient) authenticate(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.uid != 0 {
		return c.uid, nil
	}

	var uid int
	err := c.call(ctx, "common", "authenticate",
		[]any{c.cfg.Database, c.cfg.User, c.cfg.APIKey, map[string]any{}}, &uid)
	if err != nil {
		return 0, err
	}
	if uid == 0 {
		return 0, eris.Errorf("odoo: authentication failed for user %q on database %q", c.cfg.User, c.cfg.Database)
	}
	c.uid = uid
	zap.L().Debug("odoo: authenticated", zap.Int("uid", uid))
	return uid, nil
}

// executeKw invokes model.method with positional args and keyword kwargs,
// re-authenticating once if the session looks expired.
func (c *rpcClient) executeKw(ctx context.Context, model, method string, args []any, kwargs map[string]any, out any) error {
	uid, err := c.authenticate(ctx)
	if err != nil {
		return err
	}
	if kwargs == nil {
		kwargs = map[string]any{}
	}

	call := func(uid int) error {
		return c.call(ctx, "object", "execute_kw",
			[]any{c.cfg.Database, uid, c.cfg.APIKey, model, method, args, kwargs}, out)
	}

	err = call(uid)
	if err != nil && (strings.Contains(strings.ToLower(err.Error()), "session") ||
		strings.Contains(strings.ToLower(err.Error()), "access")) {
		zap.L().Debug("odoo: session may have expired, re-authenticating")
		c.mu.Lock()
		c.uid = 0
		c.mu.Unlock()
		uid, authErr := c.authenticate(ctx)
		if authErr != nil {
			return authErr
		}
		return call(uid)
	}
	return err
}

// leadRow matches the search_read projection used by FindSimilar. Odoo
// returns false for unset char fields, hence the custom unmarshal.
type leadRow struct {
	ID          int             `json:"id"`
	PartnerName json.RawMessage `json:"partner_name"`
	City        json.RawMessage `json:"city"`
	Street      json.RawMessage `json:"street"`
	StreamKey   json.RawMessage `json:"x_bd_stream"`
}

// optString decodes an Odoo char field that may be false instead of null.
func optString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func (c *rpcClient) FindSimilar(ctx context.Context, name, city string) ([]Lead, error) {
	// Coarse prefilter: ilike on the first characters of the name. Precise
	// matching happens in the deduplicator.
	prefix := name
	if len(prefix) > 5 {
		cut := 5
		for cut > 0 && !utf8.RuneStart(prefix[cut]) {
			cut--
		}
		prefix = prefix[:cut]
	}
	domain := []any{
		[]any{"partner_name", "ilike", prefix},
	}
	if city != "" {
		domain = append(domain, []any{"city", "ilike", city})
	}

	var rows []leadRow
	err := c.executeKw(ctx, "crm.lead", "search_read",
		[]any{domain},
		map[string]any{
			"fields": []string{"id", "partner_name", "city", "street", "x_bd_stream"},
			"limit":  50,
		},
		&rows,
	)
	if err != nil {
		return nil, eris.Wrap(err, "odoo: find similar")
	}

	leads := make([]Lead, 0, len(rows))
	for _, r := range rows {
		leads = append(leads, Lead{
			ID:          r.ID,
			PartnerName: optString(r.PartnerName),
			City:        optString(r.City),
			Street:      optString(r.Street),
			StreamKey:   optString(r.StreamKey),
		})
	}
	return leads, nil
}

// searchOne runs model.search with the given domain and returns the first id.
func (c *rpcClient) searchOne(ctx context.Context, model string, domain []any) (int, bool, error) {
	var ids []int
	err := c.executeKw(ctx, model, "search", []any{domain}, map[string]any{"limit": 1}, &ids)
	if err != nil {
		return 0, false, err
	}
	if len(ids) == 0 {
		return 0, false, nil
	}
	return ids[0], true, nil
}

func (c *rpcClient) StateID(ctx context.Context, stateCode, countryCode string) (int, bool, error) {
	id, ok, err := c.searchOne(ctx, "res.country.state", []any{
		[]any{"code", "=", strings.ToUpper(stateCode)},
		[]any{"country_id.code", "=", strings.ToUpper(countryCode)},
	})
	if err != nil {
		return 0, false, eris.Wrapf(err, "odoo: state id %s", stateCode)
	}
	return id, ok, nil
}

func (c *rpcClient) CountryID(ctx context.Context, countryCode string) (int, bool, error) {
	id, ok, err := c.searchOne(ctx, "res.country", []any{
		[]any{"code", "=", strings.ToUpper(countryCode)},
	})
	if err != nil {
		return 0, false, eris.Wrapf(err, "odoo: country id %s", countryCode)
	}
	return id, ok, nil
}

func (c *rpcClient) StageID(ctx context.Context, name string) (int, bool, error) {
	id, ok, err := c.searchOne(ctx, "crm.stage", []any{
		[]any{"name", "=", name},
	})
	if err != nil {
		return 0, false, eris.Wrapf(err, "odoo: stage id %q", name)
	}
	return id, ok, nil
}

func (c *rpcClient) CreateLead(ctx context.Context, values map[string]any) (int, error) {
	var id int
	err := c.executeKw(ctx, "crm.lead", "create", []any{values}, nil, &id)
	if err != nil {
		return 0, eris.Wrap(err, "odoo: create lead")
	}
	return id, nil
}
