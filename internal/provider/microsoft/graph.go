package microsoft

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"

	"github.com/pysugar/service-interactor/internal/logging"
	"github.com/pysugar/service-interactor/internal/metrics"
	"github.com/pysugar/service-interactor/internal/provider"
	"github.com/pysugar/service-interactor/internal/util"
	"go.uber.org/zap"
)

// GraphError is the error body returned by Microsoft Graph.
type GraphError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *GraphError) Error() string {
	return fmt.Sprintf("graph: %d %s: %s", e.Status, e.Code, e.Message)
}

// page is one page of a Graph collection.
type page struct {
	Value    []json.RawMessage `json:"value"`
	NextLink string            `json:"@odata.nextLink"`
}

// request is one Graph call. Path is relative to the Graph root unless it
// is an absolute URL, as @odata.nextLink values are.
type request struct {
	op     string
	method string
	path   string
	body   any
	header http.Header
}

// do sends req with the account's current access token and returns the raw
// response on success. The caller closes the body.
func (a *Adapter) do(ctx context.Context, req request) (*http.Response, error) {
	cred, err := a.Holder().Current(ctx)
	if err != nil {
		return nil, err
	}

	url := req.path
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = a.graphURL + req.path
	}

	var body io.Reader
	if req.body != nil {
		data, err := json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	httpReq.Header.Set("Accept", "application/json")
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.header {
		httpReq.Header[k] = v
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		metrics.ObserveVendor("microsoft", req.op, err)
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(resp.Body)
		gerr := &GraphError{Status: resp.StatusCode}
		var envelope struct {
			Error *GraphError `json:"error"`
		}
		if json.Unmarshal(raw, &envelope) == nil && envelope.Error != nil {
			gerr.Code = envelope.Error.Code
			gerr.Message = envelope.Error.Message
		}
		logging.From(ctx).Warn("graph request failed",
			zap.String("op", req.op),
			zap.Int("status", resp.StatusCode),
			zap.String("body", util.TruncateBytes(raw)),
		)
		metrics.ObserveVendor("microsoft", req.op, gerr)
		return nil, gerr
	}
	metrics.ObserveVendor("microsoft", req.op, nil)
	return resp, nil
}

// call sends req and decodes the JSON response into out, which may be nil.
func (a *Adapter) call(ctx context.Context, req request, out any) error {
	resp, err := a.do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.op, err)
	}
	return nil
}

// list pages through a Graph collection following @odata.nextLink.
func list[T any](ctx context.Context, a *Adapter, first request, convert func(json.RawMessage) (T, error)) iter.Seq2[T, error] {
	return provider.Paginate(ctx, func(ctx context.Context, next string) ([]T, string, error) {
		req := first
		if next != "" {
			req.path = next
		}
		var p page
		if err := a.call(ctx, req, &p); err != nil {
			return nil, "", err
		}
		out := make([]T, 0, len(p.Value))
		for _, raw := range p.Value {
			item, err := convert(raw)
			if err != nil {
				return out, "", err
			}
			out = append(out, item)
		}
		return out, p.NextLink, nil
	})
}

func toRaw(data json.RawMessage) map[string]any {
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}
