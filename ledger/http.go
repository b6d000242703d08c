/*
http.go - JSON/HTTP transport for the ledger

PURPOSE:
  HTTPClient talks to a ledger bridge over HTTP. NewHandler serves the same
  protocol on top of a Memory ledger, so development setups and tests can run
  the full remote path without an external ledger.

PROTOCOL:
  GET  /transfer_fee                    -> {"fee": n}
  POST /transfer        TransferArgs    -> {"block_index": n}
  GET  /query_blocks?start=&length=     -> {"blocks": [...]}

  Rejected transfers answer 422 with
    {"error": "...", "reason": "bad_fee|insufficient_funds", "expected_fee": n, "balance": n}

  NewHandler additionally exposes development endpoints:
  POST /mint            {"to", "amount", "memo"}
  POST /transfer_from   {"from", "args"}
  GET  /accounts/{account}/balance

SEE ALSO:
  - client.go: Client interface
  - memory.go: Ledger behind NewHandler
*/
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

const (
	reasonBadFee            = "bad_fee"
	reasonInsufficientFunds = "insufficient_funds"
)

type feeResponse struct {
	Fee uint64 `json:"fee"`
}

type transferResponse struct {
	BlockIndex uint64 `json:"block_index"`
}

type blocksResponse struct {
	Blocks []Block `json:"blocks"`
}

type errorResponse struct {
	Error       string `json:"error"`
	Reason      string `json:"reason,omitempty"`
	ExpectedFee uint64 `json:"expected_fee,omitempty"`
	Balance     uint64 `json:"balance,omitempty"`
}

// =============================================================================
// CLIENT
// =============================================================================

// HTTPClient is a Client backed by a remote ledger bridge.
type HTTPClient struct {
	BaseURL string
	HTTP    *http.Client
}

// NewHTTPClient creates a client for the bridge at baseURL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *HTTPClient) TransferFee(ctx context.Context) (uint64, error) {
	var resp feeResponse
	if err := c.do(ctx, http.MethodGet, "/transfer_fee", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Fee, nil
}

func (c *HTTPClient) Transfer(ctx context.Context, args TransferArgs) (uint64, error) {
	var resp transferResponse
	if err := c.do(ctx, http.MethodPost, "/transfer", args, &resp); err != nil {
		return 0, err
	}
	return resp.BlockIndex, nil
}

func (c *HTTPClient) QueryBlocks(ctx context.Context, start, length uint64) ([]Block, error) {
	q := url.Values{}
	q.Set("start", strconv.FormatUint(start, 10))
	q.Set("length", strconv.FormatUint(length, 10))

	var resp blocksResponse
	if err := c.do(ctx, http.MethodGet, "/query_blocks?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Blocks, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		switch e.Reason {
		case reasonBadFee:
			return &TransferError{Reason: ErrBadFee, ExpectedFee: e.ExpectedFee}
		case reasonInsufficientFunds:
			return &TransferError{Reason: ErrInsufficientFunds, Balance: e.Balance}
		}
		return fmt.Errorf("%w: %s %s: status %d: %s", ErrUnavailable, method, path, resp.StatusCode, e.Error)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// =============================================================================
// HANDLER
// =============================================================================

// NewHandler serves the bridge protocol on top of m.
func NewHandler(m *Memory) http.Handler {
	r := chi.NewRouter()

	r.Get("/transfer_fee", func(w http.ResponseWriter, r *http.Request) {
		fee, _ := m.TransferFee(r.Context())
		writeJSON(w, http.StatusOK, feeResponse{Fee: fee})
	})

	r.Post("/transfer", func(w http.ResponseWriter, r *http.Request) {
		var args TransferArgs
		if err := json.NewDecoder(r.Body).Decode(&args); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		index, err := m.Transfer(r.Context(), args)
		if err != nil {
			writeTransferError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, transferResponse{BlockIndex: index})
	})

	r.Get("/query_blocks", func(w http.ResponseWriter, r *http.Request) {
		start, err1 := strconv.ParseUint(r.URL.Query().Get("start"), 10, 64)
		length, err2 := strconv.ParseUint(r.URL.Query().Get("length"), 10, 64)
		if err1 != nil || err2 != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "start and length must be unsigned integers"})
			return
		}
		blocks, _ := m.QueryBlocks(r.Context(), start, length)
		writeJSON(w, http.StatusOK, blocksResponse{Blocks: blocks})
	})

	r.Post("/mint", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			To     AccountIdentifier `json:"to"`
			Amount uint64            `json:"amount"`
			Memo   string            `json:"memo"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		index := m.Mint(req.To, req.Amount, req.Memo)
		writeJSON(w, http.StatusOK, transferResponse{BlockIndex: index})
	})

	r.Post("/transfer_from", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			From string       `json:"from"`
			Args TransferArgs `json:"args"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		index, err := m.TransferFrom(req.From, req.Args)
		if err != nil {
			writeTransferError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, transferResponse{BlockIndex: index})
	})

	r.Get("/accounts/{account}/balance", func(w http.ResponseWriter, r *http.Request) {
		account, err := ParseAccountIdentifier(chi.URLParam(r, "account"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]uint64{"balance": m.Balance(account)})
	})

	return r
}

func writeTransferError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error()}
	var te *TransferError
	if errors.As(err, &te) {
		resp.ExpectedFee = te.ExpectedFee
		resp.Balance = te.Balance
		switch {
		case errors.Is(te.Reason, ErrBadFee):
			resp.Reason = reasonBadFee
		case errors.Is(te.Reason, ErrInsufficientFunds):
			resp.Reason = reasonInsufficientFunds
		}
	}
	writeJSON(w, http.StatusUnprocessableEntity, resp)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
