// internal/clients/registry_client.go
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"libraledger/internal/audit"
	"libraledger/internal/catalog"
	"libraledger/internal/circulation"
	"libraledger/internal/domainerr"
	"libraledger/internal/membership"
	"libraledger/internal/registry"
)

// RegistryClient talks to the registry HTTP API. Refusals come back as *domainerr.Error.
type RegistryClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewRegistryClient(baseURL string, httpClient *http.Client) *RegistryClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &RegistryClient{baseURL: baseURL, httpClient: httpClient}
}

func (c *RegistryClient) RegisterPublication(ctx context.Context, req registry.NewPublicationRequest) (*catalog.Publication, error) {
	var pub catalog.Publication
	if err := c.do(ctx, http.MethodPost, "/api/v1/publications", req, http.StatusCreated, &pub); err != nil {
		return nil, err
	}
	return &pub, nil
}

func (c *RegistryClient) GetPublication(ctx context.Context, code string) (*catalog.Publication, error) {
	var pub catalog.Publication
	if err := c.do(ctx, http.MethodGet, "/api/v1/publications/"+url.PathEscape(code), nil, http.StatusOK, &pub); err != nil {
		return nil, err
	}
	return &pub, nil
}

func (c *RegistryClient) UpdatePublication(ctx context.Context, code string, upd registry.PublicationUpdate) error {
	return c.do(ctx, http.MethodPatch, "/api/v1/publications/"+url.PathEscape(code), upd, http.StatusNoContent, nil)
}

func (c *RegistryClient) TopPublications(ctx context.Context, limit int) ([]catalog.Publication, error) {
	var pubs []catalog.Publication
	path := "/api/v1/publications/top?limit=" + strconv.Itoa(limit)
	if err := c.do(ctx, http.MethodGet, path, nil, http.StatusOK, &pubs); err != nil {
		return nil, err
	}
	return pubs, nil
}

func (c *RegistryClient) RegisterMember(ctx context.Context, req registry.NewMemberRequest) (*membership.Member, error) {
	var m membership.Member
	if err := c.do(ctx, http.MethodPost, "/api/v1/members", req, http.StatusCreated, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *RegistryClient) CreateLoan(ctx context.Context, memberID, code string) (*circulation.LoanRecord, error) {
	var loan circulation.LoanRecord
	body := registry.CreateLoanRequest{MemberID: memberID, PublicationCode: code}
	if err := c.do(ctx, http.MethodPost, "/api/v1/loans", body, http.StatusCreated, &loan); err != nil {
		return nil, err
	}
	return &loan, nil
}

func (c *RegistryClient) ReturnLoan(ctx context.Context, loanID int) (*circulation.LoanRecord, error) {
	var loan circulation.LoanRecord
	path := fmt.Sprintf("/api/v1/loans/%d/return", loanID)
	if err := c.do(ctx, http.MethodPost, path, nil, http.StatusOK, &loan); err != nil {
		return nil, err
	}
	return &loan, nil
}

func (c *RegistryClient) CreateSale(ctx context.Context, memberID, code string, quantity int) (*circulation.SaleRecord, error) {
	var sale circulation.SaleRecord
	body := registry.CreateSaleRequest{MemberID: memberID, PublicationCode: code, Quantity: quantity}
	if err := c.do(ctx, http.MethodPost, "/api/v1/sales", body, http.StatusCreated, &sale); err != nil {
		return nil, err
	}
	return &sale, nil
}

func (c *RegistryClient) Audit(ctx context.Context) (*audit.Report, error) {
	var report audit.Report
	if err := c.do(ctx, http.MethodGet, "/api/v1/audit", nil, http.StatusOK, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

func (c *RegistryClient) do(ctx context.Context, method, path string, in any, want int, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var de domainerr.Error
	if err := json.NewDecoder(resp.Body).Decode(&de); err != nil || de.Kind == "" {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return &de
}
