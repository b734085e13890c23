package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/iho/erpledger/internal/domain"
	"github.com/iho/erpledger/internal/infrastructure/auth"
)

type recordedRequest struct {
	Method  string
	Path    string
	Query   string
	Headers http.Header
	Body    map[string]any
}

func newAPIServer(t *testing.T, status int, response string) (*httptest.Server, *recordedRequest) {
	t.Helper()

	rec := &recordedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.Method = r.Method
		rec.Path = r.URL.Path
		rec.Query = r.URL.RawQuery
		rec.Headers = r.Header.Clone()
		if data, _ := io.ReadAll(r.Body); len(data) > 0 {
			_ = json.Unmarshal(data, &rec.Body)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, response)
	}))
	t.Cleanup(srv.Close)

	return srv, rec
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("expected short unchanged, got %q", got)
	}

	if got := truncate("longerstring", 6); got != "lon..." {
		t.Fatalf("expected lon..., got %q", got)
	}
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := printJSON(&buf, struct {
		A int `json:"a"`
	}{A: 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := "{\n  \"a\": 1\n}\n"
	if buf.String() != expected {
		t.Fatalf("unexpected json output:\n%s", buf.String())
	}
}

func TestStockIssueSendsRequest(t *testing.T) {
	srv, rec := newAPIServer(t, http.StatusCreated, `{"stock":{"material_id":"M1"}}`)

	out, err := execute(t, "", "--url", srv.URL, "--token", "tok",
		"stock", "issue", "--material", "M1", "--project", "P1", "--qty", "2.5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rec.Method != http.MethodPost || rec.Path != "/api/v1/stocks/issue" {
		t.Fatalf("unexpected request %s %s", rec.Method, rec.Path)
	}
	if rec.Headers.Get("Authorization") != "Bearer tok" {
		t.Fatalf("expected bearer token to be sent, got %q", rec.Headers.Get("Authorization"))
	}
	if rec.Body["material_id"] != "M1" || rec.Body["project_id"] != "P1" || rec.Body["quantity"] != "2.5" {
		t.Fatalf("unexpected body: %v", rec.Body)
	}
	if !strings.Contains(out, `"material_id": "M1"`) {
		t.Fatalf("expected pretty-printed response, got %s", out)
	}
}

func TestStockReceiveRejectsBadInput(t *testing.T) {
	srv, rec := newAPIServer(t, http.StatusCreated, `{}`)

	_, err := execute(t, "", "--url", srv.URL, "stock", "receive", "--material", "M1", "--qty", "ten", "--price", "1")
	if err == nil || !strings.Contains(err.Error(), "quantity") {
		t.Fatalf("expected quantity validation error, got %v", err)
	}

	_, err = execute(t, "", "--url", srv.URL, "stock", "receive", "--qty", "1", "--price", "1")
	if err == nil || !strings.Contains(err.Error(), "material_id") {
		t.Fatalf("expected material_id validation error, got %v", err)
	}

	if rec.Path != "" {
		t.Fatalf("expected no request to be sent, got %s", rec.Path)
	}
}

func TestEventPostFromStdin(t *testing.T) {
	srv, rec := newAPIServer(t, http.StatusCreated, `{"event_id":"evt-1"}`)

	event := `{"id":"evt-1","event_type":"PO_ORDERED","source_id":"PO-7","payload":{"supplier_id":"S1","amount":"90"}}`
	_, err := execute(t, event, "--url", srv.URL, "event", "post", "--idempotency-key", "k-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rec.Path != "/api/v1/events" || rec.Headers.Get("Idempotency-Key") != "k-1" {
		t.Fatalf("unexpected request %s with key %q", rec.Path, rec.Headers.Get("Idempotency-Key"))
	}
	payload, _ := rec.Body["payload"].(map[string]any)
	if rec.Body["event_type"] != "PO_ORDERED" || payload["supplier_id"] != "S1" {
		t.Fatalf("unexpected body: %v", rec.Body)
	}
}

func TestEventPostRejectsStockOut(t *testing.T) {
	_, err := execute(t, `{"event_type":"STOCK_OUT","source_id":"M1","payload":{}}`,
		"--url", "http://127.0.0.1:0", "event", "post")
	if err == nil || !strings.Contains(err.Error(), "event_type") {
		t.Fatalf("expected event_type validation error, got %v", err)
	}
}

func TestJournalListPrintsTable(t *testing.T) {
	srv, rec := newAPIServer(t, http.StatusOK, `[
		{"id":"je-1","journal_no":"JE-202610-000001","source_type":"ORDER","source_id":"SO-1","status":"POSTED","total_debit":"1000","description":"Order SO-1 confirmed"}
	]`)

	out, err := execute(t, "", "--url", srv.URL, "journal", "list", "--limit", "5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rec.Query != "limit=5" {
		t.Fatalf("expected limit query, got %q", rec.Query)
	}
	for _, want := range []string{"JOURNAL NO", "JE-202610-000001", "1000.00", "Order SO-1 confirmed"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestLedgerConsistency(t *testing.T) {
	srv, _ := newAPIServer(t, http.StatusOK, `{"status":"consistent","consistent":true}`)
	out, err := execute(t, "", "--url", srv.URL, "ledger", "consistency")
	if err != nil || !strings.Contains(out, "PASSED") {
		t.Fatalf("expected passed check, got %q, %v", out, err)
	}

	srv, _ = newAPIServer(t, http.StatusConflict, `{"status":"inconsistent","consistent":false}`)
	_, err = execute(t, "", "--url", srv.URL, "ledger", "consistency")
	if err == nil || !strings.Contains(err.Error(), "FAILED") {
		t.Fatalf("expected failed check, got %v", err)
	}
}

func TestLedgerReconcileReportsDifference(t *testing.T) {
	srv, _ := newAPIServer(t, http.StatusConflict, `{
		"reconciled": false,
		"ledger_consistent": true,
		"results": [
			{"kind":"RECEIVABLE","account_code":"1100","ledger_balance":"500","open_items":"500","difference":"0","is_reconciled":true},
			{"kind":"PAYABLE","account_code":"2000","ledger_balance":"0","open_items":"300","difference":"-300","is_reconciled":false}
		]
	}`)

	out, err := execute(t, "", "--url", srv.URL, "ledger", "reconcile")
	if err == nil {
		t.Fatalf("expected unreconciled ledger to fail")
	}
	if !strings.Contains(out, "PAYABLE") || !strings.Contains(out, "-300.00 DIFF") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestLedgerBalance(t *testing.T) {
	srv, rec := newAPIServer(t, http.StatusOK, `{
		"account": {"code":"1100","name":"Accounts Receivable","type":"ASSET","is_active":true},
		"debits": "1000", "credits": "400", "balance": "600"
	}`)

	out, err := execute(t, "", "--url", srv.URL, "ledger", "balance", "1100")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Path != "/api/v1/accounts/1100/balance" {
		t.Fatalf("unexpected path %s", rec.Path)
	}
	if !strings.Contains(out, "Accounts Receivable") || !strings.Contains(out, "balance: 600.00") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestOutstandingUsesPartyParam(t *testing.T) {
	srv, rec := newAPIServer(t, http.StatusOK, `{"kind":"PAYABLE","outstanding":"10"}`)

	if _, err := execute(t, "", "--url", srv.URL, "payable", "outstanding", "--supplier", "S1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Path != "/api/v1/payables/outstanding" || rec.Query != "supplier_id=S1" {
		t.Fatalf("unexpected request %s?%s", rec.Path, rec.Query)
	}
}

func TestTokenCmd(t *testing.T) {
	out, err := execute(t, "", "token", "--secret", "s3cret", "--user", "u1", "--role", "operator", "--ttl", "1h")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var resp struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}

	claims, err := auth.NewJWTManager("s3cret", time.Hour).Verify(resp.Token)
	if err != nil {
		t.Fatalf("issued token does not verify: %v", err)
	}
	if claims.Subject != "u1" || claims.Role != domain.RoleOperator {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	if _, err := execute(t, "", "token", "--secret", "s3cret", "--user", "u1", "--role", "root"); err == nil {
		t.Fatalf("expected unknown role to be rejected")
	}
}
