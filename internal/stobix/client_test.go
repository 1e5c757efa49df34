package stobix

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/bardlex/stobixd/internal/httpclient"
	"github.com/bardlex/stobixd/pkg/errors"
)

type recordingDoer struct {
	requests []httpclient.Request
	replies  map[string]string
	err      error
}

func (d *recordingDoer) Execute(_ context.Context, req httpclient.Request) (*httpclient.Response, error) {
	d.requests = append(d.requests, req)
	if d.err != nil {
		return nil, d.err
	}
	return &httpclient.Response{StatusCode: 200, Body: []byte(d.replies[req.URL])}, nil
}

func testEndpoints() Endpoints {
	return Endpoints{
		BaseURL:       "https://api.test",
		InviteBaseURL: "https://site.test/invite",
		IPLookupURL:   "https://ip.test/?format=json",
		ChainID:       8453,
	}
}

func TestClient_Endpoints(t *testing.T) {
	doer := &recordingDoer{replies: map[string]string{
		"https://api.test/v1/auth/nonce":          `{"nonce":"n1","message":"sign n1"}`,
		"https://api.test/v1/auth/web3/verify":    `{"token":"tok"}`,
		"https://api.test/v1/loyalty":             `{"user":{"points":12.5,"miningStartedAt":null,"miningClaimAt":null},"tasks":[{"id":"a","claimedAt":null}]}`,
		"https://api.test/v1/loyalty/tasks/claim": `{"points":5}`,
		"https://api.test/v1/loyalty/points/mine": `{"amount":3,"startedAt":1700000000000,"claimAt":"2023-11-15T06:13:20Z"}`,
		"https://ip.test/?format=json":            `{"ip":"203.0.113.7"}`,
	}}
	c := New(doer, testEndpoints())
	ctx := context.Background()

	nonce, err := c.Nonce(ctx, "0xabc")
	if err != nil || nonce.Nonce != "n1" || nonce.Message != "sign n1" {
		t.Fatalf("Nonce() = %+v, %v", nonce, err)
	}
	verify, err := c.Verify(ctx, "n1", "0xsig")
	if err != nil || verify.Token != "tok" {
		t.Fatalf("Verify() = %+v, %v", verify, err)
	}
	loyalty, err := c.Loyalty(ctx, "tok")
	if err != nil || loyalty.User.Points != 12.5 || len(loyalty.Tasks) != 1 {
		t.Fatalf("Loyalty() = %+v, %v", loyalty, err)
	}
	if _, err := c.ClaimTask(ctx, "tok", "a"); err != nil {
		t.Fatal(err)
	}
	mine, err := c.Mine(ctx, "tok")
	if err != nil || mine.Amount != 3 || !mine.StartedAt.IsSet() {
		t.Fatalf("Mine() = %+v, %v", mine, err)
	}
	ip, err := c.PublicIP(ctx)
	if err != nil || ip != "203.0.113.7" {
		t.Fatalf("PublicIP() = %q, %v", ip, err)
	}
	if err := c.VisitInvite(ctx, "REF 1"); err != nil {
		t.Fatal(err)
	}

	verifyBody, _ := json.Marshal(doer.requests[1].Body)
	var vb map[string]any
	_ = json.Unmarshal(verifyBody, &vb)
	if vb["chain"] != float64(8453) || vb["nonce"] != "n1" || vb["signature"] != "0xsig" {
		t.Errorf("verify body = %s", verifyBody)
	}
	if doer.requests[0].Token != "" || doer.requests[2].Token != "tok" {
		t.Error("token should be sent only on authenticated calls")
	}
	claimBody, _ := json.Marshal(doer.requests[3].Body)
	if string(claimBody) != `{"taskId":"a"}` {
		t.Errorf("claim body = %s", claimBody)
	}
	mineBody, _ := json.Marshal(doer.requests[4].Body)
	if string(mineBody) != `{}` {
		t.Errorf("mine body = %s", mineBody)
	}
	if got := doer.requests[6].URL; got != "https://site.test/invite/REF%201" {
		t.Errorf("invite URL = %s", got)
	}
}

func TestClient_PropagatesTransportError(t *testing.T) {
	doer := &recordingDoer{err: errors.New(errors.ErrorTypeTransport, "http_request", "down")}
	if _, err := New(doer, testEndpoints()).Loyalty(context.Background(), "tok"); !errors.IsType(err, errors.ErrorTypeTransport) {
		t.Errorf("expected transport error, got %v", err)
	}
}

func TestClient_VisitInviteEmptyCode(t *testing.T) {
	doer := &recordingDoer{}
	if err := New(doer, testEndpoints()).VisitInvite(context.Background(), ""); err == nil {
		t.Error("expected error for empty code")
	}
	if len(doer.requests) != 0 {
		t.Error("no request should be made for an empty code")
	}
}

func TestTimestamp_UnmarshalJSON(t *testing.T) {
	want := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		in    string
		set   bool
		known bool
	}{
		{"null", `null`, false, false},
		{"rfc3339", `"2025-03-01T12:00:00Z"`, true, true},
		{"rfc3339 millis", `"2025-03-01T12:00:00.000Z"`, true, true},
		{"rfc3339 offset", `"2025-03-01T14:00:00+02:00"`, true, true},
		{"no zone", `"2025-03-01T12:00:00"`, true, true},
		{"no zone millis", `"2025-03-01T12:00:00.000"`, true, true},
		{"space separated", `"2025-03-01 12:00:00"`, true, true},
		{"epoch millis", `1740830400000`, true, true},
		{"empty string", `""`, true, false},
		{"unreadable string", `"yesterday"`, true, false},
		{"bool", `true`, true, false},
		{"object", `{"at":1}`, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ts Timestamp
			if err := json.Unmarshal([]byte(tt.in), &ts); err != nil {
				t.Fatalf("Unmarshal(%s) error = %v", tt.in, err)
			}
			if ts.IsSet() != tt.set {
				t.Errorf("IsSet() = %v, want %v", ts.IsSet(), tt.set)
			}
			if ts.Known() != tt.known {
				t.Errorf("Known() = %v, want %v", ts.Known(), tt.known)
			}
			if tt.known && !ts.Time().Equal(want) {
				t.Errorf("Time() = %v, want %v", ts.Time(), want)
			}
		})
	}
}

func TestLoyalty_LenientTimestamps(t *testing.T) {
	body := `{
  "user": {"points": 42, "miningStartedAt": "2025-03-01T12:00:00", "miningClaimAt": "2099-01-01 00:00:00"},
  "tasks": [
    {"id": "daily", "claimedAt": "2025-03-01 12:00:00"},
    {"id": "odd", "claimedAt": "claimed"},
    {"id": "open", "claimedAt": null}
  ]
}`

	var loyalty Loyalty
	if err := json.Unmarshal([]byte(body), &loyalty); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if loyalty.User.Points != 42 || len(loyalty.Tasks) != 3 {
		t.Fatalf("loyalty = %+v", loyalty)
	}
	if !loyalty.User.MiningClaimAt.Known() || loyalty.User.MiningClaimAt.Time().Year() != 2099 {
		t.Errorf("MiningClaimAt = %v", loyalty.User.MiningClaimAt)
	}

	claimed := []bool{true, true, false}
	for i, task := range loyalty.Tasks {
		if task.ClaimedAt.IsSet() != claimed[i] {
			t.Errorf("task %s claimed = %v, want %v", task.ID, task.ClaimedAt.IsSet(), claimed[i])
		}
	}
}

func TestTimestamp_MarshalRoundTrip(t *testing.T) {
	tests := []string{`null`, `""`, `"2025-03-01T12:00:00Z"`}
	for _, in := range tests {
		var ts Timestamp
		if err := json.Unmarshal([]byte(in), &ts); err != nil {
			t.Fatal(err)
		}
		out, err := json.Marshal(ts)
		if err != nil {
			t.Fatal(err)
		}
		if string(out) != in {
			t.Errorf("Marshal(Unmarshal(%s)) = %s", in, out)
		}
	}
}

func TestTimestamp_MissingField(t *testing.T) {
	var task Task
	if err := json.Unmarshal([]byte(`{"id":"x"}`), &task); err != nil {
		t.Fatal(err)
	}
	if task.ClaimedAt.IsSet() {
		t.Error("absent claimedAt should be unset")
	}
}
