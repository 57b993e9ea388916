package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/premunia/leadline/internal/ratelimit"
)

func TestInvoke_RoutesThroughHandler(t *testing.T) {
	env := newTestEnv(t)

	resp, err := Invoke(context.Background(), env.handler, Request{
		Method:  http.MethodPost,
		Path:    "/.netlify/functions/api/leads",
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    `{"first_name":"Jean","last_name":"Dupont","email":"jean@x.com"}`,
	}, WithStripPrefix("/.netlify/functions/api/"))
	if err != nil {
		t.Fatalf("Invoke() error: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected status 201, got %d (body %s)", resp.StatusCode, resp.Body)
	}
	if resp.Headers["Content-Type"] != "application/json" {
		t.Errorf("expected JSON content type, got %q", resp.Headers["Content-Type"])
	}
	if resp.Headers["Access-Control-Allow-Origin"] != "*" {
		t.Errorf("expected CORS header on adapted response")
	}

	var body struct {
		Lead struct {
			Status string `json:"status"`
		} `json:"lead"`
	}
	if err := json.Unmarshal([]byte(resp.Body), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Lead.Status != "new" {
		t.Errorf("expected status new, got %q", body.Lead.Status)
	}
}

func TestInvoke_Base64Body(t *testing.T) {
	env := newTestEnv(t)

	raw := `{"email":"jean@x.com","password":"pw"}`
	resp, err := Invoke(context.Background(), env.handler, Request{
		Method:          http.MethodPost,
		Path:            "/auth/signup",
		Body:            base64.StdEncoding.EncodeToString([]byte(raw)),
		IsBase64Encoded: true,
	})
	if err != nil {
		t.Fatalf("Invoke() error: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected status 201, got %d (body %s)", resp.StatusCode, resp.Body)
	}
}

func TestInvoke_Defaults(t *testing.T) {
	env := newTestEnv(t)

	resp, err := Invoke(context.Background(), env.handler, Request{Path: "health"})
	if err != nil {
		t.Fatalf("Invoke() error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}

	resp, err = Invoke(context.Background(), env.handler, Request{Method: http.MethodOptions, Path: "/anything"})
	if err != nil {
		t.Fatalf("Invoke() error: %v", err)
	}
	if resp.StatusCode != http.StatusOK || resp.Body != "" {
		t.Errorf("expected empty 200 for OPTIONS, got %d %q", resp.StatusCode, resp.Body)
	}
}

func TestInvoke_BadBase64(t *testing.T) {
	env := newTestEnv(t)
	if _, err := Invoke(context.Background(), env.handler, Request{Path: "/health", Body: "%%%", IsBase64Encoded: true}); err == nil {
		t.Fatal("expected error for invalid base64 body")
	}
}

func TestInvoke_SourceIP(t *testing.T) {
	var got string
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ratelimit.ClientIP(r)
	})

	for _, ip := range []string{"203.0.113.7", "2001:db8::1"} {
		if _, err := Invoke(context.Background(), h, Request{Path: "/leads", SourceIP: ip}); err != nil {
			t.Fatalf("Invoke() error: %v", err)
		}
		if got != ip {
			t.Errorf("client ip = %q, want %q", got, ip)
		}
	}
}
