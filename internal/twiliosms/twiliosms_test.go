package twiliosms

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"sort"
	"strings"
	"testing"
)

func TestMockClient_SendMessage(t *testing.T) {
	ctx := context.Background()
	mock := NewMockClient()

	if err := mock.SendMessage(ctx, "+970599000001", "Hello Test"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sent := mock.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(sent))
	}
	if sent[0].Body != "Hello Test" {
		t.Errorf("expected body %q, got %q", "Hello Test", sent[0].Body)
	}
	if sent[0].To != "+970599000001" {
		t.Errorf("expected to %q, got %q", "+970599000001", sent[0].To)
	}
}

func TestMockClient_Error(t *testing.T) {
	mock := NewMockClient()
	mock.Err = errors.New("boom")
	if err := mock.SendMessage(context.Background(), "+1", "x"); err == nil {
		t.Fatal("expected error")
	}
	if len(mock.Sent()) != 0 {
		t.Errorf("expected nothing recorded on error")
	}
}

func TestNewClient_MissingCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")

	if _, err := NewClient(); err == nil {
		t.Fatal("expected error without credentials")
	}
	if _, err := NewClient(WithAccountSID("AC123"), WithAuthToken("tok")); err == nil {
		t.Fatal("expected error without from number")
	}
}

func TestNewClient_EnvFallback(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "AC123")
	t.Setenv("TWILIO_AUTH_TOKEN", "tok")
	t.Setenv("TWILIO_FROM_NUMBER", "+15005550006")

	c, err := NewClient()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.fromNumber != "+15005550006" {
		t.Errorf("expected from number from env, got %q", c.fromNumber)
	}
}

func TestReplyTwiML(t *testing.T) {
	out, err := ReplyTwiML("hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "<Response>") || !strings.Contains(out, "<Message>") || !strings.Contains(out, "hello") {
		t.Errorf("unexpected TwiML: %s", out)
	}

	empty, err := ReplyTwiML("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(empty, "<Message") {
		t.Errorf("expected no Message verb for empty body, got %s", empty)
	}
}

func sign(token, url string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(url)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(params[k])
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestValidator(t *testing.T) {
	url := "https://safebirth.example.org/api/sms/incoming"
	params := map[string]string{"From": "+970599000001", "Body": "EMERGENCY", "MessageSid": "SM1"}
	v := NewValidator("secret")

	if !v.Validate(url, params, sign("secret", url, params)) {
		t.Error("expected valid signature")
	}
	if v.Validate(url, params, sign("other", url, params)) {
		t.Error("expected signature with wrong token to fail")
	}
	if v.Validate(url, params, "") {
		t.Error("expected empty signature to fail")
	}
}
