package services_test

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"audiothek/internal/services"
)

func TestNewHTTPClientAppliesProxy(t *testing.T) {
	proxy, err := url.Parse("socks5://127.0.0.1:1080")
	if err != nil {
		t.Fatal(err)
	}
	client := services.NewHTTPClient(proxy, 5*time.Second)
	if client.Timeout != 5*time.Second {
		t.Fatalf("unexpected timeout %v", client.Timeout)
	}
	transport, ok := client.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("unexpected transport type %T", client.Transport)
	}
	req, err := http.NewRequest(http.MethodGet, "https://api.ardaudiothek.de/graphql", nil)
	if err != nil {
		t.Fatal(err)
	}
	got, err := transport.Proxy(req)
	if err != nil {
		t.Fatalf("Proxy returned error: %v", err)
	}
	if got == nil || got.String() != "socks5://127.0.0.1:1080" {
		t.Fatalf("unexpected proxy %v", got)
	}
}
