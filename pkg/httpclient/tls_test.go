package httpclient

import (
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestConfigureTLS_Defaults(t *testing.T) {
	transport, err := ConfigureTLS(nil)
	if err != nil {
		t.Fatalf("ConfigureTLS(nil) error = %v", err)
	}
	if transport.TLSClientConfig.InsecureSkipVerify {
		t.Error("default transport should verify certificates")
	}
	if transport.TLSClientConfig.RootCAs != nil {
		t.Error("default transport should use system roots")
	}
}

func TestConfigureTLS_CustomCA(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	caPath := filepath.Join(t.TempDir(), "ca.pem")
	caPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: server.Certificate().Raw})
	if err := os.WriteFile(caPath, caPEM, 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	transport, err := ConfigureTLS(&TLSConfig{CACertificate: caPath})
	if err != nil {
		t.Fatalf("ConfigureTLS() error = %v", err)
	}

	client := &http.Client{Transport: transport}
	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("Get() with custom CA error = %v", err)
	}
	resp.Body.Close()

	// Without the CA the self-signed server must be rejected.
	if _, err := http.Get(server.URL); err == nil {
		t.Error("Get() without the CA should fail verification")
	}
}

func TestConfigureTLS_InsecureSkipVerify(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	transport, err := ConfigureTLS(&TLSConfig{InsecureSkipVerify: true})
	if err != nil {
		t.Fatalf("ConfigureTLS() error = %v", err)
	}

	client := &http.Client{Transport: transport}
	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("Get() with InsecureSkipVerify error = %v", err)
	}
	resp.Body.Close()
}

func TestConfigureTLS_BadCA(t *testing.T) {
	if _, err := ConfigureTLS(&TLSConfig{CACertificate: "/nonexistent/ca.pem"}); err == nil {
		t.Error("ConfigureTLS() with a missing CA file should fail")
	}

	badPath := filepath.Join(t.TempDir(), "bad.pem")
	if err := os.WriteFile(badPath, []byte("not a certificate"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := ConfigureTLS(&TLSConfig{CACertificate: badPath}); err == nil {
		t.Error("ConfigureTLS() with invalid PEM should fail")
	}
}

func TestWithTLSConfig_ComposesWithHTTPClient(t *testing.T) {
	c := New(
		WithTLSConfig(&TLSConfig{InsecureSkipVerify: true}),
		WithHTTPClient(&http.Client{}),
	)

	transport, ok := c.client.Transport.(*http.Transport)
	if !ok {
		t.Fatal("TLS transport should apply even when WithHTTPClient comes later")
	}
	if !transport.TLSClientConfig.InsecureSkipVerify {
		t.Error("InsecureSkipVerify should carry through to the transport")
	}
}
