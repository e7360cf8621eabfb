package secrets

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type stubSecretClient struct {
	responses map[string]string
	err       error
	calls     int
}

func (s *stubSecretClient) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	value, ok := s.responses[req.GetName()]
	if !ok {
		return nil, status.Error(codes.NotFound, "secret not found")
	}
	return &secretmanagerpb.AccessSecretVersionResponse{
		Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
	}, nil
}

func (s *stubSecretClient) Close() error { return nil }

func TestFetcherResolveRemote(t *testing.T) {
	client := &stubSecretClient{
		responses: map[string]string{
			"projects/tolkfield/secrets/push-key/versions/latest": "push-secret",
		},
	}
	fetcher, err := NewFetcher(context.Background(),
		WithSecretManagerClient(client),
		WithDefaultProject("tolkfield"),
		WithFallbackFile(""),
	)
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	t.Cleanup(func() { _ = fetcher.Close() })

	value, err := fetcher.Resolve(context.Background(), "secret://push-key")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if value != "push-secret" {
		t.Fatalf("Resolve = %q", value)
	}

	// Second resolve is served from cache.
	if _, err := fetcher.Resolve(context.Background(), "secret://push-key"); err != nil {
		t.Fatalf("cached Resolve: %v", err)
	}
	if client.calls != 1 {
		t.Fatalf("expected 1 remote call, got %d", client.calls)
	}
}

func TestFetcherInvalidateForcesRefetch(t *testing.T) {
	client := &stubSecretClient{
		responses: map[string]string{
			"projects/tolkfield/secrets/sms-key/versions/latest": "sms-secret",
		},
	}
	fetcher, err := NewFetcher(context.Background(),
		WithSecretManagerClient(client),
		WithDefaultProject("tolkfield"),
		WithFallbackFile(""),
	)
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}

	if _, err := fetcher.Resolve(context.Background(), "secret://sms-key"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	fetcher.Invalidate("secret://sms-key")
	if _, err := fetcher.Resolve(context.Background(), "secret://sms-key"); err != nil {
		t.Fatalf("Resolve after invalidate: %v", err)
	}
	if client.calls != 2 {
		t.Fatalf("expected 2 remote calls, got %d", client.calls)
	}
}

func TestFetcherFallbackFile(t *testing.T) {
	dir := t.TempDir()
	fallback := filepath.Join(dir, ".secrets.local")
	contents := "# local secrets\nsecret://mail-key=local-mail-secret\nsm://push-key=local-push-secret\n"
	if err := os.WriteFile(fallback, []byte(contents), 0o600); err != nil {
		t.Fatalf("write fallback: %v", err)
	}

	fetcher, err := NewFetcher(context.Background(),
		WithSecretManagerClient(&stubSecretClient{err: status.Error(codes.PermissionDenied, "denied")}),
		WithDefaultProject("tolkfield"),
		WithFallbackFile(fallback),
	)
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}

	value, err := fetcher.Resolve(context.Background(), "secret://mail-key")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if value != "local-mail-secret" {
		t.Fatalf("Resolve = %q", value)
	}

	// sm:// keys in the fallback file are normalised to secret://.
	value, err = fetcher.Resolve(context.Background(), "secret://push-key")
	if err != nil {
		t.Fatalf("Resolve push-key: %v", err)
	}
	if value != "local-push-secret" {
		t.Fatalf("Resolve push-key = %q", value)
	}
}

func TestFetcherRejectsMalformedReferences(t *testing.T) {
	fetcher, err := NewFetcher(context.Background(),
		WithSecretManagerClient(&stubSecretClient{}),
		WithFallbackFile(""),
	)
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	for _, ref := range []string{"", "push-key", "http://push-key", "secret://"} {
		if _, err := fetcher.Resolve(context.Background(), ref); err == nil {
			t.Fatalf("Resolve(%q) accepted malformed reference", ref)
		}
	}
}

func TestFetcherProjectOverride(t *testing.T) {
	client := &stubSecretClient{
		responses: map[string]string{
			"projects/other/secrets/push-key/versions/2": "pinned",
		},
	}
	fetcher, err := NewFetcher(context.Background(),
		WithSecretManagerClient(client),
		WithDefaultProject("tolkfield"),
		WithFallbackFile(""),
	)
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}

	value, err := fetcher.Resolve(context.Background(), "secret://push-key?project=other&version=2")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if value != "pinned" {
		t.Fatalf("Resolve = %q", value)
	}
}
