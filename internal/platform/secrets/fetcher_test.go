package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type stubSecretManager struct {
	accessFunc func(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest) (*secretmanagerpb.AccessSecretVersionResponse, error)
	calls      []string
}

func (s *stubSecretManager) AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	s.calls = append(s.calls, req.GetName())
	if s.accessFunc == nil {
		return nil, status.Error(codes.NotFound, "not configured")
	}
	return s.accessFunc(ctx, req)
}

func (s *stubSecretManager) Close() error { return nil }

func payload(value string) *secretmanagerpb.AccessSecretVersionResponse {
	return &secretmanagerpb.AccessSecretVersionResponse{
		Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
	}
}

func TestResolveFetchesAndCaches(t *testing.T) {
	stub := &stubSecretManager{
		accessFunc: func(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest) (*secretmanagerpb.AccessSecretVersionResponse, error) {
			if req.GetName() != "projects/pf-dev/secrets/stripe-api/versions/latest" {
				return nil, status.Errorf(codes.NotFound, "unexpected resource %s", req.GetName())
			}
			return payload("sk_test_123"), nil
		},
	}

	fetcher, err := NewFetcher(context.Background(),
		WithSecretManagerClient(stub),
		WithDefaultProject("pf-dev"),
		WithFallbackFile(""),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer fetcher.Close()

	value, err := fetcher.Resolve(context.Background(), "secret://stripe-api")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if value != "sk_test_123" {
		t.Fatalf("unexpected secret value %q", value)
	}

	if _, err := fetcher.Resolve(context.Background(), "secret://stripe-api"); err != nil {
		t.Fatalf("cached Resolve returned error: %v", err)
	}
	if len(stub.calls) != 1 {
		t.Fatalf("expected one remote call, got %d", len(stub.calls))
	}
}

func TestResolveVersionAndProjectOverrides(t *testing.T) {
	stub := &stubSecretManager{
		accessFunc: func(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest) (*secretmanagerpb.AccessSecretVersionResponse, error) {
			if req.GetName() != "projects/pf-prod/secrets/webhook/versions/5" {
				return nil, status.Errorf(codes.NotFound, "unexpected resource %s", req.GetName())
			}
			return payload("whsec_abc"), nil
		},
	}

	fetcher, err := NewFetcher(context.Background(),
		WithSecretManagerClient(stub),
		WithDefaultProject("pf-dev"),
		WithFallbackFile(""),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer fetcher.Close()

	value, err := fetcher.Resolve(context.Background(), "secret://webhook?version=5&project=pf-prod")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if value != "whsec_abc" {
		t.Fatalf("unexpected secret value %q", value)
	}
}

func TestResolveProjectMapByEnvironment(t *testing.T) {
	stub := &stubSecretManager{
		accessFunc: func(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest) (*secretmanagerpb.AccessSecretVersionResponse, error) {
			if req.GetName() != "projects/pf-staging/secrets/stripe-api/versions/latest" {
				return nil, status.Errorf(codes.NotFound, "unexpected resource %s", req.GetName())
			}
			return payload("sk_staging"), nil
		},
	}

	fetcher, err := NewFetcher(context.Background(),
		WithSecretManagerClient(stub),
		WithEnvironment("staging"),
		WithProjectMap(map[string]string{"staging": "pf-staging"}),
		WithDefaultProject("pf-dev"),
		WithFallbackFile(""),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer fetcher.Close()

	value, err := fetcher.Resolve(context.Background(), "secret://stripe-api")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if value != "sk_staging" {
		t.Fatalf("unexpected secret value %q", value)
	}
}

func TestResolveFallsBackWhenUnavailable(t *testing.T) {
	dir := t.TempDir()
	fallbackPath := filepath.Join(dir, ".secrets.local")
	content := "secret://stripe-api=sk_local\n"
	if err := os.WriteFile(fallbackPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing fallback file: %v", err)
	}

	stub := &stubSecretManager{
		accessFunc: func(_ context.Context, _ *secretmanagerpb.AccessSecretVersionRequest) (*secretmanagerpb.AccessSecretVersionResponse, error) {
			return nil, status.Error(codes.Unavailable, "secret manager down")
		},
	}

	fetcher, err := NewFetcher(context.Background(),
		WithSecretManagerClient(stub),
		WithDefaultProject("pf-dev"),
		WithFallbackFile(fallbackPath),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer fetcher.Close()

	value, err := fetcher.Resolve(context.Background(), "secret://stripe-api")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if value != "sk_local" {
		t.Fatalf("expected fallback value, got %q", value)
	}
}

func TestResolveSurfacesNonFallbackErrors(t *testing.T) {
	stub := &stubSecretManager{
		accessFunc: func(_ context.Context, _ *secretmanagerpb.AccessSecretVersionRequest) (*secretmanagerpb.AccessSecretVersionResponse, error) {
			return nil, status.Error(codes.NotFound, "no such secret")
		},
	}

	fetcher, err := NewFetcher(context.Background(),
		WithSecretManagerClient(stub),
		WithDefaultProject("pf-dev"),
		WithFallbackFile(""),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer fetcher.Close()

	if _, err := fetcher.Resolve(context.Background(), "secret://missing"); err == nil {
		t.Fatal("expected error for missing secret, got nil")
	}
}

func TestResolveRejectsInvalidReferences(t *testing.T) {
	fetcher, err := NewFetcher(context.Background(),
		WithSecretManagerClient(&stubSecretManager{}),
		WithFallbackFile(""),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer fetcher.Close()

	cases := []string{"", "stripe-api", "sm://stripe-api", "secret://"}
	for _, ref := range cases {
		if _, err := fetcher.Resolve(context.Background(), ref); err == nil {
			t.Errorf("expected error for reference %q", ref)
		}
	}
}

func TestInvalidateForcesRefetch(t *testing.T) {
	values := []string{"sk_one", "sk_two"}
	stub := &stubSecretManager{}
	stub.accessFunc = func(_ context.Context, _ *secretmanagerpb.AccessSecretVersionRequest) (*secretmanagerpb.AccessSecretVersionResponse, error) {
		idx := len(stub.calls) - 1
		if idx >= len(values) {
			return nil, errors.New("too many calls")
		}
		return payload(values[idx]), nil
	}

	fetcher, err := NewFetcher(context.Background(),
		WithSecretManagerClient(stub),
		WithDefaultProject("pf-dev"),
		WithFallbackFile(""),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer fetcher.Close()

	first, err := fetcher.Resolve(context.Background(), "secret://stripe-api")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if first != "sk_one" {
		t.Fatalf("unexpected first value %q", first)
	}

	fetcher.Invalidate("secret://stripe-api")

	second, err := fetcher.Resolve(context.Background(), "secret://stripe-api")
	if err != nil {
		t.Fatalf("Resolve after invalidate returned error: %v", err)
	}
	if second != "sk_two" {
		t.Fatalf("expected refetched value, got %q", second)
	}
}
