package obslog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path"
	"strings"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/api/option"
)

// SecretFetcher retrieves a named secret. Implementations back the optional
// pricing-table override and the optional GitHub App private-key path; the
// default `gh`-CLI auth path never needs one.
type SecretFetcher interface {
	FetchSecret(ctx context.Context, secretPath string) (string, error)
	Close() error
}

// SecretManagerClient fetches secrets from GCP Secret Manager, falling back
// to the `gcloud` CLI when the client library can't be constructed (no
// default credentials available, e.g. a bare laptop invocation).
type SecretManagerClient struct {
	client    *secretmanager.Client
	projectID string
}

// NewSecretManagerClient constructs a client-backed fetcher.
func NewSecretManagerClient(ctx context.Context, opts ...option.ClientOption) (*SecretManagerClient, error) {
	client, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create secret manager client: %w", err)
	}
	projectID, err := getProjectID(ctx)
	if err != nil {
		return nil, fmt.Errorf("get project id: %w", err)
	}
	return &SecretManagerClient{client: client, projectID: projectID}, nil
}

func getProjectID(ctx context.Context) (string, error) {
	for _, env := range []string{"GOOGLE_CLOUD_PROJECT", "GCP_PROJECT", "GCLOUD_PROJECT"} {
		if v := os.Getenv(env); v != "" {
			return v, nil
		}
	}
	return getProjectIDFromMetadata(ctx)
}

func getProjectIDFromMetadata(ctx context.Context) (string, error) {
	const metadataURL = "http://metadata.google.internal/computeMetadata/v1/project/project-id"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metadataURL, nil)
	if err != nil {
		return "", fmt.Errorf("build metadata request: %w", err)
	}
	req.Header.Set("Metadata-Flavor", "Google")
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch project id from metadata server: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("metadata server returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read metadata response: %w", err)
	}
	projectID := strings.TrimSpace(string(body))
	if projectID == "" {
		return "", fmt.Errorf("empty project id from metadata server")
	}
	return projectID, nil
}

// FetchSecret retrieves a secret version. secretPath may be a bare secret
// name, a "projects/.../secrets/NAME" path, or a fully versioned path.
func (c *SecretManagerClient) FetchSecret(ctx context.Context, secretPath string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req := &secretmanagerpb.AccessSecretVersionRequest{Name: c.normalizeSecretPath(secretPath)}
	result, err := c.client.AccessSecretVersion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("access secret version: %w", err)
	}
	return string(result.Payload.Data), nil
}

func (c *SecretManagerClient) normalizeSecretPath(secretPath string) string {
	if strings.HasPrefix(secretPath, "projects/") && strings.Contains(secretPath, "/versions/") {
		return secretPath
	}
	if strings.HasPrefix(secretPath, "projects/") && strings.Contains(secretPath, "/secrets/") {
		return secretPath + "/versions/latest"
	}
	secretName := path.Base(secretPath)
	return fmt.Sprintf("projects/%s/secrets/%s/versions/latest", c.projectID, secretName)
}

// Close releases the underlying client connection.
func (c *SecretManagerClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// CLIFallbackFetcher shells out to `gcloud secrets versions access` when no
// Secret Manager client could be constructed. Mirrors the prior
// fetchSecret behavior of trying the client first and degrading to the CLI.
type CLIFallbackFetcher struct{}

// FetchSecret runs `gcloud secrets versions access latest --secret=NAME`.
func (CLIFallbackFetcher) FetchSecret(ctx context.Context, secretPath string) (string, error) {
	name := path.Base(secretPath)
	cmd := exec.CommandContext(ctx, "gcloud", "secrets", "versions", "access", "latest", "--secret="+name)
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("gcloud secrets versions access %s: %w", name, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Close is a no-op: the CLI fallback holds no resources.
func (CLIFallbackFetcher) Close() error { return nil }

// NewSecretFetcher tries the Secret Manager client first and falls back to
// the gcloud CLI, logging the degradation instead of failing outright.
func NewSecretFetcher(ctx context.Context, logger Logger, opts ...option.ClientOption) SecretFetcher {
	client, err := NewSecretManagerClient(ctx, opts...)
	if err != nil {
		if logger != nil {
			logger.Warning(fmt.Sprintf("secret manager client unavailable, falling back to gcloud CLI: %v", err))
		}
		return CLIFallbackFetcher{}
	}
	return client
}

var _ SecretFetcher = (*SecretManagerClient)(nil)
var _ SecretFetcher = CLIFallbackFetcher{}
