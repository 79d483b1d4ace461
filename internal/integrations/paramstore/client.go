package paramstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// ErrParameterNotFound means the configured credential parameter does not
// exist, as opposed to SSM being unreachable.
var ErrParameterNotFound = errors.New("paramstore: provider credential parameter not found")

type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Getter reads one decrypted parameter value. TokenSource depends on it
// rather than on *Client so it can be tested without AWS.
type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

var _ Getter = (*Client)(nil)

// Client reads the SecureString parameters that hold model provider
// credentials (credentials.api_key_parameter).
type Client struct {
	api ssmAPI
}

func New(api ssmAPI) (*Client, error) {
	if api == nil {
		return nil, errors.New("paramstore: ssm api must not be nil")
	}
	return &Client{api: api}, nil
}

// GetParameter returns the decrypted value of the credential parameter name.
// A missing parameter wraps ErrParameterNotFound; an empty value is an error.
func (c *Client) GetParameter(ctx context.Context, name string) (string, error) {
	if c.api == nil {
		return "", errors.New("paramstore: client not initialized")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("paramstore: credential parameter name is required")
	}

	out, err := c.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: ptr(true),
	})
	if err != nil {
		var notFound *types.ParameterNotFound
		if errors.As(err, &notFound) {
			return "", fmt.Errorf("%w: %q", ErrParameterNotFound, name)
		}
		return "", fmt.Errorf("paramstore: read provider credential %q: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil || strings.TrimSpace(*out.Parameter.Value) == "" {
		return "", fmt.Errorf("paramstore: provider credential %q has no value", name)
	}
	return *out.Parameter.Value, nil
}

func ptr[T any](v T) *T { return &v }
