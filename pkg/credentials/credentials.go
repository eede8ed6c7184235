// Package credentials supplies Google client options for the run's clients
// without interactive authentication.
package credentials

import (
	"context"
	"fmt"
	"os"

	"cloud.google.com/go/pubsub"
	"github.com/illmade-knight/go-alertstream/pkg/types"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Provider modes.
const (
	ModeApplicationDefault = "adc"
	ModeServiceAccount     = "service-account"
	ModeEmulator           = "emulator"
)

// EmulatorHostEnv is consulted when an emulator provider has no address.
const EmulatorHostEnv = "PUBSUB_EMULATOR_HOST"

// Provider returns the client options that authenticate Google clients.
type Provider interface {
	ClientOptions(ctx context.Context) ([]option.ClientOption, error)
}

// Config selects and configures a Provider.
type Config struct {
	Mode string `mapstructure:"mode"`
	// File is the service-account key used by ModeServiceAccount.
	File string `mapstructure:"file"`
	// EmulatorHost is the host:port used by ModeEmulator.
	EmulatorHost string `mapstructure:"emulator_host"`
}

// ApplicationDefault relies on Application Default Credentials.
type ApplicationDefault struct{}

func (ApplicationDefault) ClientOptions(context.Context) ([]option.ClientOption, error) {
	return nil, nil
}

// ServiceAccountFile authenticates with a service-account JSON key.
type ServiceAccountFile struct {
	Path string
}

func (s ServiceAccountFile) ClientOptions(context.Context) ([]option.ClientOption, error) {
	if s.Path == "" {
		return nil, fmt.Errorf("%w: service-account credentials need a key file", types.ErrConfiguration)
	}
	if _, err := os.Stat(s.Path); err != nil {
		return nil, fmt.Errorf("%w: service-account key file: %v", types.ErrConfiguration, err)
	}
	return []option.ClientOption{option.WithCredentialsFile(s.Path)}, nil
}

// Emulator connects without authentication over plaintext gRPC.
type Emulator struct {
	Host string
}

func (e Emulator) ClientOptions(context.Context) ([]option.ClientOption, error) {
	host := e.Host
	if host == "" {
		host = os.Getenv(EmulatorHostEnv)
	}
	if host == "" {
		return nil, fmt.Errorf("%w: emulator credentials need a host or %s", types.ErrConfiguration, EmulatorHostEnv)
	}
	return []option.ClientOption{
		option.WithEndpoint(host),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	}, nil
}

// FromConfig returns the Provider cfg selects. An empty mode means
// application default credentials.
func FromConfig(cfg Config) (Provider, error) {
	switch cfg.Mode {
	case "", ModeApplicationDefault:
		return ApplicationDefault{}, nil
	case ModeServiceAccount:
		return ServiceAccountFile{Path: cfg.File}, nil
	case ModeEmulator:
		return Emulator{Host: cfg.EmulatorHost}, nil
	default:
		return nil, fmt.Errorf("%w: unknown credentials mode %q", types.ErrConfiguration, cfg.Mode)
	}
}

// NewPubsubClient creates a Pub/Sub client for projectID using p.
func NewPubsubClient(ctx context.Context, projectID string, p Provider) (*pubsub.Client, error) {
	opts, err := p.ClientOptions(ctx)
	if err != nil {
		return nil, err
	}
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create pubsub client: %v", types.ErrTransport, err)
	}
	return client, nil
}
