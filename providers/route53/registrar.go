package route53

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/route53domains"
	domaintypes "github.com/aws/aws-sdk-go-v2/service/route53domains/types"

	"github.com/clearskydns/zonesync/internal/registrar"
)

// DomainsAPI is the subset of the Route53 Domains client the registrar uses.
type DomainsAPI interface {
	GetDomainDetail(ctx context.Context, params *route53domains.GetDomainDetailInput, optFns ...func(*route53domains.Options)) (*route53domains.GetDomainDetailOutput, error)
	UpdateDomainNameservers(ctx context.Context, params *route53domains.UpdateDomainNameserversInput, optFns ...func(*route53domains.Options)) (*route53domains.UpdateDomainNameserversOutput, error)
}

// Registrar adapts the Route53 Domains service to the registrar API so
// delegation for registered domains can follow their hosted zones.
type Registrar struct {
	api    DomainsAPI
	logger *slog.Logger
}

var _ registrar.API = (*Registrar)(nil)

// NewRegistrar creates a Registrar over the given Domains client.
func NewRegistrar(api DomainsAPI, logger *slog.Logger) *Registrar {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registrar{api: api, logger: logger}
}

// NewRegistrarFromConfig builds the SDK client from cfg. The Route53 Domains
// service is only available in us-east-1, regardless of the configured
// region.
func NewRegistrarFromConfig(ctx context.Context, cfg Config, logger *slog.Logger) (*Registrar, error) {
	cfg.Region = "us-east-1"
	awsCfg, err := LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewRegistrar(route53domains.NewFromConfig(awsCfg), logger), nil
}

// GetNameservers returns the delegation set registered for the domain.
func (r *Registrar) GetNameservers(ctx context.Context, domain string) ([]string, error) {
	out, err := r.api.GetDomainDetail(ctx, &route53domains.GetDomainDetailInput{
		DomainName: aws.String(domain),
	})
	if err != nil {
		return nil, fmt.Errorf("getting domain detail for %s: %w", domain, err)
	}

	servers := make([]string, 0, len(out.Nameservers))
	for _, ns := range out.Nameservers {
		servers = append(servers, aws.ToString(ns.Name))
	}
	return servers, nil
}

// UpdateNameservers replaces the registered delegation set.
func (r *Registrar) UpdateNameservers(ctx context.Context, domain string, nameservers []string) error {
	servers := make([]domaintypes.Nameserver, 0, len(nameservers))
	for _, ns := range nameservers {
		servers = append(servers, domaintypes.Nameserver{Name: aws.String(ns)})
	}

	_, err := r.api.UpdateDomainNameservers(ctx, &route53domains.UpdateDomainNameserversInput{
		DomainName:  aws.String(domain),
		Nameservers: servers,
	})
	if err != nil {
		return fmt.Errorf("updating nameservers for %s: %w", domain, err)
	}

	r.logger.Info("updated registered nameservers",
		slog.String("domain", domain),
		slog.Int("count", len(nameservers)))
	return nil
}
