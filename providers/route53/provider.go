package route53

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsroute53 "github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/route53/types"

	"github.com/clearskydns/zonesync/pkg/provider"
	"github.com/clearskydns/zonesync/pkg/zone"
)

// ProviderName is the name used in logs, metrics, and results.
const ProviderName = "route53"

// recordSetPageSize is the page size for ListResourceRecordSets.
const recordSetPageSize = 300

// API is the subset of the Route53 client the provider uses.
type API interface {
	ListHostedZonesByName(ctx context.Context, params *awsroute53.ListHostedZonesByNameInput, optFns ...func(*awsroute53.Options)) (*awsroute53.ListHostedZonesByNameOutput, error)
	GetHostedZone(ctx context.Context, params *awsroute53.GetHostedZoneInput, optFns ...func(*awsroute53.Options)) (*awsroute53.GetHostedZoneOutput, error)
	CreateHostedZone(ctx context.Context, params *awsroute53.CreateHostedZoneInput, optFns ...func(*awsroute53.Options)) (*awsroute53.CreateHostedZoneOutput, error)
	ListResourceRecordSets(ctx context.Context, params *awsroute53.ListResourceRecordSetsInput, optFns ...func(*awsroute53.Options)) (*awsroute53.ListResourceRecordSetsOutput, error)
	ChangeResourceRecordSets(ctx context.Context, params *awsroute53.ChangeResourceRecordSetsInput, optFns ...func(*awsroute53.Options)) (*awsroute53.ChangeResourceRecordSetsOutput, error)
}

// Provider implements the zonesync provider interface against Route53.
type Provider struct {
	api    API
	logger *slog.Logger

	mu      sync.Mutex
	zoneIDs map[string]string
}

var _ provider.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates a Provider over the given Route53 API client.
func New(api API, opts ...Option) *Provider {
	p := &Provider{
		api:     api,
		logger:  slog.Default(),
		zoneIDs: make(map[string]string),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewFromConfig builds the SDK client from cfg and wraps it in a Provider.
func NewFromConfig(ctx context.Context, cfg Config, opts ...Option) (*Provider, error) {
	awsCfg, err := LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return New(awsroute53.NewFromConfig(awsCfg), opts...), nil
}

// Name returns the provider name.
func (p *Provider) Name() string { return ProviderName }

// Kind returns the provider kind.
func (p *Provider) Kind() zone.ProviderKind { return zone.ProviderRoute53 }

// Ping checks API connectivity and credentials with a minimal zone listing.
func (p *Provider) Ping(ctx context.Context) error {
	_, err := p.api.ListHostedZonesByName(ctx, &awsroute53.ListHostedZonesByNameInput{
		MaxItems: aws.Int32(1),
	})
	if err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

// GetZone looks up an existing public hosted zone by name.
func (p *Provider) GetZone(ctx context.Context, zoneName string) (provider.ZoneInfo, error) {
	id, err := p.findZoneID(ctx, zoneName)
	if err != nil {
		return provider.ZoneInfo{}, err
	}

	out, err := p.api.GetHostedZone(ctx, &awsroute53.GetHostedZoneInput{Id: aws.String(id)})
	if err != nil {
		return provider.ZoneInfo{}, fmt.Errorf("getting hosted zone %s: %w", zoneName, err)
	}

	info := provider.ZoneInfo{ID: id}
	if out.DelegationSet != nil {
		info.Nameservers = out.DelegationSet.NameServers
	}
	return info, nil
}

// EnsureZone returns the hosted zone, creating it when absent.
func (p *Provider) EnsureZone(ctx context.Context, zoneName string) (provider.ZoneInfo, error) {
	info, err := p.GetZone(ctx, zoneName)
	if err == nil {
		return info, nil
	}
	if !provider.IsZoneNotFound(err) {
		return provider.ZoneInfo{}, err
	}

	out, err := p.api.CreateHostedZone(ctx, &awsroute53.CreateHostedZoneInput{
		Name: aws.String(zoneName),
		// CallerReference deduplicates retried create requests.
		CallerReference: aws.String(fmt.Sprintf("zonesync-%s-%d", zoneName, time.Now().UnixNano())),
	})
	if err != nil {
		return provider.ZoneInfo{}, fmt.Errorf("creating hosted zone %s: %w", zoneName, err)
	}

	id := trimZoneID(aws.ToString(out.HostedZone.Id))
	p.cacheZoneID(zoneName, id)

	created := provider.ZoneInfo{ID: id}
	if out.DelegationSet != nil {
		created.Nameservers = out.DelegationSet.NameServers
	}
	p.logger.Info("created hosted zone",
		slog.String("zone", zoneName),
		slog.String("zone_id", id))
	return created, nil
}

// ListRecords returns managed live record sets with identity keys assigned.
// NS, SOA, and alias record sets are excluded from management.
func (p *Provider) ListRecords(ctx context.Context, zoneName string) ([]provider.Record, error) {
	zoneID, err := p.zoneID(ctx, zoneName)
	if err != nil {
		return nil, err
	}

	var records []provider.Record
	input := &awsroute53.ListResourceRecordSetsInput{
		HostedZoneId: aws.String(zoneID),
		MaxItems:     aws.Int32(recordSetPageSize),
	}
	for {
		out, err := p.api.ListResourceRecordSets(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("listing record sets for %s: %w", zoneName, err)
		}

		for _, rrs := range out.ResourceRecordSets {
			rec, managed := p.fromRecordSet(zoneName, rrs)
			if managed {
				records = append(records, rec)
			}
		}

		if !out.IsTruncated {
			break
		}
		input.StartRecordName = out.NextRecordName
		input.StartRecordType = out.NextRecordType
		input.StartRecordIdentifier = out.NextRecordIdentifier
	}

	p.logger.Debug("listed record sets",
		slog.String("zone", zoneName),
		slog.Int("count", len(records)))
	return records, nil
}

// CreateRecord creates a record set. A full desired record set maps to one
// Route53 change.
func (p *Provider) CreateRecord(ctx context.Context, zoneName string, rec provider.Record) error {
	return p.change(ctx, zoneName, types.ChangeActionCreate, "create", rec)
}

// UpdateRecord replaces the record set's values via UPSERT.
func (p *Provider) UpdateRecord(ctx context.Context, zoneName string, rec provider.Record) error {
	return p.change(ctx, zoneName, types.ChangeActionUpsert, "update", rec)
}

// DeleteRecord removes the record set. Route53 requires the delete change to
// carry the record's current content.
func (p *Provider) DeleteRecord(ctx context.Context, zoneName string, rec provider.Record) error {
	return p.change(ctx, zoneName, types.ChangeActionDelete, "delete", rec)
}

func (p *Provider) change(ctx context.Context, zoneName string, action types.ChangeAction, op string, rec provider.Record) error {
	zoneID, err := p.zoneID(ctx, zoneName)
	if err != nil {
		return provider.WrapApply(ProviderName, zoneName, rec.Key, op, err)
	}

	rrs, err := toRecordSet(rec)
	if err != nil {
		return provider.WrapApply(ProviderName, zoneName, rec.Key, op,
			fmt.Errorf("%w: %w", provider.ErrValidation, err))
	}

	_, err = p.api.ChangeResourceRecordSets(ctx, &awsroute53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(zoneID),
		ChangeBatch: &types.ChangeBatch{
			Changes: []types.Change{{
				Action:            action,
				ResourceRecordSet: rrs,
			}},
		},
	})
	if err != nil {
		return provider.WrapApply(ProviderName, zoneName, rec.Key, op, classifyError(err))
	}

	p.logger.Debug("applied record change",
		slog.String("zone", zoneName),
		slog.String("key", rec.Key),
		slog.String("action", string(action)))
	return nil
}

// findZoneID resolves the hosted zone ID by exact name match.
func (p *Provider) findZoneID(ctx context.Context, zoneName string) (string, error) {
	fqdn := zoneName + "."
	out, err := p.api.ListHostedZonesByName(ctx, &awsroute53.ListHostedZonesByNameInput{
		DNSName:  aws.String(fqdn),
		MaxItems: aws.Int32(1),
	})
	if err != nil {
		return "", fmt.Errorf("listing hosted zones for %s: %w", zoneName, err)
	}

	if len(out.HostedZones) == 0 || aws.ToString(out.HostedZones[0].Name) != fqdn {
		return "", fmt.Errorf("hosted zone %s: %w", zoneName, provider.ErrZoneNotFound)
	}

	id := trimZoneID(aws.ToString(out.HostedZones[0].Id))
	p.cacheZoneID(zoneName, id)
	return id, nil
}

func (p *Provider) zoneID(ctx context.Context, zoneName string) (string, error) {
	p.mu.Lock()
	id, ok := p.zoneIDs[zoneName]
	p.mu.Unlock()
	if ok {
		return id, nil
	}
	return p.findZoneID(ctx, zoneName)
}

func (p *Provider) cacheZoneID(zoneName, id string) {
	p.mu.Lock()
	p.zoneIDs[zoneName] = id
	p.mu.Unlock()
}

// fromRecordSet maps a live record set to the engine model. Returns false
// for record sets the engine never manages.
func (p *Provider) fromRecordSet(zoneName string, rrs types.ResourceRecordSet) (provider.Record, bool) {
	rtype := string(rrs.Type)
	if rtype == zone.TypeNS || rtype == zone.TypeSOA {
		return provider.Record{}, false
	}
	// Alias record sets have no literal values; they stay out of scope.
	if rrs.AliasTarget != nil {
		return provider.Record{}, false
	}

	name := strings.TrimSuffix(aws.ToString(rrs.Name), ".")
	setID := aws.ToString(rrs.SetIdentifier)

	values := make([]string, 0, len(rrs.ResourceRecords))
	for _, rr := range rrs.ResourceRecords {
		values = append(values, aws.ToString(rr.Value))
	}

	rec := provider.Record{
		Key:           provider.RecordKey(zoneName, name, rtype, setID),
		Zone:          zoneName,
		Name:          name,
		Type:          rtype,
		Values:        values,
		SetIdentifier: setID,
		Routing:       fromRoutingFields(rrs),
		ProviderID:    setID,
	}
	if rrs.TTL != nil {
		rec.TTL = int(*rrs.TTL)
	}
	return rec, true
}

// toRecordSet maps an engine record to the Route53 wire form.
func toRecordSet(rec provider.Record) (*types.ResourceRecordSet, error) {
	rrs := &types.ResourceRecordSet{
		Name: aws.String(rec.Name + "."),
		Type: types.RRType(rec.Type),
		TTL:  aws.Int64(int64(rec.TTL)),
	}
	for _, v := range rec.Values {
		rrs.ResourceRecords = append(rrs.ResourceRecords, types.ResourceRecord{Value: aws.String(v)})
	}

	if rec.Routing != nil {
		if rec.SetIdentifier == "" {
			return nil, fmt.Errorf("record %s has a routing policy but no set identifier", rec.Key)
		}
		rrs.SetIdentifier = aws.String(rec.SetIdentifier)
		if err := applyRoutingFields(rrs, rec.Routing); err != nil {
			return nil, err
		}
	}
	return rrs, nil
}

func applyRoutingFields(rrs *types.ResourceRecordSet, policy zone.RoutingPolicy) error {
	switch p := policy.(type) {
	case zone.WeightedPolicy:
		rrs.Weight = aws.Int64(p.Weight)
	case zone.LatencyPolicy:
		rrs.Region = types.ResourceRecordSetRegion(p.Region)
	case zone.GeolocationPolicy:
		geo := &types.GeoLocation{}
		if p.Continent != "" {
			geo.ContinentCode = aws.String(p.Continent)
		}
		if p.Country != "" {
			geo.CountryCode = aws.String(p.Country)
		}
		if p.Subdivision != "" {
			geo.SubdivisionCode = aws.String(p.Subdivision)
		}
		rrs.GeoLocation = geo
	case zone.FailoverPolicy:
		rrs.Failover = types.ResourceRecordSetFailover(strings.ToUpper(p.Role))
	case zone.MultivaluePolicy:
		rrs.MultiValueAnswer = aws.Bool(true)
	default:
		return fmt.Errorf("unsupported routing policy %T", policy)
	}
	return nil
}

func fromRoutingFields(rrs types.ResourceRecordSet) zone.RoutingPolicy {
	switch {
	case rrs.Weight != nil:
		return zone.WeightedPolicy{Weight: *rrs.Weight}
	case rrs.Region != "":
		return zone.LatencyPolicy{Region: string(rrs.Region)}
	case rrs.GeoLocation != nil:
		return zone.GeolocationPolicy{
			Continent:   aws.ToString(rrs.GeoLocation.ContinentCode),
			Country:     aws.ToString(rrs.GeoLocation.CountryCode),
			Subdivision: aws.ToString(rrs.GeoLocation.SubdivisionCode),
		}
	case rrs.Failover != "":
		return zone.FailoverPolicy{Role: string(rrs.Failover)}
	case rrs.MultiValueAnswer != nil && *rrs.MultiValueAnswer:
		return zone.MultivaluePolicy{}
	default:
		return nil
	}
}

// classifyError maps SDK errors onto the engine's sentinel errors.
func classifyError(err error) error {
	var noZone *types.NoSuchHostedZone
	if errors.As(err, &noZone) {
		return fmt.Errorf("%w: %w", provider.ErrZoneNotFound, err)
	}
	var badBatch *types.InvalidChangeBatch
	if errors.As(err, &badBatch) {
		return fmt.Errorf("%w: %w", provider.ErrValidation, err)
	}
	var throttled *types.ThrottlingException
	if errors.As(err, &throttled) {
		return fmt.Errorf("%w: %w", provider.ErrTransient, err)
	}
	return err
}

// trimZoneID strips the "/hostedzone/" prefix the API returns in zone IDs.
func trimZoneID(id string) string {
	return strings.TrimPrefix(id, "/hostedzone/")
}
