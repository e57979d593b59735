package route53

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/route53domains"
	domaintypes "github.com/aws/aws-sdk-go-v2/service/route53domains/types"
)

type fakeDomainsAPI struct {
	nameservers []string
	detailErr   error

	updated     []string
	updateCalls int
}

func (f *fakeDomainsAPI) GetDomainDetail(ctx context.Context, params *route53domains.GetDomainDetailInput, optFns ...func(*route53domains.Options)) (*route53domains.GetDomainDetailOutput, error) {
	if f.detailErr != nil {
		return nil, f.detailErr
	}
	out := &route53domains.GetDomainDetailOutput{}
	for _, ns := range f.nameservers {
		out.Nameservers = append(out.Nameservers, domaintypes.Nameserver{Name: aws.String(ns)})
	}
	return out, nil
}

func (f *fakeDomainsAPI) UpdateDomainNameservers(ctx context.Context, params *route53domains.UpdateDomainNameserversInput, optFns ...func(*route53domains.Options)) (*route53domains.UpdateDomainNameserversOutput, error) {
	f.updateCalls++
	f.updated = nil
	for _, ns := range params.Nameservers {
		f.updated = append(f.updated, aws.ToString(ns.Name))
	}
	return &route53domains.UpdateDomainNameserversOutput{}, nil
}

var _ DomainsAPI = (*fakeDomainsAPI)(nil)

func TestRegistrar_GetNameservers(t *testing.T) {
	api := &fakeDomainsAPI{nameservers: []string{"ns1.awsdns.test", "ns2.awsdns.test"}}
	r := NewRegistrar(api, nil)

	got, err := r.GetNameservers(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0] != "ns1.awsdns.test" {
		t.Errorf("unexpected nameservers: %v", got)
	}
}

func TestRegistrar_GetNameservers_Error(t *testing.T) {
	sentinel := errors.New("domain not registered here")
	r := NewRegistrar(&fakeDomainsAPI{detailErr: sentinel}, nil)

	_, err := r.GetNameservers(context.Background(), "example.com")
	if !errors.Is(err, sentinel) {
		t.Errorf("expected wrapped API error, got: %v", err)
	}
}

func TestRegistrar_UpdateNameservers(t *testing.T) {
	api := &fakeDomainsAPI{}
	r := NewRegistrar(api, nil)

	want := []string{"ns1.awsdns.test", "ns2.awsdns.test"}
	if err := r.UpdateNameservers(context.Background(), "example.com", want); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if api.updateCalls != 1 {
		t.Fatalf("expected 1 update call, got %d", api.updateCalls)
	}
	if len(api.updated) != 2 || api.updated[1] != "ns2.awsdns.test" {
		t.Errorf("unexpected nameservers pushed: %v", api.updated)
	}
}
