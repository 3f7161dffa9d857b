package domain

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Well-known providers and services stamped into replayed payloads.
const (
	ProviderHistory = "History"

	ServiceStepIndex    = "StepIndex"
	ServiceTotalSteps   = "TotalSteps"
	ServiceHistoryMode  = "HistoryMode"
	ServiceRecoveryMode = "RecoveryMode"

	// ServiceDisplaySuspend may appear under any provider; history replay forces it to DisplayNormal.
	ServiceDisplaySuspend = "DisplaySuspend"
	DisplayNormal         = "Normal"
)

// DataBag holds negotiated values keyed by provider and then by service name.
type DataBag map[string]map[string]any

// Set stores a value, creating the provider map when needed.
func (b DataBag) Set(provider, service string, value any) {
	services, ok := b[provider]
	if !ok {
		services = make(map[string]any)
		b[provider] = services
	}
	services[service] = value
}

// Get returns a value and whether it exists.
func (b DataBag) Get(provider, service string) (any, bool) {
	services, ok := b[provider]
	if !ok {
		return nil, false
	}
	v, ok := services[service]
	return v, ok
}

// Clone returns a copy whose provider maps are independent of b.
func (b DataBag) Clone() DataBag {
	if b == nil {
		return nil
	}
	c := make(DataBag, len(b))
	for provider, services := range b {
		m := make(map[string]any, len(services))
		for k, v := range services {
			m[k] = v
		}
		c[provider] = m
	}
	return c
}

// Merge copies every value of other into b, overwriting existing services.
func (b DataBag) Merge(other DataBag) {
	for provider, services := range other {
		for k, v := range services {
			b.Set(provider, k, v)
		}
	}
}

// Len returns the number of services across all providers.
func (b DataBag) Len() int {
	n := 0
	for _, services := range b {
		n += len(services)
	}
	return n
}

// DecodeProvider decodes the services of one provider into out (a pointer to a struct or map).
// Struct fields are matched by their `mapstructure` tag or, case-insensitively, by name.
func (b DataBag) DecodeProvider(provider string, out any) error {
	services, ok := b[provider]
	if !ok {
		return fmt.Errorf("provider %q: %w", provider, ErrNotFound)
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(services); err != nil {
		return fmt.Errorf("failed to decode provider %q: %w", provider, err)
	}
	return nil
}
