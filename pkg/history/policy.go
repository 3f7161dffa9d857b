package history

import (
	"fmt"

	"github.com/aretw0/gamestate/pkg/domain"
)

// Kind is the recording behavior of a Policy.
type Kind int

const (
	// KindNone records nothing.
	KindNone Kind = iota
	// KindDefault records the full data bag on start and nothing on update.
	KindDefault
	// KindCustom uses caller-provided serializers.
	KindCustom
	// KindServiceList records the data bag on start and a fixed set of services on update.
	KindServiceList
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindDefault:
		return "default"
	case KindCustom:
		return "custom"
	case KindServiceList:
		return "service_list"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// StartSerializer builds the block recorded when a presentation state starts.
type StartSerializer func(state string, data domain.DataBag) (*domain.CommonHistoryBlock, error)

// UpdateSerializer returns the block that replaces the recorded one after an asynchronous update.
type UpdateSerializer func(current *domain.CommonHistoryBlock, data domain.DataBag) (*domain.CommonHistoryBlock, error)

// ServiceResolver maps a provider service to the numeric identifier used in history records.
type ServiceResolver func(provider, service string) (int, error)

// Service names one provider service.
type Service struct {
	Provider string
	Name     string
}

// Policy decides what a state writes to history.
// A Policy is used from the executor goroutine only.
type Policy struct {
	kind     Kind
	priority uint
	start    StartSerializer
	update   UpdateSerializer

	resolver ServiceResolver
	services []Service
	ids      map[Service]int
	names    map[string]map[int]string
}

// None records no history.
func None() *Policy {
	return &Policy{kind: KindNone}
}

// Default records the full data bag when the state starts.
func Default(priority uint) *Policy {
	return &Policy{kind: KindDefault, priority: priority}
}

// Custom records with the given serializers. A nil start falls back to the default block,
// a nil update ignores asynchronous updates.
func Custom(priority uint, start StartSerializer, update UpdateSerializer) *Policy {
	return &Policy{kind: KindCustom, priority: priority, start: start, update: update}
}

// ServiceList records the data bag on start and, on asynchronous update, only the listed
// services. Identifiers are resolved on first use and cached.
func ServiceList(priority uint, resolver ServiceResolver, services ...Service) *Policy {
	return &Policy{
		kind:     KindServiceList,
		priority: priority,
		resolver: resolver,
		services: services,
		ids:      make(map[Service]int),
		names:    make(map[string]map[int]string),
	}
}

// Kind returns the recording behavior.
func (p *Policy) Kind() Kind { return p.kind }

// Priority returns the priority stored with each recorded step.
func (p *Policy) Priority() uint { return p.priority }

// Records reports whether the policy writes history at all.
func (p *Policy) Records() bool { return p != nil && p.kind != KindNone }

// StartRecord builds the cached record for a state start.
func (p *Policy) StartRecord(state string, data domain.DataBag) (*domain.HistoryStepRecord, error) {
	var block *domain.CommonHistoryBlock
	if p.kind == KindCustom && p.start != nil {
		var err error
		block, err = p.start(state, data)
		if err != nil {
			return nil, fmt.Errorf("custom start serializer for %q: %w", state, err)
		}
	} else {
		normalized, err := Normalize(data)
		if err != nil {
			return nil, err
		}
		block = &domain.CommonHistoryBlock{StateName: state, Data: normalized}
	}

	encoded, err := Encode(block)
	if err != nil {
		return nil, err
	}
	return &domain.HistoryStepRecord{Priority: p.priority, StartStateData: encoded}, nil
}

// ApplyUpdate folds an asynchronous update into a cached record.
func (p *Policy) ApplyUpdate(rec *domain.HistoryStepRecord, data domain.DataBag) error {
	switch p.kind {
	case KindCustom:
		if p.update == nil {
			return nil
		}
		current, err := Decode(rec.StartStateData)
		if err != nil {
			return err
		}
		next, err := p.update(current, data)
		if err != nil {
			return fmt.Errorf("custom update serializer for %q: %w", current.StateName, err)
		}
		encoded, err := Encode(next)
		if err != nil {
			return err
		}
		rec.StartStateData = encoded
		return nil

	case KindServiceList:
		for _, svc := range p.services {
			v, ok := data.Get(svc.Provider, svc.Name)
			if !ok {
				continue
			}
			id, err := p.resolve(svc)
			if err != nil {
				return err
			}
			encoded, err := EncodeValue(v)
			if err != nil {
				return fmt.Errorf("failed to encode %s/%s: %w", svc.Provider, svc.Name, err)
			}
			rec.SetAsynchronous(svc.Provider, id, encoded)
		}
		return nil

	default:
		return nil
	}
}

func (p *Policy) resolve(svc Service) (int, error) {
	if id, ok := p.ids[svc]; ok {
		return id, nil
	}
	if p.resolver == nil {
		return 0, fmt.Errorf("no service resolver for %s/%s", svc.Provider, svc.Name)
	}
	id, err := p.resolver(svc.Provider, svc.Name)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve %s/%s: %w", svc.Provider, svc.Name, err)
	}
	p.ids[svc] = id
	if p.names[svc.Provider] == nil {
		p.names[svc.Provider] = make(map[int]string)
	}
	p.names[svc.Provider][id] = svc.Name
	return id, nil
}

// Resolved returns the number of cached service identifiers.
func (p *Policy) Resolved() int { return len(p.ids) }

// Flatten merges a record's asynchronous data into its start block and returns the final encoding.
func (p *Policy) Flatten(rec *domain.HistoryStepRecord) ([]byte, error) {
	if len(rec.AsynchronousData) == 0 {
		return rec.StartStateData, nil
	}
	block, err := Decode(rec.StartStateData)
	if err != nil {
		return nil, err
	}
	if block.Data == nil {
		block.Data = domain.DataBag{}
	}
	for provider, services := range rec.AsynchronousData {
		for id, encoded := range services {
			name, ok := p.names[provider][id]
			if !ok {
				return nil, fmt.Errorf("unknown service id %d for provider %q", id, provider)
			}
			v, err := DecodeValue(encoded)
			if err != nil {
				return nil, fmt.Errorf("failed to decode %s/%s: %w", provider, name, err)
			}
			block.Data.Set(provider, name, v)
		}
	}
	return Encode(block)
}
