package domain

// HistoryStepRecord is a history step cached during a Committed stage.
// It is flushed (or dropped, when the step is excluded) when the stage ends.
type HistoryStepRecord struct {
	Priority uint

	// StartStateData is the encoded CommonHistoryBlock captured when the state started.
	StartStateData []byte

	// AsynchronousData holds encoded values keyed by provider and numeric service id.
	// It is nil until an asynchronous update reaches the record.
	AsynchronousData map[string]map[int][]byte
}

// SetAsynchronous stores the encoded value of a provider service.
func (r *HistoryStepRecord) SetAsynchronous(provider string, serviceID int, data []byte) {
	if r.AsynchronousData == nil {
		r.AsynchronousData = make(map[string]map[int][]byte)
	}
	services, ok := r.AsynchronousData[provider]
	if !ok {
		services = make(map[int][]byte)
		r.AsynchronousData[provider] = services
	}
	services[serviceID] = data
}

// CommonHistoryBlock is the replayable snapshot of one presentation state.
type CommonHistoryBlock struct {
	StateName          string  `cbor:"1,keyasint"`
	Data               DataBag `cbor:"2,keyasint"`
	BonusExtensionData []byte  `cbor:"3,keyasint"`
}

// HistoryEntry is one element of the HistoryList.
type HistoryEntry struct {
	Step     uint `json:"step"`
	Priority uint `json:"priority"`
}
