package history_test

import (
	"errors"
	"testing"

	"github.com/aretw0/gamestate/pkg/domain"
	"github.com/aretw0/gamestate/pkg/history"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicy_None(t *testing.T) {
	p := history.None()
	assert.False(t, p.Records())
	assert.Equal(t, "none", p.Kind().String())

	var nilPolicy *history.Policy
	assert.False(t, nilPolicy.Records())
}

func TestPolicy_DefaultIgnoresUpdates(t *testing.T) {
	p := history.Default(3)
	require.True(t, p.Records())

	data := domain.DataBag{"Game": {"Reels": "AAA"}}
	rec, err := p.StartRecord("Spin", data)
	require.NoError(t, err)
	assert.Equal(t, uint(3), rec.Priority)

	// Later changes to the caller's bag must not leak into the record
	data.Set("Game", "Reels", "BBB")

	before := append([]byte(nil), rec.StartStateData...)
	require.NoError(t, p.ApplyUpdate(rec, domain.DataBag{"Game": {"Reels": "CCC"}}))
	assert.Equal(t, before, rec.StartStateData)
	assert.Nil(t, rec.AsynchronousData)

	flat, err := p.Flatten(rec)
	require.NoError(t, err)
	block, err := history.Decode(flat)
	require.NoError(t, err)
	v, _ := block.Data.Get("Game", "Reels")
	assert.Equal(t, "AAA", v)
}

func TestPolicy_CustomReplacesBlock(t *testing.T) {
	start := func(state string, data domain.DataBag) (*domain.CommonHistoryBlock, error) {
		return &domain.CommonHistoryBlock{StateName: state, BonusExtensionData: []byte("start")}, nil
	}
	update := func(current *domain.CommonHistoryBlock, data domain.DataBag) (*domain.CommonHistoryBlock, error) {
		v, _ := data.Get("Bonus", "Picks")
		next := *current
		next.BonusExtensionData = []byte(v.(string))
		return &next, nil
	}
	p := history.Custom(1, start, update)

	rec, err := p.StartRecord("Bonus", nil)
	require.NoError(t, err)
	require.NoError(t, p.ApplyUpdate(rec, domain.DataBag{"Bonus": {"Picks": "3,1,2"}}))

	block, err := history.Decode(rec.StartStateData)
	require.NoError(t, err)
	assert.Equal(t, "Bonus", block.StateName)
	assert.Equal(t, []byte("3,1,2"), block.BonusExtensionData)
}

func TestPolicy_CustomErrors(t *testing.T) {
	boom := errors.New("boom")
	p := history.Custom(0, func(string, domain.DataBag) (*domain.CommonHistoryBlock, error) {
		return nil, boom
	}, nil)

	_, err := p.StartRecord("X", nil)
	assert.ErrorIs(t, err, boom)

	// nil start falls back to the default block, nil update is a no-op
	p = history.Custom(0, nil, nil)
	rec, err := p.StartRecord("X", domain.DataBag{"A": {"b": "c"}})
	require.NoError(t, err)
	assert.NoError(t, p.ApplyUpdate(rec, domain.DataBag{"A": {"b": "d"}}))
}

func TestPolicy_ServiceList(t *testing.T) {
	calls := 0
	resolver := func(provider, service string) (int, error) {
		calls++
		switch service {
		case "Win":
			return 10, nil
		case "Credits":
			return 11, nil
		}
		return 0, errors.New("unknown service")
	}
	p := history.ServiceList(2, resolver,
		history.Service{Provider: "Meters", Name: "Win"},
		history.Service{Provider: "Meters", Name: "Credits"},
	)

	rec, err := p.StartRecord("Spin", domain.DataBag{"Meters": {"Win": uint64(0), "Credits": uint64(100)}})
	require.NoError(t, err)

	// Services outside the list are not persisted on update
	require.NoError(t, p.ApplyUpdate(rec, domain.DataBag{"Meters": {"Win": uint64(5), "Bet": uint64(1)}}))
	require.NoError(t, p.ApplyUpdate(rec, domain.DataBag{"Meters": {"Win": uint64(7), "Credits": uint64(107)}}))

	assert.Len(t, rec.AsynchronousData["Meters"], 2)
	assert.Equal(t, 2, calls, "identifiers are resolved once and cached")
	assert.Equal(t, 2, p.Resolved())

	flat, err := p.Flatten(rec)
	require.NoError(t, err)
	block, err := history.Decode(flat)
	require.NoError(t, err)
	win, _ := block.Data.Get("Meters", "Win")
	credits, _ := block.Data.Get("Meters", "Credits")
	_, hasBet := block.Data.Get("Meters", "Bet")
	assert.Equal(t, uint64(7), win)
	assert.Equal(t, uint64(107), credits)
	assert.False(t, hasBet)
}

func TestPolicy_ServiceListResolverFailure(t *testing.T) {
	p := history.ServiceList(0, func(string, string) (int, error) { return 0, errors.New("offline") },
		history.Service{Provider: "Meters", Name: "Win"})
	rec, err := p.StartRecord("Spin", nil)
	require.NoError(t, err)

	assert.Error(t, p.ApplyUpdate(rec, domain.DataBag{"Meters": {"Win": uint64(1)}}))

	p = history.ServiceList(0, nil, history.Service{Provider: "Meters", Name: "Win"})
	assert.Error(t, p.ApplyUpdate(rec, domain.DataBag{"Meters": {"Win": uint64(1)}}))
}
