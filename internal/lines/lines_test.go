package lines

import (
	"encoding/json"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rotabus/rotabus/internal/backend"
)

func loadPositions(t *testing.T) *backend.PositionsResponse {
	t.Helper()
	raw, err := os.ReadFile("../backend/testdata/positions.json")
	require.NoError(t, err)

	var resp backend.PositionsResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	return &resp
}

func makeVehicles(n int) []Vehicle {
	out := make([]Vehicle, n)
	for i := range out {
		out[i] = Vehicle{Destination: "TERM. A", Origin: "TERM. B", Prefix: fmt.Sprintf("%05d", i)}
	}
	return out
}

func TestFlatten(t *testing.T) {
	vehicles := Flatten(loadPositions(t))

	require.Len(t, vehicles, 3)

	assert.Equal(t, "PCA. RAMOS DE AZEVEDO", vehicles[0].Destination)
	assert.Equal(t, "TERM. LAPA", vehicles[0].Origin)
	assert.Equal(t, "11433", vehicles[0].Prefix)
	assert.Equal(t, "2026-03-01T11:14:05Z", vehicles[0].CapturedAt)
	assert.Equal(t, "8000-10", vehicles[0].LineCode)
	assert.True(t, vehicles[0].Accessible)
	require.NotNil(t, vehicles[0].Lat)
	assert.InDelta(t, -23.540335, *vehicles[0].Lat, 1e-9)

	assert.Equal(t, "11287", vehicles[1].Prefix)

	assert.Equal(t, "METRÔ JABAQUARA", vehicles[2].Destination)
	assert.Equal(t, "72845", vehicles[2].Prefix)
	assert.Nil(t, vehicles[2].Lat)
	assert.Nil(t, vehicles[2].Lng)
}

func TestFlatten_Empty(t *testing.T) {
	assert.Empty(t, Flatten(nil))
	assert.Empty(t, Flatten(&backend.PositionsResponse{}))
}

func TestVehicle_JSONShape(t *testing.T) {
	raw, err := json.Marshal(Vehicle{Destination: "A", Origin: "B", CapturedAt: "t", Prefix: "123"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"lt0":"A","lt1":"B","ta":"t","vehicle":"123"}`, string(raw))
}

func TestFilter(t *testing.T) {
	vehicles := Flatten(loadPositions(t))

	tests := []struct {
		name    string
		query   string
		wantLen int
	}{
		{name: "blank keeps all", query: "", wantLen: 3},
		{name: "space matches multi-word names", query: " ", wantLen: 3},
		{name: "trailing space is significant", query: "lapa ", wantLen: 0},
		{name: "space inside query", query: "term. lapa", wantLen: 2},
		{name: "destination case-insensitive", query: "ramos", wantLen: 2},
		{name: "origin", query: "lapa", wantLen: 2},
		{name: "accented origin", query: "ângela", wantLen: 1},
		{name: "vehicle prefix", query: "728", wantLen: 1},
		{name: "prefix substring", query: "11", wantLen: 2},
		{name: "no match", query: "paulista", wantLen: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, Filter(vehicles, tt.query), tt.wantLen)
		})
	}
}

func TestNormalizePageSize(t *testing.T) {
	assert.Equal(t, 5, NormalizePageSize(5))
	assert.Equal(t, 10, NormalizePageSize(10))
	assert.Equal(t, 20, NormalizePageSize(20))
	assert.Equal(t, DefaultPageSize, NormalizePageSize(0))
	assert.Equal(t, DefaultPageSize, NormalizePageSize(7))
	assert.Equal(t, DefaultPageSize, NormalizePageSize(-5))
}

func TestPaginate(t *testing.T) {
	vehicles := makeVehicles(23)

	tests := []struct {
		name       string
		page, size int
		wantPage   int
		wantItems  int
		wantFirst  string
		wantTotalP int
	}{
		{name: "first page", page: 1, size: 10, wantPage: 1, wantItems: 10, wantFirst: "00000", wantTotalP: 3},
		{name: "last partial page", page: 3, size: 10, wantPage: 3, wantItems: 3, wantFirst: "00020", wantTotalP: 3},
		{name: "page past end clamps", page: 9, size: 10, wantPage: 3, wantItems: 3, wantFirst: "00020", wantTotalP: 3},
		{name: "page zero clamps to first", page: 0, size: 5, wantPage: 1, wantItems: 5, wantFirst: "00000", wantTotalP: 5},
		{name: "size 20", page: 2, size: 20, wantPage: 2, wantItems: 3, wantFirst: "00020", wantTotalP: 2},
		{name: "unknown size uses default", page: 2, size: 7, wantPage: 2, wantItems: 10, wantFirst: "00010", wantTotalP: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Paginate(vehicles, tt.page, tt.size)
			assert.Equal(t, tt.wantPage, p.Page)
			assert.Equal(t, tt.wantTotalP, p.TotalPages)
			assert.Equal(t, 23, p.TotalItems)
			require.Len(t, p.Items, tt.wantItems)
			assert.Equal(t, tt.wantFirst, p.Items[0].Prefix)
		})
	}
}

func TestPaginate_Empty(t *testing.T) {
	p := Paginate(nil, 4, 10)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 1, p.TotalPages)
	assert.Equal(t, 0, p.TotalItems)
	assert.NotNil(t, p.Items)
	assert.Empty(t, p.Items)
}

func TestPaginate_ExactMultiple(t *testing.T) {
	p := Paginate(makeVehicles(20), 2, 10)
	assert.Equal(t, 2, p.TotalPages)
	assert.Len(t, p.Items, 10)
	assert.Equal(t, "00010", p.Items[0].Prefix)
}
