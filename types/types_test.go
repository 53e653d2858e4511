package types_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aquasecurity/deprisk/types"
)

func TestNewPackageID(t *testing.T) {
	tests := []struct {
		name      string
		pkgName   string
		version   string
		wantField string
	}{
		{name: "happy path", pkgName: "requests", version: "2.31.0"},
		{name: "empty name", pkgName: "", version: "1.0", wantField: "name"},
		{name: "empty version", pkgName: "urllib3", version: "", wantField: "version"},
		{name: "both empty reports name first", wantField: "name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := types.NewPackageID(tt.pkgName, tt.version)
			if tt.wantField != "" {
				require.Error(t, err)
				assert.True(t, errors.Is(err, types.ErrInvalidIdentifier))

				var idErr *types.IdentifierError
				require.True(t, errors.As(err, &idErr))
				assert.Equal(t, tt.wantField, idErr.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, types.PackageID{Name: tt.pkgName, Version: tt.version}, got)
			assert.Equal(t, tt.pkgName+"@"+tt.version, got.String())
		})
	}
}

func TestSeverity_Rank(t *testing.T) {
	for i, s := range types.Severities {
		assert.Equal(t, i, s.Rank(), s.String())
	}
	assert.Equal(t, 0, types.Severity("").Rank())
	assert.True(t, types.SeverityCritical.AtLeast(types.SeverityHigh))
	assert.False(t, types.SeverityLow.AtLeast(types.SeverityMedium))
}

func TestParseSeverityThreshold(t *testing.T) {
	tests := []struct {
		in      string
		want    types.Severity
		wantErr bool
	}{
		{in: "low", want: types.SeverityLow},
		{in: "MODERATE", want: types.SeverityMedium},
		{in: " High ", want: types.SeverityHigh},
		{in: "critical", want: types.SeverityCritical},
		{in: "none", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := types.ParseSeverityThreshold(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAdjacency_Clone(t *testing.T) {
	adj := types.Adjacency{"a": {"b", "c"}}
	c := adj.Clone()
	c["a"][0] = "x"
	assert.Equal(t, "b", adj["a"][0])
}
