package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/gomc/config"
)

func TestParamVectorRoundTrip(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	pv, err := NewParamVector(cfg, []string{"CH4"})
	require.NoError(t, err)
	require.Equal(t, 2, pv.Dim())

	def := pv.DefaultVector()
	assert.Equal(t, []float64{158.5, 3.72}, def)
	assert.InDeltaSlice(t, def, pv.Denormalize(pv.Normalize(def)), 1e-12)
	assert.InDeltaSlice(t, []float64{0.5, 0.5}, pv.Normalize(def), 1e-12)
}

func TestApplyToConfigClamps(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	pv, err := NewParamVector(cfg, []string{"CH4"})
	require.NoError(t, err)

	pv.ApplyToConfig(cfg, []float64{1000, 3.9})
	assert.Equal(t, 1.5*158.5, cfg.PseudoAtoms[0].Epsilon)
	assert.Equal(t, 3.9, cfg.PseudoAtoms[0].Sigma)
}

func TestNewParamVectorRejects(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	_, err = NewParamVector(cfg, []string{"Xe"})
	assert.Error(t, err)
	_, err = NewParamVector(cfg, nil)
	assert.Error(t, err)
}
