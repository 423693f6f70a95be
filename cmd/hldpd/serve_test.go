package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildAnnotatorNone(t *testing.T) {
	a, err := buildAnnotator(context.Background(), "none")
	require.NoError(t, err)
	require.Nil(t, a)

	a, err = buildAnnotator(context.Background(), "")
	require.NoError(t, err)
	require.Nil(t, a)
}

func TestBuildAnnotatorOtel(t *testing.T) {
	a, err := buildAnnotator(context.Background(), "otel")
	require.NoError(t, err)
	require.NotNil(t, a)
	require.True(t, a.IsEnabled())
}

func TestBuildAnnotatorOpenCensus(t *testing.T) {
	a, err := buildAnnotator(context.Background(), "opencensus")
	require.NoError(t, err)
	require.NotNil(t, a)
	require.True(t, a.IsEnabled())
}

func TestBuildAnnotatorUnknown(t *testing.T) {
	_, err := buildAnnotator(context.Background(), "bogus")
	require.Error(t, err)
}
