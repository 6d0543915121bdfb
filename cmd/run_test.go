// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loadkit/normalize/internal/config"
	"github.com/loadkit/normalize/internal/logging"
	"github.com/loadkit/normalize/internal/testutils"
	"github.com/loadkit/normalize/pkg/metrics"
	"github.com/loadkit/normalize/pkg/state"
	"github.com/loadkit/normalize/pkg/volume"
)

func TestRunWithNoPendingFilesIsANoop(t *testing.T) {
	normDir, loadDir, schemaDir := testutils.TempVolumes(t)
	cfg := config.Config{
		NormalizeVolumePath: normDir,
		LoadVolumePath:      loadDir,
		SchemaVolumePath:    schemaDir,
		WorkerCount:         1,
		DestinationCapabilities: config.DestinationCapabilities{
			PreferredLoaderFileFormat: "jsonl",
		},
	}

	err := Run(context.Background(), cfg, logging.NewNoopLogger())
	require.NoError(t, err)
}

func TestRunCommitsOnePackagePerSchema(t *testing.T) {
	normDir, loadDir, schemaDir := testutils.TempVolumes(t)
	testutils.WriteExtractedItemsFile(t, normDir, "acme.users.f1.jsonl", []byte(`{"id": 1, "name": "alice"}`+"\n"))
	testutils.WriteExtractedItemsFile(t, normDir, "beta.orders.f1.jsonl", []byte(`{"id": 9, "total": 10.5}`+"\n"))

	cfg := config.Config{
		NormalizeVolumePath: normDir,
		LoadVolumePath:      loadDir,
		SchemaVolumePath:    schemaDir,
		WorkerCount:         1,
		DestinationCapabilities: config.DestinationCapabilities{
			PreferredLoaderFileFormat: "jsonl",
		},
	}

	err := Run(context.Background(), cfg, logging.NewNoopLogger())
	require.NoError(t, err)

	store := state.New(schemaDir, state.WithEngineVersion(Version))

	line, err := statusForSchema(context.Background(), store, "acme")
	require.NoError(t, err)
	assert.Equal(t, "Committed", line.Status)

	line, err = statusForSchema(context.Background(), store, "beta")
	require.NoError(t, err)
	assert.Equal(t, "Committed", line.Status)
}

func TestRunSchemaOnCancelledContextLeavesMetricsUntouched(t *testing.T) {
	normDir, loadDir, schemaDir := testutils.TempVolumes(t)
	testutils.WriteExtractedItemsFile(t, normDir, "acme.users.f1.jsonl", []byte(`{"id": 1, "name": "alice"}`+"\n"))

	cfg := config.Config{
		NormalizeVolumePath: normDir,
		LoadVolumePath:      loadDir,
		SchemaVolumePath:    schemaDir,
		WorkerCount:         1,
		DestinationCapabilities: config.DestinationCapabilities{
			PreferredLoaderFileFormat: "jsonl",
		},
	}

	inVol := volume.NewInputVolume(normDir)
	outVol := volume.NewOutputVolume(loadDir)
	store := state.New(schemaDir, state.WithEngineVersion(Version))
	reg := prometheus.NewRegistry()
	met := metrics.New(reg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := runSchema(ctx, "acme", []string{"acme.users.f1.jsonl"}, cfg, inVol, outVol, store, met, logging.NewNoopLogger())
	require.Error(t, err, "a cancelled context must abort the schema's dispatch before it commits")

	assert.Equal(t, float64(0), counterValue(t, met.ItemCount.WithLabelValues("acme")),
		"normalize_item_count must not advance when the run never committed (§8 Scenario 5)")
	assert.Equal(t, float64(0), gaugeValue(t, met.LastItems.WithLabelValues("acme")),
		"normalize_last_items must not advance when the run never committed (§8 Scenario 5)")
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}
