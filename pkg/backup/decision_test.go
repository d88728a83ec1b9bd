package backup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name   string
		local  string
		remote string
		want   Plan
	}{
		{
			name:  "no remote snapshot seeds with a full send",
			local: "zfs-auto-backup-2024-01-15-1000",
			want:  Plan{Kind: PlanFull, To: "zfs-auto-backup-2024-01-15-1000"},
		},
		{
			name:   "same snapshot on both sides",
			local:  "zfs-auto-backup-2024-01-15-1000",
			remote: "zfs-auto-backup-2024-01-15-1000",
			want:   Plan{Kind: PlanNoOp},
		},
		{
			name:   "remote behind local",
			local:  "zfs-auto-backup-2024-01-16-0900",
			remote: "zfs-auto-backup-2024-01-15-1000",
			want:   Plan{Kind: PlanIncremental, From: "zfs-auto-backup-2024-01-15-1000", To: "zfs-auto-backup-2024-01-16-0900"},
		},
		{
			name:   "local snapshot from another tool",
			local:  "manual",
			remote: "zfs-auto-backup-2024-01-15-1000",
			want:   Plan{Kind: PlanIncremental, From: "zfs-auto-backup-2024-01-15-1000", To: "manual"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decide(tt.local, tt.remote)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecideRejectsRegression(t *testing.T) {
	_, err := Decide("zfs-auto-backup-2024-01-15-1000", "zfs-auto-backup-2024-01-16-0900")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLineageRegression)
}

func TestDecideWithoutLocalSnapshot(t *testing.T) {
	_, err := Decide("", "zfs-auto-backup-2024-01-15-1000")
	assert.ErrorIs(t, err, ErrNoLocalSnapshot)
}

// Every pair taken from one lineage, older first, must yield an incremental
// plan whose base is strictly older than its target.
func TestDecideNeverInvertsLineage(t *testing.T) {
	start := time.Date(2024, 12, 31, 22, 0, 0, 0, time.UTC)
	var lineage []string
	for i := 0; i < 12; i++ {
		lineage = append(lineage, SnapshotName("zfs-auto-backup", start.Add(time.Duration(i)*37*time.Minute)))
	}

	for i := range lineage {
		for j := range lineage {
			plan, err := Decide(lineage[j], lineage[i])
			switch {
			case i == j:
				require.NoError(t, err)
				assert.Equal(t, PlanNoOp, plan.Kind)
			case i < j:
				require.NoError(t, err)
				assert.Equal(t, PlanIncremental, plan.Kind)
				assert.Less(t, plan.From, plan.To)
				assert.Equal(t, lineage[i], plan.From)
				assert.Equal(t, lineage[j], plan.To)
			default:
				assert.ErrorIs(t, err, ErrLineageRegression, "remote %s local %s", lineage[i], lineage[j])
			}
		}
	}
}

func TestPlanString(t *testing.T) {
	assert.Equal(t, "noop", Plan{}.String())
	assert.Equal(t, "full(a)", Plan{Kind: PlanFull, To: "a"}.String())
	assert.Equal(t, "incremental(a..b)", Plan{Kind: PlanIncremental, From: "a", To: "b"}.String())
	assert.Equal(t, "incremental", PlanIncremental.String())
}
