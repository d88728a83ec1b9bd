package backup

import (
	"fmt"
	"time"

	"github.com/runningman84/zfs-auto-backup/pkg/models"
	"k8s.io/klog/v2"
)

// CheckPoolHealth logs error counters and scrub age of an acquired backup pool
// and returns ErrUnhealthyPool when it is not ONLINE. A missing status, as in a
// dry run where nothing was imported, only logs a warning.
func CheckPoolHealth(pool string, status *models.PoolStatus, scrubAgeThresholdDays int, now time.Time) error {
	if status == nil {
		klog.Warningf(" No status found for pool %s", pool)
		return nil
	}

	logPoolErrors(pool, status)
	checkScrubAge(pool, status, scrubAgeThresholdDays, now)

	if status.State != "ONLINE" {
		return fmt.Errorf("%w: %s is %s", ErrUnhealthyPool, pool, status.State)
	}
	return nil
}

func logPoolErrors(pool string, status *models.PoolStatus) {
	hasErrors := false
	if status.ReadErrors != "" && status.ReadErrors != "0" {
		klog.Warningf(" Pool %s has %s read error(s)", pool, status.ReadErrors)
		hasErrors = true
	}
	if status.WriteErrors != "" && status.WriteErrors != "0" {
		klog.Warningf(" Pool %s has %s write error(s)", pool, status.WriteErrors)
		hasErrors = true
	}
	if status.ChecksumErrors != "" && status.ChecksumErrors != "0" {
		klog.Warningf(" Pool %s has %s checksum error(s)", pool, status.ChecksumErrors)
		hasErrors = true
	}
	if status.ErrorCount != "" && status.ErrorCount != "0" {
		klog.Warningf(" Pool %s reports %s data error(s)", pool, status.ErrorCount)
		hasErrors = true
	}

	if hasErrors {
		klog.Warningf(" Pool %s has errors - consider running 'zpool scrub %s'", pool, pool)
	}
}

func checkScrubAge(pool string, status *models.PoolStatus, thresholdDays int, now time.Time) {
	if status.ScrubState == "none" || status.LastScrubTime == 0 {
		klog.Warningf(" Pool %s has no scrub information - consider running 'zpool scrub %s'", pool, pool)
		return
	}

	lastScrub := time.Unix(status.LastScrubTime, 0)
	age := now.Sub(lastScrub)
	threshold := time.Duration(thresholdDays) * 24 * time.Hour

	if age > threshold {
		days := int(age.Hours() / 24)
		klog.Warningf(" Pool %s last scrub was %d days ago (last scrub: %s) - consider running 'zpool scrub %s'",
			pool, days, lastScrub.Format("2006-01-02 15:04:05"), pool)
	} else {
		klog.V(1).Infof(" Pool %s last scrub: %s (%s)", pool, lastScrub.Format("2006-01-02 15:04:05"), status.ScrubState)
	}
}
