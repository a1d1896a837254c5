package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSendToJailThenInJail(t *testing.T) {
	b := NewBrig(true, time.Hour)
	defer b.Stop()

	assert.False(t, b.IsInJail("1.2.3.4_vuln_seeking"))
	b.SendToJail("1.2.3.4_vuln_seeking", 50*time.Millisecond)
	assert.True(t, b.IsInJail("1.2.3.4_vuln_seeking"))

	time.Sleep(80 * time.Millisecond)
	assert.False(t, b.IsInJail("1.2.3.4_vuln_seeking"))
}

func TestDisabledBrigIsNoOp(t *testing.T) {
	b := NewBrig(false, time.Hour)
	defer b.Stop()

	b.SendToJail("x", time.Hour)
	assert.False(t, b.IsInJail("x"))
	assert.Equal(t, 0, b.Len())
}

func TestSweepEvictsExpiredEntries(t *testing.T) {
	b := NewBrig(true, 20*time.Millisecond)
	defer b.Stop()

	b.SendToJail("stale", 1*time.Millisecond)
	assert.Eventually(t, func() bool {
		return b.Len() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestIsLookingForSuspiciousPaths(t *testing.T) {
	u := NewUnderInvestigation([]string{".php", ".env", "wp-login", "admin.cgi", "/cgi-bin/"})
	assert.True(t, u.IsLookingForSuspiciousPaths("/wp-login.php"))
	assert.True(t, u.IsLookingForSuspiciousPaths("/.ENV"))
	assert.False(t, u.IsLookingForSuspiciousPaths("/index.html"))
}
