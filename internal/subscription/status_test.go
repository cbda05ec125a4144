package subscription

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/identmakers/roots-dashboard/internal/models"
)

func boolPtr(b bool) *bool { return &b }

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name string
		acct *models.VendorAccount
		tier string
		stat string
		lvl  Level
	}{
		{"missing account", nil, "", StatusUnknown, LevelMuted},
		{"due wins over credits", &models.VendorAccount{Credits: 500, Due: 200}, TierPaymentDue, StatusPaymentPending, LevelError},
		{"credits active", &models.VendorAccount{Credits: 500}, TierPremium, StatusServiceActive, LevelOK},
		{"free active", &models.VendorAccount{}, TierFree, StatusServiceActive, LevelWarning},
		{"explicit active", &models.VendorAccount{Credits: 1, IsActive: boolPtr(true)}, TierPremium, StatusServiceActive, LevelOK},
		{"suspended with due", &models.VendorAccount{Due: 300, IsActive: boolPtr(false)}, TierServiceSuspended, StatusServiceSuspended, LevelMuted},
		{"suspended without due", &models.VendorAccount{Credits: 100, IsActive: boolPtr(false)}, TierExpired, StatusServiceSuspended, LevelMuted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := Evaluate(tt.acct)
			assert.Equal(t, tt.tier, st.Tier)
			assert.Equal(t, tt.stat, st.Status)
			assert.Equal(t, tt.lvl, st.Level)
		})
	}
}

func TestEvaluateBalances(t *testing.T) {
	assert.Equal(t, "₹200", Evaluate(&models.VendorAccount{Due: 200}).Balance)
	assert.Equal(t, "₹500", Evaluate(&models.VendorAccount{Credits: 500}).Balance)
	assert.Equal(t, "Activate Subscription", Evaluate(&models.VendorAccount{}).Balance)

	st := Evaluate(&models.VendorAccount{Due: 250, IsActive: boolPtr(false)})
	assert.True(t, st.Due)
	assert.False(t, st.Active)
	assert.Equal(t, "₹250", st.Balance)
}

func TestEvaluateNegativeDueKeepsTierStatus(t *testing.T) {
	st := Evaluate(&models.VendorAccount{Credits: 100, Due: -50})
	assert.Equal(t, TierPremium, st.Tier)
	assert.Equal(t, StatusCreditsAvailable, st.Status)
	assert.True(t, st.Active)

	st = Evaluate(&models.VendorAccount{Due: -50})
	assert.Equal(t, TierFree, st.Tier)
	assert.Equal(t, StatusSubscriptionRequired, st.Status)
}

func TestAccountFromFields(t *testing.T) {
	assert.Nil(t, accountFromFields(nil))

	acct := accountFromFields(map[string]string{"credits": "1200.5", "deu": "oops", "isActive": "false"})
	assert.Equal(t, 1200.5, acct.Credits)
	assert.Zero(t, acct.Due)
	if assert.NotNil(t, acct.IsActive) {
		assert.False(t, *acct.IsActive)
	}

	acct = accountFromFields(map[string]string{"credits": "10", "isActive": "maybe"})
	assert.Nil(t, acct.IsActive)
}
