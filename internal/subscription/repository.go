package subscription

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/identmakers/roots-dashboard/internal/models"
)

// DefaultAccountKey is the Redis hash holding the vendor account.
const DefaultAccountKey = "roles:vendor"

// Repository reads the vendor account from a Redis hash with the fields
// credits, deu (amount due) and isActive.
type Repository struct {
	client *redis.Client
	key    string
}

// NewRepository creates a vendor account repository.
func NewRepository(client *redis.Client, key string) *Repository {
	if key == "" {
		key = DefaultAccountKey
	}
	return &Repository{client: client, key: key}
}

// Get returns the account, or nil when the hash does not exist.
func (r *Repository) Get(ctx context.Context) (*models.VendorAccount, error) {
	fields, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", r.key, err)
	}
	return accountFromFields(fields), nil
}

func accountFromFields(fields map[string]string) *models.VendorAccount {
	if len(fields) == 0 {
		return nil
	}
	acct := &models.VendorAccount{
		Credits: parseAmount(fields["credits"]),
		Due:     parseAmount(fields["deu"]),
	}
	if v, ok := fields["isActive"]; ok {
		if b, err := strconv.ParseBool(v); err == nil {
			acct.IsActive = &b
		}
	}
	return acct
}

// parseAmount reads a numeric field; missing or malformed values count as 0.
func parseAmount(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
