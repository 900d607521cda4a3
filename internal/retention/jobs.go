package retention

import (
	"context"
	"errors"
)

const (
	JobProfileExpiry = "profile-expiry"
	JobHistoryExpiry = "order-history-expiry"
)

type profilePurger interface {
	PurgeIfExpired(ctx context.Context) bool
}

type historyCleaner interface {
	CleanupExpired(ctx context.Context) int
}

// NewProfileExpiryJob purges the customer profile once it is past expiry.
func NewProfileExpiryJob(profiles profilePurger) (Job, error) {
	if profiles == nil {
		return nil, errors.New("profile cache required")
	}
	return &profileExpiryJob{profiles: profiles}, nil
}

type profileExpiryJob struct {
	profiles profilePurger
}

func (j *profileExpiryJob) Name() string { return JobProfileExpiry }

func (j *profileExpiryJob) Run(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if j.profiles.PurgeIfExpired(ctx) {
		return 1, nil
	}
	return 0, nil
}

// NewHistoryExpiryJob drops order history entries past their horizon.
func NewHistoryExpiryJob(orders historyCleaner) (Job, error) {
	if orders == nil {
		return nil, errors.New("order history required")
	}
	return &historyExpiryJob{orders: orders}, nil
}

type historyExpiryJob struct {
	orders historyCleaner
}

func (j *historyExpiryJob) Name() string { return JobHistoryExpiry }

func (j *historyExpiryJob) Run(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return j.orders.CleanupExpired(ctx), nil
}
