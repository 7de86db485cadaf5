package tasks

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TypeQuotaReset    = "quota:reset:due"
	TypeLicenseExpire = "license:expire:check"
)

type QuotaResetPayload struct{}

type ExpireLicensePayload struct{}

func NewQuotaResetTask(opts ...asynq.Option) (*asynq.Task, error) {
	return newTask(TypeQuotaReset, QuotaResetPayload{}, 30*time.Minute, opts...)
}

func NewLicenseExpireTask(opts ...asynq.Option) (*asynq.Task, error) {
	return newTask(TypeLicenseExpire, ExpireLicensePayload{}, time.Hour, opts...)
}

// newTask marks the task unique for ttl so overlapping schedules collapse
// into one run.
func newTask(typ string, payload any, ttl time.Duration, opts ...asynq.Option) (*asynq.Task, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	allOpts := append(opts, asynq.Unique(ttl))
	return asynq.NewTask(typ, payloadBytes, allOpts...), nil
}
