package postgres

import (
	"time"

	"github.com/xraph/grove"
)

type usageModel struct {
	grove.BaseModel `grove:"table:tally_usage"`

	Namespace string    `grove:"namespace,pk"`
	Key       string    `grove:"usage_key,pk"`
	Value     int64     `grove:"value"`
	UpdatedAt time.Time `grove:"updated_at"`
}

func toUsageModel(ns, key string, value int64, now time.Time) *usageModel {
	return &usageModel{
		Namespace: ns,
		Key:       key,
		Value:     value,
		UpdatedAt: now,
	}
}
