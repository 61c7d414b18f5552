package mongo

import (
	"time"

	"github.com/xraph/grove"
)

type usageModel struct {
	grove.BaseModel `grove:"table:tally_usage"`

	DocID     string    `grove:"id,pk"      bson:"_id"`
	Namespace string    `grove:"namespace"  bson:"namespace"`
	Key       string    `grove:"usage_key"  bson:"usage_key"`
	Value     int64     `grove:"value"      bson:"value"`
	UpdatedAt time.Time `grove:"updated_at" bson:"updated_at"`
}

// docID is the _id of the counter document for key in ns.
func docID(ns, key string) string {
	return ns + ":" + key
}

func toUsageModel(ns, key string, value int64, now time.Time) *usageModel {
	return &usageModel{
		DocID:     docID(ns, key),
		Namespace: ns,
		Key:       key,
		Value:     value,
		UpdatedAt: now,
	}
}
