// Package tasks defines the messages sent over Kafka.
package tasks

import "oc-search-go/internal/query"

// ExportTask asks a worker to write the results of a query to a CSV file.
type ExportTask struct {
	TaskID     string            `json:"task_id"`
	SearchID   string            `json:"search_id"`
	Lang       string            `json:"lang"`
	CacheKey   string            `json:"cache_key"`
	ObjectName string            `json:"object_name"`
	Descriptor *query.Descriptor `json:"descriptor"`
}
