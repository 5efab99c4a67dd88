package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dgryski/go-metro"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"oc-search-go/internal/config"
	"oc-search-go/internal/engine"
	"oc-search-go/internal/metrics"
	"oc-search-go/internal/query"
	"oc-search-go/pkg/kafka"
	"oc-search-go/pkg/log"
	"oc-search-go/pkg/storage"
	"oc-search-go/pkg/tasks"
)

// Export task states.
const (
	TaskPending = "PENDING"
	TaskStarted = "STARTED"
	TaskSuccess = "SUCCESS"
	TaskFailure = "FAILURE"
)

const csvBOM = "\ufeff"

// ErrTaskNotFound is returned for unknown or expired export task ids.
var ErrTaskNotFound = errors.New("export task not found")

// ExportStatus is the pollable state of one export.
type ExportStatus struct {
	TaskID  string `json:"task_id"`
	Status  string `json:"task_status"`
	FileURL string `json:"file_url,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Done reports whether the file is ready.
func (s *ExportStatus) Done() bool { return s.Status == TaskSuccess }

// KeyValueStore holds export locks and task states.
type KeyValueStore interface {
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Get returns false when the key does not exist.
	Get(ctx context.Context, key string) (string, bool, error)
	Del(ctx context.Context, key string) error
}

// TaskQueue hands export tasks to the worker.
type TaskQueue interface {
	Enqueue(ctx context.Context, task tasks.ExportTask) error
}

// ExportService queues CSV exports of search results and produces them.
type ExportService interface {
	Request(ctx context.Context, req SearchRequest) (*ExportStatus, error)
	Status(ctx context.Context, taskID string) (*ExportStatus, error)
	// Process generates the file of one task. It satisfies kafka.TaskProcessor.
	Process(ctx context.Context, task tasks.ExportTask) error
}

type exportService struct {
	schemas  SchemaProvider
	hooks    HookProvider
	searcher Searcher
	store    storage.Store
	kv       KeyValueStore
	queue    TaskQueue
	cfg      config.ExportConfig
	now      func() time.Time
}

// NewExportService creates a new ExportService.
func NewExportService(schemas SchemaProvider, hooks HookProvider, searcher Searcher, store storage.Store, kv KeyValueStore, queue TaskQueue, cfg config.ExportConfig) ExportService {
	if cfg.FreshnessSeconds <= 0 {
		cfg.FreshnessSeconds = 600
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = 10000
	}
	if cfg.URLExpiryMinutes <= 0 {
		cfg.URLExpiryMinutes = 60
	}
	return &exportService{
		schemas:  schemas,
		hooks:    hooks,
		searcher: searcher,
		store:    store,
		kv:       kv,
		queue:    queue,
		cfg:      cfg,
		now:      time.Now,
	}
}

func (s *exportService) freshness() time.Duration {
	return time.Duration(s.cfg.FreshnessSeconds) * time.Second
}

func (s *exportService) urlExpiry() time.Duration {
	return time.Duration(s.cfg.URLExpiryMinutes) * time.Minute
}

func (s *exportService) Request(ctx context.Context, req SearchRequest) (*ExportStatus, error) {
	sch, err := resolveEnabled(ctx, s.schemas, req.Lang, req.Name)
	if err != nil {
		return nil, err
	}
	d, err := query.Build(query.Request{Params: req.Params, Lang: req.Lang}, sch, nil, query.Options{
		Mode:        query.ModeExport,
		Rows:        s.cfg.MaxRows,
		DefaultSort: query.DefaultSort(sch, req.Lang, false),
	})
	if err != nil {
		return nil, err
	}
	s.hooks.For(sch.ID()).PreExport(sch, req.Lang, d)

	key := CacheKey(sch.ID(), req.Lang, req.Params)
	object := s.objectName(key, req.Lang)

	modified, exists, err := s.store.Modified(ctx, object)
	if err != nil {
		return nil, err
	}
	if exists && s.now().Sub(modified) < s.freshness() {
		link, err := s.store.PresignedURL(ctx, object, downloadName(sch.ID(), req.Lang), s.urlExpiry())
		if err != nil {
			return nil, err
		}
		metrics.ExportTasksTotal.WithLabelValues("cached").Inc()
		log.Infof("[ExportService] serving cached export %s", object)
		return &ExportStatus{TaskID: key, Status: TaskSuccess, FileURL: link}, nil
	}

	taskID := uuid.NewString()
	holder, err := s.acquire(ctx, key, taskID)
	if err != nil {
		return nil, err
	}
	if holder != "" {
		log.Infof("[ExportService] export %s already queued as task %s", key, holder)
		return s.Status(ctx, holder)
	}

	pending := &ExportStatus{TaskID: taskID, Status: TaskPending}
	if err := s.saveStatus(ctx, pending); err != nil {
		_ = s.kv.Del(ctx, lockKey(key))
		return nil, err
	}
	task := tasks.ExportTask{
		TaskID:     taskID,
		SearchID:   sch.ID(),
		Lang:       req.Lang,
		CacheKey:   key,
		ObjectName: object,
		Descriptor: d,
	}
	if err := s.queue.Enqueue(ctx, task); err != nil {
		_ = s.kv.Del(ctx, lockKey(key))
		_ = s.kv.Del(ctx, taskKey(taskID))
		return nil, fmt.Errorf("queue export task: %w", err)
	}
	metrics.ExportTasksTotal.WithLabelValues("queued").Inc()
	log.Infof("[ExportService] export task %s queued for %s (%s)", taskID, sch.ID(), req.Lang)
	return pending, nil
}

// acquire takes the export lock of key for taskID. When another request holds
// it, the id of that request's task is returned instead.
func (s *exportService) acquire(ctx context.Context, key, taskID string) (string, error) {
	for attempt := 0; attempt < 2; attempt++ {
		acquired, err := s.kv.SetNX(ctx, lockKey(key), taskID, s.freshness())
		if err != nil {
			return "", fmt.Errorf("acquire export lock: %w", err)
		}
		if acquired {
			return "", nil
		}
		holder, ok, err := s.kv.Get(ctx, lockKey(key))
		if err != nil {
			return "", err
		}
		if ok {
			return holder, nil
		}
		// the lock expired between the two calls
	}
	return "", fmt.Errorf("acquire export lock for %s: lock keeps changing hands", key)
}

func (s *exportService) Status(ctx context.Context, taskID string) (*ExportStatus, error) {
	raw, ok, err := s.kv.Get(ctx, taskKey(taskID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	var st ExportStatus
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return nil, fmt.Errorf("decode task %s: %w", taskID, err)
	}
	return &st, nil
}

func (s *exportService) Process(ctx context.Context, task tasks.ExportTask) error {
	if task.Descriptor == nil {
		return fmt.Errorf("export task %s has no query", task.TaskID)
	}
	if err := s.saveStatus(ctx, &ExportStatus{TaskID: task.TaskID, Status: TaskStarted}); err != nil {
		return err
	}

	link, err := s.generate(ctx, task)
	if err != nil {
		metrics.ExportTasksTotal.WithLabelValues("failed").Inc()
		log.Errorf("[ExportService] export task %s failed: %v", task.TaskID, err)
		_ = s.kv.Del(ctx, lockKey(task.CacheKey))
		if serr := s.saveStatus(ctx, &ExportStatus{TaskID: task.TaskID, Status: TaskFailure, Error: err.Error()}); serr != nil {
			log.Error("[ExportService] cannot record task failure", serr)
		}
		return err
	}

	metrics.ExportTasksTotal.WithLabelValues("generated").Inc()
	return s.saveStatus(ctx, &ExportStatus{TaskID: task.TaskID, Status: TaskSuccess, FileURL: link})
}

func (s *exportService) generate(ctx context.Context, task tasks.ExportTask) (string, error) {
	resp, err := s.searcher.Search(ctx, task.Descriptor)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, task.Descriptor.FieldList, resp.Docs); err != nil {
		return "", err
	}
	size := int64(buf.Len())
	if err := s.store.Put(ctx, task.ObjectName, &buf, size, "text/csv; charset=utf-8"); err != nil {
		return "", err
	}
	log.Infof("[ExportService] wrote %d records to %s", len(resp.Docs), task.ObjectName)
	return s.store.PresignedURL(ctx, task.ObjectName, downloadName(task.SearchID, task.Lang), s.urlExpiry())
}

func (s *exportService) saveStatus(ctx context.Context, st *ExportStatus) error {
	b, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, taskKey(st.TaskID), string(b), s.urlExpiry())
}

func (s *exportService) objectName(key, lang string) string {
	name := fmt.Sprintf("%s_%s.csv", key, lang)
	if s.cfg.ObjectPrefix == "" {
		return name
	}
	return strings.TrimSuffix(s.cfg.ObjectPrefix, "/") + "/" + name
}

func lockKey(cacheKey string) string { return "export:lock:" + cacheKey }

func taskKey(taskID string) string { return "export:task:" + taskID }

func downloadName(searchID, lang string) string {
	return fmt.Sprintf("%s_%s.csv", searchID, lang)
}

// exportIgnoredParams do not change the exported rows.
var exportIgnoredParams = map[string]bool{"page": true, "encoding": true, "search_format": true, "_": true}

// CacheKey identifies the result set of an export request. Parameter order
// and paging do not change the key.
func CacheKey(searchID, lang string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if !exportIgnoredParams[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(searchID)
	b.WriteByte('|')
	b.WriteString(lang)
	for _, k := range keys {
		values := append([]string(nil), params[k]...)
		sort.Strings(values)
		for _, v := range values {
			b.WriteByte('|')
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return fmt.Sprintf("%016x", metro.Hash64Str(b.String(), 0))
}

// WriteCSV writes docs as CSV. The header row starts with a byte-order mark
// and is not quoted; every body value is quoted. Multivalue fields are joined
// with ", ".
func WriteCSV(w io.Writer, fields []string, docs []engine.Document) error {
	var b strings.Builder
	b.WriteString(csvBOM)
	b.WriteString(strings.Join(fields, ","))
	b.WriteString("\r\n")
	if _, err := io.WriteString(w, b.String()); err != nil {
		return err
	}
	for _, doc := range docs {
		b.Reset()
		for i, f := range fields {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteByte('"')
			b.WriteString(strings.ReplaceAll(csvValue(doc[f]), `"`, `""`))
			b.WriteByte('"')
		}
		b.WriteString("\r\n")
		if _, err := io.WriteString(w, b.String()); err != nil {
			return err
		}
	}
	return nil
}

func csvValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	case []string:
		return strings.Join(t, ", ")
	case []interface{}:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = csvValue(e)
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(t)
	}
}

type redisStore struct {
	rdb *redis.Client
}

// NewRedisStore adapts a go-redis client to KeyValueStore.
func NewRedisStore(rdb *redis.Client) KeyValueStore {
	return &redisStore{rdb: rdb}
}

func (r *redisStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return r.rdb.SetNX(ctx, key, value, ttl).Result()
}

func (r *redisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.rdb.Set(ctx, key, value, ttl).Err()
}

func (r *redisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *redisStore) Del(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, key).Err()
}

type kafkaQueue struct{}

// NewKafkaQueue sends tasks through the process-wide Kafka producer.
func NewKafkaQueue() TaskQueue {
	return kafkaQueue{}
}

func (kafkaQueue) Enqueue(ctx context.Context, task tasks.ExportTask) error {
	return kafka.ProduceExportTask(ctx, task)
}
