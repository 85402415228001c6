package intake

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sincerelyyyash/a8n-v2/core"
	"github.com/sincerelyyyash/a8n-v2/engine"
)

// statusRank orders execution statuses for monotonicity checks.
var statusRank = map[string]int{
	engine.StatusQueued:     0,
	engine.StatusProcessing: 1,
	engine.StatusCompleted:  2,
	engine.StatusFailed:     2,
}

// MemoryStore is an in-memory WebhookRegistry, WorkflowSource and
// ExecutionRecorder. The standalone intake binary loads it from a YAML
// definitions file; tests populate it directly.
type MemoryStore struct {
	mu          sync.RWMutex
	webhooks    []Webhook
	workflows   map[int]*WorkflowDefinition
	credentials map[int]map[string]engine.Credential
	executions  map[string]*ExecutionRecord
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		workflows:   make(map[int]*WorkflowDefinition),
		credentials: make(map[int]map[string]engine.Credential),
		executions:  make(map[string]*ExecutionRecord),
	}
}

// AddWebhook registers a webhook.
func (s *MemoryStore) AddWebhook(w Webhook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !strings.HasPrefix(w.Path, "/") {
		w.Path = "/" + w.Path
	}
	w.Method = strings.ToUpper(w.Method)
	s.webhooks = append(s.webhooks, w)
}

// AddWorkflow registers a workflow definition.
func (s *MemoryStore) AddWorkflow(w *WorkflowDefinition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflows[w.ID] = w
}

// AddCredential attaches a credential to a user, keyed by platform.
func (s *MemoryStore) AddCredential(userID int, cred engine.Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.credentials[userID] == nil {
		s.credentials[userID] = make(map[string]engine.Credential)
	}
	s.credentials[userID][cred.Platform] = cred
}

// Lookup implements WebhookRegistry.
func (s *MemoryStore) Lookup(ctx context.Context, path, method string) (*Webhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.webhooks {
		w := &s.webhooks[i]
		if w.Path == path && w.Method == strings.ToUpper(method) {
			out := *w
			return &out, nil
		}
	}
	return nil, core.ErrWebhookNotFound
}

// Workflow implements WorkflowSource.
func (s *MemoryStore) Workflow(ctx context.Context, workflowID int) (*WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workflows[workflowID]
	if !ok {
		return nil, core.ErrWorkflowNotFound
	}
	out := *w
	return &out, nil
}

// Credentials implements WorkflowSource.
func (s *MemoryStore) Credentials(ctx context.Context, userID int) (map[string]engine.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]engine.Credential, len(s.credentials[userID]))
	for platform, cred := range s.credentials[userID] {
		out[platform] = cred
	}
	return out, nil
}

// Insert implements ExecutionRecorder.
func (s *MemoryStore) Insert(ctx context.Context, record *ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	stored := *record
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.executions[record.ExecutionID] = &stored
	return nil
}

func isTerminal(status string) bool {
	return status == engine.StatusCompleted || status == engine.StatusFailed
}

// UpdateStatus implements ExecutionRecorder. Transitions are monotonic:
// the record never moves backward, and a terminal status is final (a
// re-reported "processing" from a retry attempt is accepted as a same-rank
// write).
func (s *MemoryStore) UpdateStatus(ctx context.Context, executionID, status string, result, errObj interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.executions[executionID]
	if !ok {
		return core.ErrExecutionNotFound
	}

	newRank, ok := statusRank[status]
	if !ok {
		return fmt.Errorf("unknown status %q", status)
	}
	if newRank < statusRank[record.Status] {
		return fmt.Errorf("status cannot move backward from %s to %s", record.Status, status)
	}
	if isTerminal(record.Status) && status != record.Status {
		return fmt.Errorf("execution already %s, cannot change to %s", record.Status, status)
	}

	record.Status = status
	if result != nil {
		record.Result = result
	}
	if errObj != nil {
		record.Error = errObj
	}
	record.UpdatedAt = time.Now()
	return nil
}

// Get implements ExecutionRecorder.
func (s *MemoryStore) Get(ctx context.Context, executionID string) (*ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.executions[executionID]
	if !ok {
		return nil, core.ErrExecutionNotFound
	}
	out := *record
	return &out, nil
}

// Definitions is the YAML document the intake binary loads its webhook and
// workflow definitions from.
type Definitions struct {
	Webhooks  []Webhook `yaml:"webhooks"`
	Workflows []struct {
		WorkflowDefinition `yaml:",inline"`
		Credentials        []engine.Credential `yaml:"credentials"`
	} `yaml:"workflows"`
}

// LoadDefinitions reads a YAML definitions file into a MemoryStore.
func LoadDefinitions(path string) (*MemoryStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definitions file: %w", err)
	}

	var defs Definitions
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("failed to parse definitions file: %w", core.ErrInvalidConfiguration)
	}

	store := NewMemoryStore()
	for _, w := range defs.Webhooks {
		store.AddWebhook(w)
	}
	for i := range defs.Workflows {
		wf := defs.Workflows[i].WorkflowDefinition
		store.AddWorkflow(&wf)
		for _, cred := range defs.Workflows[i].Credentials {
			store.AddCredential(wf.UserID, cred)
		}
	}

	return store, nil
}

// Compile-time interface compliance checks
var (
	_ WebhookRegistry   = (*MemoryStore)(nil)
	_ WorkflowSource    = (*MemoryStore)(nil)
	_ ExecutionRecorder = (*MemoryStore)(nil)
)
