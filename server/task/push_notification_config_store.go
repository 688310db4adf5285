// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"slices"
	"sync"

	"github.com/go-a2a/a2a-runtime"
)

// PushNotificationConfigStore persists the push notification configs of
// tasks, keyed by (task ID, config ID).
type PushNotificationConfigStore interface {
	// Set upserts config for taskID. A config without an ID gets a generated
	// one. The stored config is returned.
	Set(ctx context.Context, taskID string, config *a2a.PushNotificationConfig) (*a2a.PushNotificationConfig, error)

	// Get returns one config or an error matching
	// a2a.ErrPushNotificationConfigNotFound.
	Get(ctx context.Context, taskID, configID string) (*a2a.PushNotificationConfig, error)

	// List returns the configs of taskID in creation order.
	List(ctx context.Context, taskID string) ([]*a2a.PushNotificationConfig, error)

	// Delete removes one config or fails with
	// a2a.ErrPushNotificationConfigNotFound.
	Delete(ctx context.Context, taskID, configID string) error

	// DeleteAll removes every config of taskID.
	DeleteAll(ctx context.Context, taskID string) error
}

// InMemoryPushNotificationConfigStore is an in-memory PushNotificationConfigStore.
type InMemoryPushNotificationConfigStore struct {
	mu      sync.RWMutex
	configs map[string][]*a2a.PushNotificationConfig
	ids     a2a.IDGenerator
}

var _ PushNotificationConfigStore = (*InMemoryPushNotificationConfigStore)(nil)

// NewInMemoryPushNotificationConfigStore creates a new in-memory push notification config store.
func NewInMemoryPushNotificationConfigStore() *InMemoryPushNotificationConfigStore {
	return &InMemoryPushNotificationConfigStore{
		configs: make(map[string][]*a2a.PushNotificationConfig),
		ids:     a2a.UUIDGenerator,
	}
}

// Set implements [PushNotificationConfigStore].
func (s *InMemoryPushNotificationConfigStore) Set(ctx context.Context, taskID string, config *a2a.PushNotificationConfig) (*a2a.PushNotificationConfig, error) {
	if err := config.Validate(); err != nil {
		return nil, NewStoreError("set push config", taskID, err)
	}
	stored := config.Clone()
	if stored.ID == "" {
		stored.ID = s.ids.NewID()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.configs[taskID]
	if i := indexConfig(list, stored.ID); i >= 0 {
		list[i] = stored
	} else {
		s.configs[taskID] = append(list, stored)
	}
	return stored.Clone(), nil
}

// Get implements [PushNotificationConfigStore].
func (s *InMemoryPushNotificationConfigStore) Get(ctx context.Context, taskID, configID string) (*a2a.PushNotificationConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.configs[taskID]
	i := indexConfig(list, configID)
	if i < 0 {
		return nil, NewStoreError("get push config", taskID, a2a.ErrPushNotificationConfigNotFound)
	}
	return list[i].Clone(), nil
}

// List implements [PushNotificationConfigStore].
func (s *InMemoryPushNotificationConfigStore) List(ctx context.Context, taskID string) ([]*a2a.PushNotificationConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.configs[taskID]
	out := make([]*a2a.PushNotificationConfig, len(list))
	for i, c := range list {
		out[i] = c.Clone()
	}
	return out, nil
}

// Delete implements [PushNotificationConfigStore].
func (s *InMemoryPushNotificationConfigStore) Delete(ctx context.Context, taskID, configID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.configs[taskID]
	i := indexConfig(list, configID)
	if i < 0 {
		return NewStoreError("delete push config", taskID, a2a.ErrPushNotificationConfigNotFound)
	}
	list = slices.Delete(list, i, i+1)
	if len(list) == 0 {
		delete(s.configs, taskID)
	} else {
		s.configs[taskID] = list
	}
	return nil
}

// DeleteAll implements [PushNotificationConfigStore].
func (s *InMemoryPushNotificationConfigStore) DeleteAll(ctx context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.configs, taskID)
	return nil
}

func indexConfig(list []*a2a.PushNotificationConfig, id string) int {
	return slices.IndexFunc(list, func(c *a2a.PushNotificationConfig) bool { return c.ID == id })
}
