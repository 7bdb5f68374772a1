package registry

import (
	"errors"
	"sort"
	"sync"
)

// Registry errors.
var (
	ErrEmptyTopic        = errors.New("topic must not be empty")
	ErrResourceExhausted = errors.New("maximum topics per member reached")
)

// Wildcard is the topic that receives every channel's events.
const Wildcard = "*"

// Config holds registry limits.
type Config struct {
	// MaxTopicsPerMember caps the topics one member may join.
	// Zero means unlimited.
	MaxTopicsPerMember int
}

// Registry is a concurrent topic → member set index.
type Registry[M comparable] struct {
	mu      sync.RWMutex
	config  Config
	topics  map[string]map[M]struct{}
	members map[M]map[string]struct{}
}

// New creates an unlimited registry.
func New[M comparable]() *Registry[M] {
	return NewWithConfig[M](Config{})
}

// NewWithConfig creates a registry with limits.
func NewWithConfig[M comparable](config Config) *Registry[M] {
	if config.MaxTopicsPerMember < 0 {
		config.MaxTopicsPerMember = 0
	}
	return &Registry[M]{
		config:  config,
		topics:  make(map[string]map[M]struct{}),
		members: make(map[M]map[string]struct{}),
	}
}

// Join adds m to topic. Joining a topic twice is a no-op.
func (r *Registry[M]) Join(m M, topic string) error {
	if topic == "" {
		return ErrEmptyTopic
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	joined := r.members[m]
	if _, ok := joined[topic]; ok {
		return nil
	}
	if r.config.MaxTopicsPerMember > 0 && len(joined) >= r.config.MaxTopicsPerMember {
		return ErrResourceExhausted
	}

	if joined == nil {
		joined = make(map[string]struct{})
		r.members[m] = joined
	}
	joined[topic] = struct{}{}

	set := r.topics[topic]
	if set == nil {
		set = make(map[M]struct{})
		r.topics[topic] = set
	}
	set[m] = struct{}{}
	return nil
}

// Leave removes m from topic. It reports whether m was a member.
func (r *Registry[M]) Leave(m M, topic string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	joined := r.members[m]
	if _, ok := joined[topic]; !ok {
		return false
	}
	r.remove(m, topic)
	return true
}

// DropAll removes m from every topic and returns the topics it left,
// sorted.
func (r *Registry[M]) DropAll(m M) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	joined := r.members[m]
	if len(joined) == 0 {
		delete(r.members, m)
		return nil
	}

	left := make([]string, 0, len(joined))
	for topic := range joined {
		left = append(left, topic)
	}
	for _, topic := range left {
		r.remove(m, topic)
	}
	sort.Strings(left)
	return left
}

// remove deletes one membership. Caller holds r.mu.
func (r *Registry[M]) remove(m M, topic string) {
	if set := r.topics[topic]; set != nil {
		delete(set, m)
		if len(set) == 0 {
			delete(r.topics, topic)
		}
	}
	if joined := r.members[m]; joined != nil {
		delete(joined, topic)
		if len(joined) == 0 {
			delete(r.members, m)
		}
	}
}

// SubscribersOf returns a snapshot of topic's members in unspecified order.
func (r *Registry[M]) SubscribersOf(topic string) []M {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.topics[topic]
	if len(set) == 0 {
		return nil
	}
	out := make([]M, 0, len(set))
	for m := range set {
		out = append(out, m)
	}
	return out
}

// Topics returns the topics m has joined, sorted.
func (r *Registry[M]) Topics(m M) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	joined := r.members[m]
	if len(joined) == 0 {
		return nil
	}
	out := make([]string, 0, len(joined))
	for topic := range joined {
		out = append(out, topic)
	}
	sort.Strings(out)
	return out
}

// IsMember reports whether m has joined topic.
func (r *Registry[M]) IsMember(m M, topic string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[m][topic]
	return ok
}

// Count returns the number of members of topic.
func (r *Registry[M]) Count(topic string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.topics[topic])
}

// Len returns the number of topics with at least one member.
func (r *Registry[M]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.topics)
}

// AllTopics returns every topic with at least one member, sorted.
func (r *Registry[M]) AllTopics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.topics))
	for topic := range r.topics {
		out = append(out, topic)
	}
	sort.Strings(out)
	return out
}
