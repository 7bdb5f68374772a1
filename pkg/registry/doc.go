// Package registry maps channel topics to the connections subscribed to them.
//
// A Registry is a many-to-many index between members (connections) and
// topics (channel names, including the wildcard "*"). It keeps a reverse
// index per member so that a disconnect can remove a member from every
// topic in one step.
//
// # Consistency
//
// Every mutation takes the registry lock, so Join, Leave and DropAll are
// linearizable: once DropAll returns, no later SubscribersOf call will
// include the member. SubscribersOf returns a snapshot; callers may iterate
// it without holding any lock while other goroutines mutate the registry.
//
// Topics with no members are deleted immediately. Nothing is buffered for
// a topic nobody listens to.
package registry
