// Package event provides the synchronous pub-sub bus the pipeline uses to
// announce state transitions to observers (metrics, status, logs) without
// depending on them.
//
// Event types follow a "category.action" convention: run.started,
// run.state_changed, stage.completed, resource.sampled and so on.
// Subscribers may register for one type, for a whole category with a
// "category.*" pattern, or for everything with SubscribeAll.
package event
