// Package watcher watches a directory tree with fsnotify and reports
// add, change and unlink notifications for the entries below it.
//
// Events are debounced per path: a burst of writes is delivered once, and a
// create followed by writes is still reported as an add. Callbacks run on
// timer goroutines, so notifications for different paths may be delivered
// concurrently.
package watcher
