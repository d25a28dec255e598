/*
Package handler turns the raw cell broadcast fragments received on one or more radio interfaces into complete,
deduplicated and location validated messages.

Every radio interface (slot) is served by its own Handler, which processes the fragments of its slot
sequentially in a single worker goroutine. The Service bundles the handlers of all slots together with the
state they share: the area info cache, the duplicate detection window and the geo-fencing coordinator.

A fragment is either a normal message page or a geo-fencing trigger. Normal pages are reassembled, checked for
duplicates and then either stored as area info, delivered immediately, or, if they define their own broadcast
area, kept pending until a location fix decides about them. Geo-fencing triggers reference pending messages
that are delivered or suppressed once the current position is known.
*/
package handler
