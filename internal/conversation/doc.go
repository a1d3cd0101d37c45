// Package conversation keeps the local view of the single conversation this
// client renders in lockstep with the document store's snapshot feed, and
// routes outgoing messages through the store's union-append.
package conversation

import "errors"

var errNoConversation = errors.New("no active conversation")
