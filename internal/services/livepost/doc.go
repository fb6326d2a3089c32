// Package livepost keeps decision posts (auctions, crowdfunding, multiple-choice
// votes) live for their consumers.
//
// Post payloads are resolved into one of three variants and projected onto a
// shared lifecycle status in domain. The app package owns the reference-counted
// subscription table, the shared push socket, and the dispatcher that folds
// push events into each post's snapshot. The platform API remains the source of
// truth for post state; this service only mirrors it.
package livepost
