// Package services implements the inbound message intake pipeline: tenant and
// identity resolution, conversation continuity, routing, ticket
// materialization, and admin notification fanout.
package services

import "errors"

// ErrTenantNotFound is returned when no building matches the inbound
// destination address. Processing terminates silently: without a building
// there is no language or reply-from address to answer with.
var ErrTenantNotFound = errors.New("no building matches destination address")

// ErrUnknownSender is returned when the source address does not match any
// resident of the resolved building. The caller sends exactly one fixed
// "not recognized" reply and stops.
var ErrUnknownSender = errors.New("sender is not a registered resident")

// ErrDuplicateMessage is returned when the provider redelivers a webhook whose
// external message id was already recorded for the conversation. The pipeline
// acknowledges and performs no further side effects.
var ErrDuplicateMessage = errors.New("message already processed")
