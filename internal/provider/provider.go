// Package provider defines the ad provider capability consumed by the
// lifecycle manager. The vendor SDK (or any ad network) sits behind these
// interfaces; the manager never inspects the concrete implementation.
package provider

import (
	"errors"

	"github.com/patrickwarner/adshell/internal/models"
)

// EventType names an ad instance lifecycle event.
type EventType string

const (
	EventLoaded       EventType = "loaded"
	EventOpened       EventType = "opened"
	EventClosed       EventType = "closed"
	EventError        EventType = "error"
	EventEarnedReward EventType = "earned_reward"
)

// Event is delivered to listeners. Err is set for EventError and Reward for
// EventEarnedReward.
type Event struct {
	Type   EventType
	Err    error
	Reward *models.Reward
}

// Handler receives instance events. Handlers may be invoked from any
// goroutine.
type Handler func(Event)

// Instance is a single loadable, showable ad.
type Instance interface {
	// ID uniquely identifies the instance for logging.
	ID() string
	// Unit returns the ad unit this instance was created for.
	Unit() models.AdUnit
	// Load starts fetching the ad. Completion is reported via EventLoaded or
	// EventError.
	Load() error
	// Show presents a loaded ad. Progress is reported via EventOpened,
	// EventEarnedReward, EventClosed or EventError.
	Show() error
	// AddEventListener subscribes h to events of type t. The returned
	// function removes the subscription and is safe to call more than once.
	AddEventListener(t EventType, h Handler) (unsubscribe func())
}

// Provider creates ad instances.
type Provider interface {
	CreateForAdRequest(unit models.AdUnit) (Instance, error)
}

// ErrNotLoaded is returned by Show when the instance has no ad ready.
var ErrNotLoaded = errors.New("ad not loaded")
