// Package inbound routes incoming MQTT messages on the device's config and
// commands topics to caller-registered listeners, running each listener on
// its own executor so the supervisor goroutine never blocks on user code.
package inbound

import (
	"strings"
	"sync"

	"github.com/nimbusiot/deviceclient/core/executor"
)

// ConfigListener receives the raw payload of a config-topic message.
type ConfigListener func(payload []byte)

// CommandListener receives a command payload together with the sub-folder
// it arrived on ("" when the message was published directly to the
// commands prefix, without a trailing sub-folder).
type CommandListener func(subfolder string, payload []byte)

// Router dispatches messages received on the device's config topic and
// commands-prefix subtree to registered listeners.
type Router struct {
	configTopic    string
	commandsPrefix string

	mu              sync.RWMutex
	configListener  ConfigListener
	configExecutor  executor.Executor
	commandListener CommandListener
	commandExecutor executor.Executor
}

// NewRouter constructs a Router for the given config topic and commands
// prefix (both as returned by identity.Identity).
func NewRouter(configTopic, commandsPrefix string) *Router {
	return &Router{configTopic: configTopic, commandsPrefix: commandsPrefix}
}

// SetConfigListener registers l to run on exec whenever a message arrives
// on the config topic. A nil exec defaults to executor.Inline{}.
func (r *Router) SetConfigListener(l ConfigListener, exec executor.Executor) {
	if exec == nil {
		exec = executor.Inline{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configListener = l
	r.configExecutor = exec
}

// SetCommandListener registers l to run on exec whenever a message arrives
// on the commands prefix or one of its sub-folders. A nil exec defaults to
// executor.Inline{}.
func (r *Router) SetCommandListener(l CommandListener, exec executor.Executor) {
	if exec == nil {
		exec = executor.Inline{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commandListener = l
	r.commandExecutor = exec
}

// HasConfigListener reports whether a config listener is currently
// registered, so the supervisor knows whether to subscribe to the config
// topic on connect.
func (r *Router) HasConfigListener() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.configListener != nil
}

// HasCommandListener reports whether a command listener is currently
// registered, so the supervisor knows whether to subscribe to the commands
// prefix on connect.
func (r *Router) HasCommandListener() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.commandListener != nil
}

// Route dispatches an incoming message to the listener matching topic. A
// message on the config topic goes to the config listener. A message on
// the commands prefix, or a sub-folder beneath it, goes to the command
// listener with the sub-folder name stripped of its leading slash ("" for
// an exact match on the prefix itself). Messages matching neither are
// silently dropped.
func (r *Router) Route(topic string, payload []byte) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if topic == r.configTopic {
		if r.configListener != nil {
			l, exec := r.configListener, r.configExecutor
			exec.Execute(func() { l(payload) })
		}
		return
	}

	if subfolder, ok := matchCommands(r.commandsPrefix, topic); ok {
		if r.commandListener != nil {
			l, exec := r.commandListener, r.commandExecutor
			exec.Execute(func() { l(subfolder, payload) })
		}
	}
}

// matchCommands reports whether topic names the commands prefix itself or a
// sub-folder beneath it, returning the sub-folder name (without its leading
// slash) on a match.
func matchCommands(prefix, topic string) (string, bool) {
	if topic == prefix {
		return "", true
	}
	if strings.HasPrefix(topic, prefix+"/") {
		return strings.TrimPrefix(topic, prefix+"/"), true
	}
	return "", false
}
