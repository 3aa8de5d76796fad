package gocommand

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
)

// ValidateMessageContract enforces Type() plus optional Validate() contract.
func ValidateMessageContract(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(m.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return nil
}

type RegistryAdapter struct {
	registry *command.Registry
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) RegisterCommand(cmd any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(cmd)
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.Initialize()
}

func SubscribeCommand[T any](cmd command.Commander[T], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
}

func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

// ValidatedDispatch checks the message contract before handing it to the
// global dispatcher.
func ValidatedDispatch[T any](ctx context.Context, msg T) error {
	if err := ValidateMessageContract(msg); err != nil {
		return err
	}
	return Dispatch(ctx, msg)
}

func RegisterAndSubscribe[T any](
	adapter *RegistryAdapter,
	cmd command.Commander[T],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	subscription := SubscribeCommand(cmd, runnerOpts...)
	if err := adapter.RegisterCommand(cmd); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

// Bus owns the subscriptions made for one relay process so they can be
// released on shutdown.
type Bus struct {
	mu            sync.Mutex
	adapter       *RegistryAdapter
	subscriptions []commanddispatcher.Subscription
	closed        bool
}

func NewBus(adapter *RegistryAdapter) *Bus {
	if adapter == nil {
		adapter = NewRegistryAdapter(nil)
	}
	return &Bus{adapter: adapter}
}

func (b *Bus) Adapter() *RegistryAdapter {
	if b == nil {
		return nil
	}
	return b.adapter
}

// Register subscribes cmd on the dispatcher and records it in the registry.
func Register[T any](bus *Bus, cmd command.Commander[T], runnerOpts ...runner.Option) error {
	if bus == nil {
		return fmt.Errorf("gocommand: bus is not configured")
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	if bus.closed {
		return fmt.Errorf("gocommand: bus is closed")
	}
	subscription, err := RegisterAndSubscribe(bus.adapter, cmd, runnerOpts...)
	if err != nil {
		return err
	}
	bus.subscriptions = append(bus.subscriptions, subscription)
	return nil
}

func (b *Bus) Close() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, subscription := range b.subscriptions {
		if subscription != nil {
			subscription.Unsubscribe()
		}
	}
	b.subscriptions = nil
}
