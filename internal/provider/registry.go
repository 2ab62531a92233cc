package provider

import (
	"fmt"
	"strings"
	"sync"
)

var (
	registry     = make(map[string]func() Provider)
	registryLock sync.RWMutex
)

// Register adds a provider factory, keyed by the hostname it serves (e.g.
// "github.com"). Variants call this from an init() the way the prior
// agent adapters register themselves by name.
func Register(hostname string, factory func() Provider) {
	registryLock.Lock()
	defer registryLock.Unlock()
	registry[strings.ToLower(hostname)] = factory
}

// ForHostname returns the provider registered for hostname.
func ForHostname(hostname string) (Provider, error) {
	registryLock.RLock()
	defer registryLock.RUnlock()

	factory, ok := registry[strings.ToLower(hostname)]
	if !ok {
		return nil, fmt.Errorf("no provider registered for host %q", hostname)
	}
	return factory(), nil
}

// ForURL picks a provider by inspecting raw's hostname, trying each
// registered provider's own ParseURL until one accepts it. This lets a
// variant recognise hosts the registry doesn't know about by name (e.g. a
// self-hosted SourceCraft instance at a custom domain).
func ForURL(raw string) (Provider, TargetUrl, error) {
	registryLock.RLock()
	providers := make([]func() Provider, 0, len(registry))
	for _, f := range registry {
		providers = append(providers, f)
	}
	registryLock.RUnlock()

	var lastErr error
	for _, factory := range providers {
		p := factory()
		target, err := p.ParseURL(raw)
		if err != nil {
			lastErr = err
			continue
		}
		return p, target, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no registered provider recognised url %q", raw)
	}
	return nil, TargetUrl{}, lastErr
}

// Names returns all registered provider hostnames.
func Names() []string {
	registryLock.RLock()
	defer registryLock.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}
