// Package fiber exposes the portal endpoints over a Fiber app.
package fiber

import (
	"fmt"

	"github.com/gofiber/fiber/v3"

	"github.com/lborres/portal/core"
	"github.com/lborres/portal/services"
)

type Adapter struct {
	app      *fiber.App
	registry *services.EndpointRegistry
}

var _ core.HTTPAdapter = (*Adapter)(nil)

func New(app *fiber.App) *Adapter {
	return &Adapter{app: app, registry: services.NewEndpointRegistry()}
}

// Registry exposes the endpoint table so plugins can add endpoints before
// routes are registered.
func (a *Adapter) Registry() *services.EndpointRegistry {
	return a.registry
}

// RegisterRoutes mounts every registered endpoint under basePath, guarded
// according to its metadata.
func (a *Adapter) RegisterRoutes(h core.AuthHandler, basePath string) error {
	handlers := handlersFor(h)

	for _, ep := range a.registry.Endpoints() {
		if _, ok := handlers[ep.Metadata.OperationID]; !ok {
			return fmt.Errorf("no handler for operation %q (%s %s)", ep.Metadata.OperationID, ep.Method, ep.Path)
		}
	}

	api := a.app.Group(basePath)
	for _, ep := range a.registry.Endpoints() {
		chain := guards(h, ep.Metadata)
		chain = append(chain, handlers[ep.Metadata.OperationID])
		api.Add([]string{ep.Method}, ep.Path, chain[0], chain[1:]...)
	}
	return nil
}
